// Package inventory holds the same-day room catalog and the upgrade-pool
// availability rules.
package inventory

import "sort"

// RoomClass is a bookable class. The guest selects it by typing Capacity.
type RoomClass struct {
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	Capacity int      `json:"capacity"`
	Price    int      `json:"price"`
	Beds     []string `json:"beds,omitempty"`
}

var bookable = []RoomClass{
	{Code: "SD", Name: "標準雙人房", Capacity: 2, Price: 2800, Beds: []string{"一大床", "兩小床"}},
	{Code: "ST", Name: "標準三人房", Capacity: 3, Price: 3600, Beds: []string{"一大床+一小床", "三小床"}},
	{Code: "SQ", Name: "標準四人房", Capacity: 4, Price: 4200, Beds: []string{"兩大床", "四小床"}},
}

// VIP and family rooms are never used as silent substitutes.
var upgradePools = map[int][]string{
	2: {"SD", "CD", "DD", "ED", "WD", "AD"},
	3: {"ST", "SQ", "CQ", "WQ", "AQ"},
	4: {"SQ", "CQ", "WQ", "AQ"},
}

var accessible = map[string]bool{"AD": true, "AQ": true}

var displayNames = map[string]string{
	"SD": "標準雙人房",
	"ST": "標準三人房",
	"SQ": "標準四人房",
	"CD": "經典雙人房",
	"CQ": "經典四人房",
	"DD": "豪華雙人房",
	"ED": "行政雙人房",
	"WD": "海景雙人房",
	"WQ": "海景四人房",
	"VD": "VIP雙人房",
	"VQ": "VIP四人房",
	"FM": "親子家庭房",
	"AD": "無障礙雙人房",
	"AQ": "無障礙四人房",
}

// Bookable returns the classes offered in the same-day flow, smallest first.
func Bookable() []RoomClass {
	out := make([]RoomClass, len(bookable))
	copy(out, bookable)
	return out
}

// ByCapacity finds the bookable class for a selection numeral.
func ByCapacity(capacity int) (RoomClass, bool) {
	for _, rc := range bookable {
		if rc.Capacity == capacity {
			return rc, true
		}
	}
	return RoomClass{}, false
}

// ByCode finds a bookable class by its code.
func ByCode(code string) (RoomClass, bool) {
	for _, rc := range bookable {
		if rc.Code == code {
			return rc, true
		}
	}
	return RoomClass{}, false
}

// UpgradePool lists the codes that may stand in for a request of the given
// capacity. Unknown capacities have an empty pool.
func UpgradePool(capacity int) []string {
	pool := upgradePools[capacity]
	out := make([]string, len(pool))
	copy(out, pool)
	return out
}

// IsAccessible reports whether code is an accessibility-designated class.
func IsAccessible(code string) bool {
	return accessible[code]
}

// DisplayName returns the Chinese name of a room code, or the code itself.
func DisplayName(code string) string {
	if name, ok := displayNames[code]; ok {
		return name
	}
	return code
}

// Stock is today's price and free count for one code.
type Stock struct {
	Price     int `json:"price"`
	Available int `json:"available_count"`
}

// Availability maps room codes to today's stock.
type Availability map[string]Stock

// PriceFor prefers today's price for the class and falls back to the
// catalog default.
func (a Availability) PriceFor(rc RoomClass) int {
	if s, ok := a[rc.Code]; ok && s.Price > 0 {
		return s.Price
	}
	return rc.Price
}

// CheckResult is the outcome of an upgrade-pool availability check.
type CheckResult struct {
	Sufficient bool
	Total      int
	// AccessibleOnly is set when every free room in the pool is accessible.
	AccessibleOnly bool
	Codes          []string
}

// Check sums free rooms across the upgrade pool for capacity and compares the
// total with the requested count.
func Check(capacity, count int, avail Availability) CheckResult {
	var res CheckResult
	onlyAccessible := true
	for _, code := range upgradePools[capacity] {
		n := avail[code].Available
		if n <= 0 {
			continue
		}
		res.Total += n
		res.Codes = append(res.Codes, code)
		if !accessible[code] {
			onlyAccessible = false
		}
	}
	sort.Strings(res.Codes)
	res.AccessibleOnly = res.Total > 0 && onlyAccessible
	res.Sufficient = count > 0 && res.Total >= count
	return res
}
