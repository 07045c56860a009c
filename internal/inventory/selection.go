package inventory

import (
	"regexp"
	"strconv"
	"strings"
)

// Line is one room class and how many of it the guest wants.
type Line struct {
	Room  RoomClass `json:"room"`
	Count int       `json:"count"`
}

// Subtotal prices the line with today's availability.
func (l Line) Subtotal(avail Availability) int {
	return avail.PriceFor(l.Room) * l.Count
}

// TotalRooms sums Count across lines.
func TotalRooms(lines []Line) int {
	total := 0
	for _, l := range lines {
		total += l.Count
	}
	return total
}

// The grammar is kept to this exact phrase set; inputs such as "兩間雙人"
// (Chinese numerals) are not recognized.
var multiRoomPattern = regexp.MustCompile(`(\d+)\s*間?\s*(雙人房?|兩人|2人|三人房?|3人|四人房?|4人)`)

var roomWordCapacity = map[string]int{
	"雙人":  2,
	"雙人房": 2,
	"兩人":  2,
	"2人":  2,
	"三人":  3,
	"三人房": 3,
	"3人":  3,
	"四人":  4,
	"四人房": 4,
	"4人":  4,
}

// ParseMultiRoom reads "N間<type>" phrases such as "1間雙人1間三人". It
// returns nil when no phrase matches. Repeated types are merged and lines
// come back in catalog order. The caller normalizes fullwidth digits.
func ParseMultiRoom(text string) []Line {
	matches := multiRoomPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	counts := make(map[int]int)
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		capacity, ok := roomWordCapacity[m[2]]
		if !ok {
			continue
		}
		counts[capacity] += n
	}
	var lines []Line
	for _, rc := range bookable {
		if n := counts[rc.Capacity]; n > 0 {
			lines = append(lines, Line{Room: rc, Count: n})
		}
	}
	return lines
}

// ParseSingleSelection accepts a bare capacity numeral ("2", "3", "4").
func ParseSingleSelection(text string) (RoomClass, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return RoomClass{}, false
	}
	return ByCapacity(n)
}
