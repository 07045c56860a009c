// Package main drives scripted guest conversations against a running API
// through the synchronous messages endpoint.
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go              # runs all
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go order-query  # runs one
//
// With ADMIN_JWT_SECRET set, each scenario's session is deleted afterwards.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	name   string
	userID string
	passed int
	failed int
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
		return
	}
	fmt.Printf("    FAIL: %s\n", name)
	t.failed++
}

type messageResponse struct {
	Reply   string `json:"reply"`
	State   string `json:"state"`
	Handled bool   `json:"handled"`
	Parked  bool   `json:"parked"`
	Resumed bool   `json:"resumed"`
}

var (
	apiBase  string
	tenantID string
	client   = &http.Client{Timeout: 30 * time.Second}
)

// say sends one guest message and returns the concierge's answer.
func (t *T) say(text string) messageResponse {
	body, _ := json.Marshal(map[string]string{"user_id": t.userID, "display_name": "E2E", "text": text})
	url := fmt.Sprintf("%s/v1/tenants/%s/messages", apiBase, tenantID)
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.check(fmt.Sprintf("POST %q: %v", text, err), false)
		return messageResponse{}
	}
	defer resp.Body.Close()

	var out messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.check(fmt.Sprintf("decode reply to %q: %v", text, err), false)
	}
	fmt.Printf("    > %s\n    < [%s] %s\n", text, out.State, strings.ReplaceAll(out.Reply, "\n", " / "))
	return out
}

var scenarios = []scenario{
	{Name: "order-query", Fn: func(t *T) {
		r := t.say("我有訂房")
		t.check("asks for order number or name", strings.Contains(r.Reply, "訂單編號或訂房大名"))
		t.check("enters order query flow", strings.HasPrefix(r.State, "order_query"))
		r = t.say("查無此人測試")
		t.check("answers the lookup", strings.TrimSpace(r.Reply) != "")
	}},
	{Name: "same-day-booking", Fn: func(t *T) {
		r := t.say("今天還有房間嗎")
		closed := strings.Contains(r.Reply, "僅開放至")
		t.check("shows rooms or the cutoff notice", closed || strings.HasPrefix(r.State, "booking"))
		if closed {
			return
		}
		r = t.say("1")
		t.check("accepts a room selection", r.Handled && r.Reply != "")
	}},
	{Name: "future-date", Fn: func(t *T) {
		r := t.say("我想訂房")
		t.check("asks for a date", strings.Contains(r.Reply, "哪一天"))
		r = t.say("12/25")
		t.check("points to the website", strings.Contains(r.Reply, "官網"))
	}},
	{Name: "cancel-without-booking", Fn: func(t *T) {
		r := t.say("取消訂房")
		t.check("reports nothing to cancel", strings.Contains(r.Reply, "沒有待處理"))
	}},
	{Name: "free-text", Fn: func(t *T) {
		r := t.say("請問早餐幾點？")
		t.check("answers something", strings.TrimSpace(r.Reply) != "")
	}},
}

func main() {
	apiBase = strings.TrimRight(envOr("API_BASE_URL", "http://localhost:8080"), "/")
	tenantID = envOr("TENANT_ID", "ktw_hotel")
	secret := os.Getenv("ADMIN_JWT_SECRET")

	var only string
	if len(os.Args) > 1 {
		only = os.Args[1]
	}

	totalPassed, totalFailed := 0, 0
	for _, sc := range scenarios {
		if only != "" && sc.Name != only {
			continue
		}
		t := &T{name: sc.Name, userID: fmt.Sprintf("e2e-%s-%d", sc.Name, time.Now().UnixNano())}
		fmt.Printf("=== %s (%s)\n", sc.Name, t.userID)
		sc.Fn(t)
		if secret != "" {
			if err := purge(secret, t.userID); err != nil {
				fmt.Printf("    warn: purge failed: %v\n", err)
			}
		}
		totalPassed += t.passed
		totalFailed += t.failed
	}

	fmt.Printf("\n%d passed, %d failed\n", totalPassed, totalFailed)
	if totalFailed > 0 {
		os.Exit(1)
	}
}

func purge(secret, userID string) error {
	claims := jwt.MapClaims{
		"sub":       "e2e",
		"tenant_id": tenantID,
		"exp":       time.Now().Add(5 * time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodDelete, apiBase+"/admin/sessions/"+userID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
