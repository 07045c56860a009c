// Command purge deletes one guest's conversation session through the admin
// API, e.g. after a support request.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type adminClaims struct {
	TenantID string `json:"tenant_id,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run main.go <tenant_id> <line_user_id>")
		fmt.Println("Example: go run main.go ktw_hotel U4af4980629")
		os.Exit(1)
	}
	tenantID := os.Args[1]
	userID := os.Args[2]

	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		fmt.Println("Error: ADMIN_JWT_SECRET environment variable not set")
		os.Exit(1)
	}
	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	claims := adminClaims{
		TenantID: tenantID,
		Role:     "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "purge-script",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		os.Exit(1)
	}

	url := fmt.Sprintf("%s/admin/sessions/%s", apiURL, userID)
	fmt.Printf("Purging session for %s in %s...\n", userID, tenantID)

	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Authorization", "Bearer "+tokenString)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusNoContent:
		fmt.Println("Session deleted.")
	case http.StatusNotFound:
		fmt.Println("No session stored for that user.")
	default:
		fmt.Printf("Error: status %d: %s\n", resp.StatusCode, body)
		os.Exit(1)
	}
}
