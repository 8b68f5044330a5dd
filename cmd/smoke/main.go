// Command smoke exercises a running accounts API: register, fetch the
// profile, log out, and confirm the revoked token is refused.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"contractdesk.org/internal/ids"
)

type sessionResponse struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Token string `json:"token"`
}

func main() {
	base := flag.String("base", envOr("SMOKE_BASE_URL", "http://localhost:3000"), "API base URL")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	email := fmt.Sprintf("smoke-%s@example.com", ids.New())

	status, body := call(client, http.MethodPost, *base+"/api/users", "", map[string]string{
		"firstName": "Smoke", "lastName": "Test", "email": email, "password": "smoke-password",
	})
	if status != http.StatusCreated {
		log.Fatalf("register: status %d: %s", status, body)
	}
	var sess sessionResponse
	if err := json.Unmarshal(body, &sess); err != nil || sess.Token == "" {
		log.Fatalf("register: bad response %s", body)
	}

	if status, body = call(client, http.MethodGet, *base+"/api/users/me", sess.Token, nil); status != http.StatusOK {
		log.Fatalf("me: status %d: %s", status, body)
	}
	if status, body = call(client, http.MethodPost, *base+"/api/users/logout", sess.Token, nil); status != http.StatusOK {
		log.Fatalf("logout: status %d: %s", status, body)
	}
	if status, _ = call(client, http.MethodGet, *base+"/api/users/me", sess.Token, nil); status != http.StatusUnauthorized {
		log.Fatalf("me after logout: expected 401, got %d", status)
	}

	fmt.Printf("accounts smoke test passed: user=%s\n", sess.User.ID)
}

func call(client *http.Client, method, url, token string, body any) (int, []byte) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal: %v", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, payload)
	if err != nil {
		log.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
