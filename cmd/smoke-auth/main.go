// smoke-auth drives the full login flow against a running instance:
// venue registration, gateway login, founding operator setup, operator
// login, refresh rotation and logout. It exits non-zero on the first
// deviation.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

func main() {
	base := os.Getenv("E7GEZLY_SMOKE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 10 * time.Second}
	email := fmt.Sprintf("smoke-%d@example.com", rand.New(rand.NewSource(time.Now().UnixNano())).Int())
	const secret = "smoke-secret-1"

	// venue registration
	var venue struct {
		ID string `json:"id"`
	}
	mustPost(client, base+"/v1/auth/register", "", map[string]any{
		"name":   "Smoke Venue",
		"email":  email,
		"secret": secret,
	}, http.StatusCreated, &venue)

	// gateway login
	var gw struct {
		Token                 string `json:"token"`
		RequiresOperatorSetup bool   `json:"requires_operator_setup"`
	}
	mustPost(client, base+"/v1/auth/login", "", map[string]any{
		"email":  email,
		"secret": secret,
	}, http.StatusOK, &gw)
	if !gw.RequiresOperatorSetup {
		log.Fatal("fresh venue should require operator setup")
	}

	// founding operator, created with the gateway token
	var founder struct {
		ID      string `json:"id"`
		Founder bool   `json:"founder"`
	}
	mustPost(client, base+"/v1/venues/"+venue.ID+"/operators", gw.Token, map[string]any{
		"username": "owner",
		"secret":   secret,
	}, http.StatusCreated, &founder)
	if !founder.Founder {
		log.Fatal("first operator should be the founder")
	}

	// operator login
	var op struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refresh_token"`
	}
	mustPost(client, base+"/v1/auth/operator/login", gw.Token, map[string]any{
		"username": "owner",
		"secret":   secret,
	}, http.StatusOK, &op)

	// refresh rotation; the old refresh token must stop working
	var pair struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refresh_token"`
	}
	mustPost(client, base+"/v1/auth/refresh", "", map[string]any{
		"refresh_token": op.RefreshToken,
	}, http.StatusOK, &pair)
	mustPost(client, base+"/v1/auth/refresh", "", map[string]any{
		"refresh_token": op.RefreshToken,
	}, http.StatusUnauthorized, nil)

	// logout kills the rotated session's token
	mustPost(client, base+"/v1/auth/logout", pair.Token, map[string]any{}, http.StatusNoContent, nil)

	fmt.Println("auth smoke test passed: venue", venue.ID)
}

func mustPost(client *http.Client, url, token string, body any, wantStatus int, out any) {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal %s: %v", url, err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("request %s: %v", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("post %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode %s: %v", url, err)
		}
	}
}
