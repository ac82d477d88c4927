// Package main is a smoke-test utility that verifies a deployed registry is
// reachable. It hits the probe endpoints and, when credentials are supplied,
// signs in and fetches the dashboard, printing each status code.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "registry base URL")
	idNumber := flag.String("id-number", "", "account ID number for the authenticated checks")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	base := strings.TrimRight(*baseURL, "/")
	failed := false

	for _, path := range []string{"/health", "/ready", "/version"} {
		if !check(client, http.MethodGet, base+path, "", nil) {
			failed = true
		}
	}

	if *idNumber != "" {
		body, _ := json.Marshal(map[string]string{
			"id_number": *idNumber,
			"password":  os.Getenv("PWDR_TEST_PASSWORD"),
		})
		resp, err := client.Post(base+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		var login struct {
			Token string `json:"token"`
		}
		err = json.NewDecoder(resp.Body).Decode(&login)
		resp.Body.Close()
		fmt.Printf("POST /api/v1/auth/login -> %d\n", resp.StatusCode)
		if err != nil || login.Token == "" {
			failed = true
		} else if !check(client, http.MethodGet, base+"/api/v1/dashboard/stats", login.Token, nil) {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}

func check(client *http.Client, method, url, token string, body io.Reader) bool {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return false
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	fmt.Printf("%s %s -> %d\n%s\n", method, url, resp.StatusCode, out)
	return resp.StatusCode < 400
}
