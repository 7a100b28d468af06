//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for the borrow
// request API.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <book_id> <user1_id> [user2_id ...]
//
// Or use the convenience environment variables:
//
//	BOOK_ID=<uuid>  USER_IDS=<uuid1>,<uuid2>,...  go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Fires REQUESTS_PER_USER simultaneous POST /borrows/request calls per
//     user, all targeting the same book.
//  2. Tallies created requests vs. conflicts per user.
//  3. Checks the invariant: every user ends up with EXACTLY ONE created
//     request; every duplicate in the burst must come back as a conflict.
//     The row lock taken while the engine checks for an existing active
//     record is what serializes the duplicates.
//
// Prerequisites:
//   - Server must be running and DATABASE_URL must be set.
//   - The book and all users must already exist, and no user may have an
//     open request for the book.

package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	defaultServerAddr      = "http://localhost:8080"
	defaultRequestsPerUser = 8
)

type requestResult struct {
	UserID     string
	StatusCode int
	Err        error
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}
	perUser := defaultRequestsPerUser
	if v := os.Getenv("REQUESTS_PER_USER"); v != "" {
		fmt.Sscanf(v, "%d", &perUser)
	}

	bookID := os.Getenv("BOOK_ID")
	var userIDs []string
	if env := os.Getenv("USER_IDS"); env != "" {
		userIDs = strings.Split(env, ",")
	}

	// Support positional args: script <book_id> [user_ids...]
	args := os.Args[1:]
	if len(args) >= 1 {
		bookID = args[0]
	}
	if len(args) >= 2 {
		userIDs = args[1:]
	}

	if bookID == "" {
		log.Fatal("Usage: BOOK_ID=<uuid> USER_IDS=<u1,u2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <book_id> <user1_id> [user2_id ...]")
	}
	if len(userIDs) == 0 {
		log.Fatal("At least one user ID must be provided via USER_IDS env or positional args")
	}

	total := len(userIDs) * perUser
	fmt.Printf("=== Borrow Request Concurrency Test ===\n")
	fmt.Printf("Server   : %s\n", serverAddr)
	fmt.Printf("Book     : %s\n", bookID)
	fmt.Printf("Users    : %d (%d requests each, %d total)\n\n", len(userIDs), perUser, total)

	results := make([]requestResult, total)
	var wg sync.WaitGroup

	// Fire everything simultaneously using a barrier.
	start := make(chan struct{})

	idx := 0
	for _, uid := range userIDs {
		userID := strings.TrimSpace(uid)
		for j := 0; j < perUser; j++ {
			wg.Add(1)
			go func(slot int) {
				defer wg.Done()
				<-start
				results[slot] = attemptRequest(serverAddr, bookID, userID)
			}(idx)
			idx++
		}
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)
	wg.Wait()
	fmt.Println("All requests completed.")
	fmt.Println()

	// Tally per user: exactly one 201, the rest 409.
	created := map[string]int{}
	conflicts := map[string]int{}
	var failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] user=%-38s err=%v\n", r.UserID, r.Err)
		case r.StatusCode == http.StatusCreated:
			created[r.UserID]++
		case r.StatusCode == http.StatusConflict:
			conflicts[r.UserID]++
		default:
			failures++
			fmt.Printf("  [FAIL] user=%-38s status=%d unexpected response\n", r.UserID, r.StatusCode)
		}
	}

	fmt.Printf("--- Summary ---\n")
	violations := 0
	for _, uid := range userIDs {
		userID := strings.TrimSpace(uid)
		fmt.Printf("  user=%-38s created=%d conflicts=%d\n", userID, created[userID], conflicts[userID])
		if created[userID] != 1 {
			violations++
		}
	}
	fmt.Printf("Failures : %d\n\n", failures)

	fmt.Println("--- Invariant Check ---")
	fmt.Println("Each user must hold exactly one open request for the book; every")
	fmt.Println("duplicate in the burst must have been rejected with a conflict.")
	if violations > 0 {
		fmt.Printf("\n[VIOLATION] %d user(s) did not end up with exactly one created request.\n", violations)
		os.Exit(1)
	}
	if failures > 0 {
		fmt.Printf("\n[WARNING] %d request(s) failed — check server logs for details.\n", failures)
		os.Exit(1)
	}
	fmt.Println("OK.")
}

// attemptRequest sends one POST /borrows/request for (book, user) and
// reports the status code.
func attemptRequest(serverAddr, bookID, userID string) requestResult {
	url := fmt.Sprintf("%s/borrows/request", serverAddr)
	body := fmt.Sprintf(`{"book_id":"%s","user_id":"%s"}`, bookID, userID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		return requestResult{UserID: userID, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return requestResult{UserID: userID, StatusCode: resp.StatusCode}
}
