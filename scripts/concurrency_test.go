//go:build ignore
// +build ignore

// Package main fires simultaneous checkouts at a running circulation server.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <isbn-or-barcode> <card1> [card2 ...]
//
// Or use the convenience environment variables:
//
//	IDENTIFIER=<isbn>  BORROWERS=<card1>,<card2>,...  go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Fires one goroutine per borrower, all checking out the same publication at once.
//  2. Prints how many got a loan and how many were told no copy was available.
//  3. Reads the availability endpoint (when PUBLICATION_ID is set) to confirm the
//     number of copies on loan never exceeds the number of successful checkouts.
//
// Prerequisites:
//   - Server must be running with its database migrated.
//   - The publication must have some available copies and the borrowers must exist.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type checkoutResult struct {
	Borrower   string
	LoanID     string
	StatusCode int
	Err        error
}

func main() {
	serverAddr := os.Getenv("SERVER_URL")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	identifier := os.Getenv("IDENTIFIER")
	var borrowers []string
	if env := os.Getenv("BORROWERS"); env != "" {
		borrowers = strings.Split(env, ",")
	}

	args := os.Args[1:]
	if len(args) >= 1 {
		identifier = args[0]
	}
	if len(args) >= 2 {
		borrowers = args[1:]
	}

	if identifier == "" {
		log.Fatal("Usage: IDENTIFIER=<isbn> BORROWERS=<c1,c2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <isbn-or-barcode> <card1> [card2 ...]")
	}
	if len(borrowers) == 0 {
		log.Fatal("At least one borrower card number or username must be provided")
	}

	fmt.Printf("=== Circulation Concurrency Test ===\n")
	fmt.Printf("Server     : %s\n", serverAddr)
	fmt.Printf("Identifier : %s\n", identifier)
	fmt.Printf("Borrowers  : %d\n\n", len(borrowers))

	results := make([]checkoutResult, len(borrowers))
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i, b := range borrowers {
		wg.Add(1)
		go func(idx int, borrower string) {
			defer wg.Done()
			<-start
			results[idx] = attemptCheckout(serverAddr, identifier, strings.TrimSpace(borrower))
		}(i, b)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)
	wg.Wait()
	fmt.Println("All requests completed.")
	fmt.Println()

	var loans, unavailable, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] borrower=%-20s err=%v\n", r.Borrower, r.Err)
		case r.StatusCode == http.StatusCreated:
			loans++
			fmt.Printf("  [LOAN] borrower=%-20s loan=%s\n", r.Borrower, r.LoanID)
		case r.StatusCode == http.StatusConflict:
			unavailable++
			fmt.Printf("  [NONE] borrower=%-20s no available item\n", r.Borrower)
		default:
			failures++
			fmt.Printf("  [FAIL] borrower=%-20s status=%d\n", r.Borrower, r.StatusCode)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Loans       : %d\n", loans)
	fmt.Printf("Unavailable : %d\n", unavailable)
	fmt.Printf("Failures    : %d\n", failures)
	fmt.Printf("Total       : %d\n\n", len(borrowers))

	if pubID := os.Getenv("PUBLICATION_ID"); pubID != "" {
		onLoan, err := fetchOnLoan(serverAddr, pubID)
		if err != nil {
			log.Printf("availability check failed: %v", err)
		} else {
			fmt.Printf("Copies on loan after the run: %d\n", onLoan)
			if onLoan < int64(loans) {
				fmt.Println("[ERROR] more loans were granted than copies are on loan")
				os.Exit(1)
			}
		}
	}

	if failures > 0 {
		fmt.Printf("\n[WARNING] %d request(s) failed - check server logs for details.\n", failures)
		os.Exit(1)
	}
}

// attemptCheckout sends POST /checkouts for one borrower.
func attemptCheckout(serverAddr, identifier, borrower string) checkoutResult {
	payload, _ := json.Marshal(map[string]string{"identifier": identifier, "borrower": borrower})

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(serverAddr+"/checkouts", "application/json", bytes.NewReader(payload))
	if err != nil {
		return checkoutResult{Borrower: borrower, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return checkoutResult{Borrower: borrower, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}
	loanID, _ := parsed["id"].(string)
	return checkoutResult{Borrower: borrower, LoanID: loanID, StatusCode: resp.StatusCode}
}

func fetchOnLoan(serverAddr, publicationID string) (int64, error) {
	resp, err := http.Get(serverAddr + "/publications/" + publicationID + "/availability")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	var a struct {
		OnLoan int64 `json:"on_loan"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return 0, err
	}
	return a.OnLoan, nil
}
