package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	pin         string
)

// Metrics
var (
	totalRequests   uint64
	committed       uint64 // Verified and committed
	failInsufficent uint64 // 422 at submit (funds drained)
	failConflict    uint64 // 409 state races
	failOther       uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.StringVar(&pin, "pin", "1234", "Transaction PIN of the seeded accounts")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	accounts, err := fetchSeededAccounts()
	if err != nil {
		log.Fatalf("Unable to list seeded accounts: %v", err)
	}
	if len(accounts) < 2 {
		log.Fatal("Need at least 2 seeded accounts; run cmd/seeder first")
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, accounts)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// fetchSeededAccounts asks the seeder-populated database for account
// ids via an env-provided list, keeping the benchmark a pure HTTP
// client like the server's other consumers.
func fetchSeededAccounts() ([]string, error) {
	raw := os.Getenv("BENCH_ACCOUNT_IDS")
	if raw == "" {
		return nil, fmt.Errorf("BENCH_ACCOUNT_IDS environment variable is required (comma-separated)")
	}
	var out []string
	for _, id := range bytes.Split([]byte(raw), []byte(",")) {
		if len(id) > 0 {
			out = append(out, string(id))
		}
	}
	return out, nil
}

func worker(wg *sync.WaitGroup, start time.Time, accounts []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		accountID := pickAccount(accounts)

		// Full pipeline: start the transfer, then authorize with the PIN.
		wfID, status := startTransfer(client, accountID)
		atomic.AddUint64(&totalRequests, 1)
		switch status {
		case 201:
			// proceed to verify
		case 422:
			atomic.AddUint64(&failInsufficent, 1)
			continue
		case 409:
			atomic.AddUint64(&failConflict, 1)
			continue
		default:
			atomic.AddUint64(&failOther, 1)
			continue
		}

		switch verifyTransfer(client, wfID) {
		case 200:
			atomic.AddUint64(&committed, 1)
		case 409:
			atomic.AddUint64(&failConflict, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

func pickAccount(accounts []string) string {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic drains the first account
		if rand.Float32() < 0.90 {
			return accounts[0]
		}
	}
	return accounts[rand.Intn(len(accounts))]
}

func startTransfer(client *http.Client, accountID string) (string, int) {
	payload := map[string]interface{}{
		"account_id":     accountID,
		"class":          "local",
		"amount":         "1.00",
		"recipient_name": "Bench Recipient",
		"bank_name":      "Bench Bank",
		"account_number": "0000000000",
		"narration":      "load test",
	}
	body, _ := json.Marshal(payload)

	resp, err := client.Post(targetURL+"/api/v1/transfers", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return "", 0
	}
	defer resp.Body.Close()

	var out struct {
		ID string `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	return out.ID, resp.StatusCode
}

func verifyTransfer(client *http.Client, wfID string) int {
	body, _ := json.Marshal(map[string]string{"pin": pin})
	resp, err := client.Post(targetURL+"/api/v1/transfers/"+wfID+"/verify", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return 0
	}
	resp.Body.Close()
	return resp.StatusCode
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&committed)
	insufficient := atomic.LoadUint64(&failInsufficent)
	conflicts := atomic.LoadUint64(&failConflict)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"workload":           workload,
		"duration_sec":       d.Seconds(),
		"total_requests":     total,
		"throughput_tps":     tps,
		"committed":          ok,
		"insufficient_funds": insufficient,
		"conflicts":          conflicts,
		"errors":             fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
