package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ActionRequest is the request body for the action endpoints
type ActionRequest struct {
	Owner   string `json:"owner"`
	AssetID string `json:"asset_id"`
	Amount  string `json:"amount"`
}

// ActionResponse is the action acknowledgement
type ActionResponse struct {
	Action string `json:"action"`
	Owner  string `json:"owner"`
	Health struct {
		HealthFactor string `json:"health_factor"`
		Liquidatable bool   `json:"liquidatable"`
	} `json:"health"`
}

// BenchmarkResults holds all test results
type BenchmarkResults struct {
	Deposits        int64
	Borrows         int64
	DepositSuccess  int64
	BorrowSuccess   int64
	DepositFailed   int64
	BorrowFailed    int64
	DepositLatencies []time.Duration
	BorrowLatencies  []time.Duration
	mu               sync.Mutex
}

func (r *BenchmarkResults) AddDeposit(latency time.Duration, success bool) {
	atomic.AddInt64(&r.Deposits, 1)
	if success {
		atomic.AddInt64(&r.DepositSuccess, 1)
	} else {
		atomic.AddInt64(&r.DepositFailed, 1)
	}
	r.mu.Lock()
	r.DepositLatencies = append(r.DepositLatencies, latency)
	r.mu.Unlock()
}

func (r *BenchmarkResults) AddBorrow(latency time.Duration, success bool) {
	atomic.AddInt64(&r.Borrows, 1)
	if success {
		atomic.AddInt64(&r.BorrowSuccess, 1)
	} else {
		atomic.AddInt64(&r.BorrowFailed, 1)
	}
	r.mu.Lock()
	r.BorrowLatencies = append(r.BorrowLatencies, latency)
	r.mu.Unlock()
}

func percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func avg(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	return total / time.Duration(len(latencies))
}

func minLat(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	m := latencies[0]
	for _, l := range latencies {
		if l < m {
			m = l
		}
	}
	return m
}

func maxLat(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	m := latencies[0]
	for _, l := range latencies {
		if l > m {
			m = l
		}
	}
	return m
}

func submitAction(client *http.Client, baseURL, action string, req *ActionRequest) (time.Duration, bool) {
	body, _ := json.Marshal(req)
	start := time.Now()

	httpReq, err := http.NewRequest("POST", baseURL+"/v1/actions/"+action, bytes.NewReader(body))
	if err != nil {
		return time.Since(start), false
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	latency := time.Since(start)

	if err != nil {
		return latency, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return latency, false
	}

	var actionResp ActionResponse
	if err := json.NewDecoder(resp.Body).Decode(&actionResp); err != nil {
		return latency, false
	}
	return latency, true
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "API base URL")
	accountCount := flag.Int("n", 10000, "Number of borrower accounts")
	concurrency := flag.Int("c", 100, "Concurrency level")
	collateral := flag.String("collateral", "SOL", "Collateral asset")
	debt := flag.String("debt", "USDC", "Borrowed asset")
	depositAmount := flag.String("deposit", "100", "Collateral deposited per account")
	borrowAmount := flag.String("borrow", "10", "Amount borrowed per account")
	seedOwner := flag.String("seed-owner", "whale", "Account seeding the borrowed reserve")
	seedAmount := flag.String("seed", "1000000", "Liquidity seeded into the borrowed reserve")
	outputFile := flag.String("o", "", "Output JSON report file")
	flag.Parse()

	fmt.Println("Radiant Lend action benchmark - deposit/borrow stress test")
	fmt.Println()
	fmt.Printf("Configuration:\n")
	fmt.Printf("  API URL:      %s\n", *baseURL)
	fmt.Printf("  Accounts:     %d (total actions: %d)\n", *accountCount, *accountCount*2)
	fmt.Printf("  Concurrency:  %d\n", *concurrency)
	fmt.Printf("  Collateral:   %s %s per account\n", *depositAmount, *collateral)
	fmt.Printf("  Borrow:       %s %s per account\n", *borrowAmount, *debt)
	fmt.Println()

	// Check health
	fmt.Print("Checking API health... ")
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        1000,
			MaxIdleConnsPerHost: 200,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	resp, err := client.Get(*baseURL + "/health")
	if err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("FAILED: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("OK")

	// Seed the borrowed reserve so borrows do not fail on liquidity
	fmt.Print("Seeding borrow liquidity... ")
	if _, ok := submitAction(client, *baseURL, "deposit", &ActionRequest{
		Owner:   *seedOwner,
		AssetID: *debt,
		Amount:  *seedAmount,
	}); !ok {
		fmt.Println("FAILED")
		os.Exit(1)
	}
	fmt.Println("OK")
	fmt.Println()

	results := &BenchmarkResults{
		DepositLatencies: make([]time.Duration, 0, *accountCount),
		BorrowLatencies:  make([]time.Duration, 0, *accountCount),
	}

	// Semaphore for concurrency control
	sem := make(chan struct{}, *concurrency)
	var wg sync.WaitGroup

	// Progress tracking
	var processed int64
	total := int64(*accountCount * 2)
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p := atomic.LoadInt64(&processed)
				pct := float64(p) / float64(total) * 100
				fmt.Printf("\r  Progress: %d/%d (%.1f%%)    ", p, total, pct)
			}
		}
	}()

	fmt.Println("Starting benchmark...")
	startTime := time.Now()

	// Each account deposits collateral and then borrows against it
	for i := 0; i < *accountCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			owner := fmt.Sprintf("borrower_%d", idx)

			latency, success := submitAction(client, *baseURL, "deposit", &ActionRequest{
				Owner:   owner,
				AssetID: *collateral,
				Amount:  *depositAmount,
			})
			results.AddDeposit(latency, success)
			atomic.AddInt64(&processed, 1)

			if !success {
				atomic.AddInt64(&processed, 1)
				results.AddBorrow(0, false)
				return
			}

			latency, success = submitAction(client, *baseURL, "borrow", &ActionRequest{
				Owner:   owner,
				AssetID: *debt,
				Amount:  *borrowAmount,
			})
			results.AddBorrow(latency, success)
			atomic.AddInt64(&processed, 1)
		}(i)
	}

	wg.Wait()
	close(done)
	elapsed := time.Since(startTime)

	fmt.Printf("\r                                                  \r")
	fmt.Println()

	// Calculate statistics
	allLatencies := append(results.DepositLatencies, results.BorrowLatencies...)
	totalActions := results.Deposits + results.Borrows
	totalSuccess := results.DepositSuccess + results.BorrowSuccess
	totalFailed := results.DepositFailed + results.BorrowFailed
	successRate := float64(totalSuccess) / float64(totalActions) * 100
	throughput := float64(totalActions) / elapsed.Seconds()

	fmt.Println("BENCHMARK RESULTS")
	fmt.Println()
	fmt.Printf("Test Duration:        %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Throughput:           %.2f actions/sec\n", throughput)
	fmt.Println()

	fmt.Println("-- Action Statistics ----------------------------------------------")
	fmt.Printf("  Total Actions:      %d\n", totalActions)
	fmt.Printf("  Deposits:           %d (success: %d, failed: %d)\n", results.Deposits, results.DepositSuccess, results.DepositFailed)
	fmt.Printf("  Borrows:            %d (success: %d, failed: %d)\n", results.Borrows, results.BorrowSuccess, results.BorrowFailed)
	fmt.Printf("  Success Rate:       %.2f%%\n", successRate)
	fmt.Println()

	fmt.Println("-- Overall Latency (all actions) ----------------------------------")
	fmt.Printf("  Min:                %v\n", minLat(allLatencies))
	fmt.Printf("  Max:                %v\n", maxLat(allLatencies))
	fmt.Printf("  Average:            %v\n", avg(allLatencies))
	fmt.Printf("  P50 (Median):       %v\n", percentile(allLatencies, 0.50))
	fmt.Printf("  P90:                %v\n", percentile(allLatencies, 0.90))
	fmt.Printf("  P95:                %v\n", percentile(allLatencies, 0.95))
	fmt.Printf("  P99:                %v\n", percentile(allLatencies, 0.99))
	fmt.Println()

	fmt.Println("-- Deposit Latency ------------------------------------------------")
	fmt.Printf("  Min:                %v\n", minLat(results.DepositLatencies))
	fmt.Printf("  Max:                %v\n", maxLat(results.DepositLatencies))
	fmt.Printf("  Average:            %v\n", avg(results.DepositLatencies))
	fmt.Printf("  P99:                %v\n", percentile(results.DepositLatencies, 0.99))
	fmt.Println()

	fmt.Println("-- Borrow Latency -------------------------------------------------")
	fmt.Printf("  Min:                %v\n", minLat(results.BorrowLatencies))
	fmt.Printf("  Max:                %v\n", maxLat(results.BorrowLatencies))
	fmt.Printf("  Average:            %v\n", avg(results.BorrowLatencies))
	fmt.Printf("  P99:                %v\n", percentile(results.BorrowLatencies, 0.99))
	fmt.Println()

	// Save report if requested
	if *outputFile != "" {
		report := map[string]interface{}{
			"config": map[string]interface{}{
				"api_url":     *baseURL,
				"accounts":    *accountCount,
				"concurrency": *concurrency,
				"collateral":  *collateral,
				"debt":        *debt,
			},
			"summary": map[string]interface{}{
				"duration_ms":         elapsed.Milliseconds(),
				"throughput_per_sec":  throughput,
				"total_actions":       totalActions,
				"success_actions":     totalSuccess,
				"failed_actions":      totalFailed,
				"success_rate":        successRate,
			},
			"latency_all": map[string]interface{}{
				"min_us": minLat(allLatencies).Microseconds(),
				"max_us": maxLat(allLatencies).Microseconds(),
				"avg_us": avg(allLatencies).Microseconds(),
				"p50_us": percentile(allLatencies, 0.50).Microseconds(),
				"p90_us": percentile(allLatencies, 0.90).Microseconds(),
				"p95_us": percentile(allLatencies, 0.95).Microseconds(),
				"p99_us": percentile(allLatencies, 0.99).Microseconds(),
			},
			"latency_deposit": map[string]interface{}{
				"min_us": minLat(results.DepositLatencies).Microseconds(),
				"max_us": maxLat(results.DepositLatencies).Microseconds(),
				"avg_us": avg(results.DepositLatencies).Microseconds(),
				"p99_us": percentile(results.DepositLatencies, 0.99).Microseconds(),
			},
			"latency_borrow": map[string]interface{}{
				"min_us": minLat(results.BorrowLatencies).Microseconds(),
				"max_us": maxLat(results.BorrowLatencies).Microseconds(),
				"avg_us": avg(results.BorrowLatencies).Microseconds(),
				"p99_us": percentile(results.BorrowLatencies, 0.99).Microseconds(),
			},
			"timestamp": time.Now().Format(time.RFC3339),
		}

		file, err := os.Create(*outputFile)
		if err != nil {
			fmt.Printf("Failed to create report file: %v\n", err)
		} else {
			defer file.Close()
			encoder := json.NewEncoder(file)
			encoder.SetIndent("", "  ")
			encoder.Encode(report)
			fmt.Printf("\nReport saved to: %s\n", *outputFile)
		}
	}
}
