package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
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
	userCount   int64
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Completed (new or replayed)
	fail409       uint64 // Idempotency conflicts
	fail422       uint64 // Insufficient funds
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "mixed", "Workload type: purchase | spend | mixed")
	flag.Int64Var(&userCount, "users", 2, "Number of seeded non-treasury users (ids 2..users+1)")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		endpoint := pickEndpoint()
		userID := 2 + rand.Int63n(userCount)
		assetTypeID := 1 + rand.Int63n(2) // purchasable assets only

		key := fmt.Sprintf("bench-%d-%d-%d", userID, assetTypeID, time.Now().UnixNano())
		payload := map[string]interface{}{
			"userId":         userID,
			"amount":         "5",
			"assetTypeId":    assetTypeID,
			"idempotencyKey": key,
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+endpoint, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		atomic.AddUint64(&totalRequests, 1)
		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		switch resp.StatusCode {
		case http.StatusOK:
			atomic.AddUint64(&success200, 1)
		case http.StatusConflict:
			atomic.AddUint64(&fail409, 1)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickEndpoint() string {
	switch workload {
	case "purchase":
		return "/purchase-credits"
	case "spend":
		return "/spend-credits"
	default:
		if rand.Intn(2) == 0 {
			return "/purchase-credits"
		}
		return "/spend-credits"
	}
}

func printResults(elapsed time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	fmt.Println("--- Benchmark Results ---")
	fmt.Printf("Elapsed:             %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Total Requests:      %d\n", total)
	fmt.Printf("Throughput:          %.1f req/s\n", float64(total)/elapsed.Seconds())
	fmt.Printf("200 OK:              %d\n", atomic.LoadUint64(&success200))
	fmt.Printf("409 Conflict:        %d\n", atomic.LoadUint64(&fail409))
	fmt.Printf("422 Insufficient:    %d\n", atomic.LoadUint64(&fail422))
	fmt.Printf("Other Failures:      %d\n", atomic.LoadUint64(&failOther))
}
