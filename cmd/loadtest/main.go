package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Config struct {
	SearchURL   string
	IndexURL    string
	Concurrency int
	Duration    time.Duration
	// UpdateEvery sends an index update instead of a search on every Nth
	// request of a worker. Zero disables updates.
	UpdateEvery int
	// RPS caps the aggregate request rate. Zero means unlimited.
	RPS         float64
	Queries     []string
	BookIDs     []document.ID
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

// Report is the per-endpoint summary printed at the end of a run.
type Report struct {
	Total, Success, Errors int64
	Min, Avg, P50, P90     time.Duration
	P95, P99, Max, StdDev  time.Duration
	StatusCodes            map[int]int64
}

func (s *Stats) Report() Report {
	r := Report{
		Total:       s.totalRequests.Load(),
		Success:     s.successCount.Load(),
		Errors:      s.errorCount.Load(),
		StatusCodes: make(map[int]int64),
	}

	s.statusCodesMu.Lock()
	for code, n := range s.statusCodes {
		r.StatusCodes[code] = n.Load()
	}
	s.statusCodesMu.Unlock()

	s.latenciesMu.Lock()
	latencies := make([]time.Duration, len(s.latencies))
	copy(latencies, s.latencies)
	s.latenciesMu.Unlock()
	if len(latencies) == 0 {
		return r
	}

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	r.Avg = sum / time.Duration(len(latencies))
	r.Min = latencies[0]
	r.Max = latencies[len(latencies)-1]
	r.P50 = percentile(latencies, 50)
	r.P90 = percentile(latencies, 90)
	r.P95 = percentile(latencies, 95)
	r.P99 = percentile(latencies, 99)

	var sumSquared float64
	avg := float64(r.Avg)
	for _, l := range latencies {
		diff := float64(l) - avg
		sumSquared += diff * diff
	}
	r.StdDev = time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
	return r
}

func main() {
	searchURL := flag.String("search-url", "http://localhost:7003", "base URL of the search service")
	indexURL := flag.String("index-url", "http://localhost:7004", "base URL of the index service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	updateEvery := flag.Int("update-every", 10, "send an index update every Nth request per worker, 0 disables")
	rps := flag.Float64("rps", 0, "aggregate request rate limit, 0 is unlimited")
	books := flag.String("books", "11,84,1342,2701", "comma-separated book ids to update")
	flag.Parse()

	ids, err := parseBookIDs(*books)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -books: %v\n", err)
		os.Exit(1)
	}

	cfg := Config{
		SearchURL:   strings.TrimRight(*searchURL, "/"),
		IndexURL:    strings.TrimRight(*indexURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		UpdateEvery: *updateEvery,
		RPS:         *rps,
		BookIDs:     ids,
		Queries: []string{
			"alice",
			"tired",
			"pride prejudice",
			"whale",
			"monster creature",
			"wonderland rabbit",
			"love",
			"sea captain",
			"tired missingword",
			"the",
		},
	}

	fmt.Println("=== Book Index Load Test ===")
	fmt.Printf("Search:      %s\n", cfg.SearchURL)
	fmt.Printf("Index:       %s\n", cfg.IndexURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	search, update := runLoadTest(context.Background(), cfg)
	printReport("GET /search", search.Report(), cfg.Duration)
	if cfg.UpdateEvery > 0 {
		printReport("POST /index/update/{book_id}", update.Report(), cfg.Duration)
	}

	if search.totalRequests.Load()+update.totalRequests.Load() == 0 {
		fmt.Println("WARNING: No requests completed. Are the services running?")
		os.Exit(1)
	}
}

func parseBookIDs(raw string) ([]document.ID, error) {
	var ids []document.ID
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := document.ParseID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runLoadTest(parent context.Context, cfg Config) (search, update *Stats) {
	search, update = NewStats(), NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	ctx, cancel := context.WithTimeout(parent, cfg.Duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for n := w; ; n++ {
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return nil
					}
				}
				select {
				case <-ctx.Done():
					return nil
				default:
				}

				if cfg.UpdateEvery > 0 && len(cfg.BookIDs) > 0 && n%cfg.UpdateEvery == cfg.UpdateEvery-1 {
					id := cfg.BookIDs[n%len(cfg.BookIDs)]
					do(ctx, client, http.MethodPost, fmt.Sprintf("%s/index/update/%d", cfg.IndexURL, id), update)
					continue
				}
				query := cfg.Queries[n%len(cfg.Queries)]
				do(ctx, client, http.MethodGet, fmt.Sprintf("%s/search?q=%s", cfg.SearchURL, url.QueryEscape(query)), search)
			}
		})
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return search, update
}

func do(ctx context.Context, client *http.Client, method, rawURL string, stats *Stats) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		stats.RecordRequest(0, 0, err)
		return
	}
	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		// Requests cut off by the end of the run are not failures.
		if ctx.Err() == nil {
			stats.RecordRequest(duration, 0, err)
		}
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	stats.RecordRequest(duration, resp.StatusCode, nil)
}

func printReport(name string, r Report, duration time.Duration) {
	fmt.Printf("=== %s ===\n", name)
	fmt.Printf("Total Requests:  %d\n", r.Total)
	fmt.Printf("Successful:      %d\n", r.Success)
	fmt.Printf("Errors:          %d\n", r.Errors)

	if r.Total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(r.Errors)/float64(r.Total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(r.Total)/duration.Seconds())
	}

	if r.Max > 0 {
		fmt.Println()
		fmt.Println("Latency")
		fmt.Printf("  Min:    %s\n", r.Min)
		fmt.Printf("  Avg:    %s\n", r.Avg)
		fmt.Printf("  P50:    %s\n", r.P50)
		fmt.Printf("  P90:    %s\n", r.P90)
		fmt.Printf("  P95:    %s\n", r.P95)
		fmt.Printf("  P99:    %s\n", r.P99)
		fmt.Printf("  Max:    %s\n", r.Max)
		fmt.Printf("  StdDev: %s\n", r.StdDev)
	}

	codes := make([]int, 0, len(r.StatusCodes))
	for code := range r.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	fmt.Println()
	fmt.Println("Status Codes")
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, r.StatusCodes[code])
	}
	fmt.Println()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
