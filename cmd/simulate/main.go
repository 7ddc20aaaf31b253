package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/abhishinde10/healthnexus/internal/auth"
	"github.com/abhishinde10/healthnexus/internal/config"
	"github.com/abhishinde10/healthnexus/internal/db"
	"github.com/abhishinde10/healthnexus/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	TransitionRatio float64
	ReadRatio       float64
	Patients        int
	ListingLimit    int
	PostgresDSN     string
	JWTSecret       string
}

type listingRef struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
}

type bookedRef struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	ProviderID uuid.UUID
}

type DataPool struct {
	Patients     []uuid.UUID
	Listings     []listingRef
	mu           sync.RWMutex
	appointments []bookedRef
}

func (dp *DataPool) AddAppointment(ref bookedRef) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, ref)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (bookedRef, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return bookedRef{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min95(len(latencies))]
	return avg, min, max, p50, p95
}

func min95(n int) int {
	idx := n * 95 / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking      OperationMetrics
	Transition   OperationMetrics
	ReadByID     OperationMetrics
	ListOwn      OperationMetrics
	ListServices OperationMetrics
	RateLimited  int64
	CacheHits    int64
	CacheMisses  int64
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
	tokens  sync.Map // uuid.UUID -> string
}

func main() {
	log := logging.New("simulate", "dev", "info")
	log.Info().Msg("simulator starting")

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("transition", cfg.TransitionRatio).
		Float64("read", cfg.ReadRatio).
		Msg("config")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	log.Info().Int("patients", len(dataPool.Patients)).Int("listings", len(dataPool.Listings)).Msg("data loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("load base config: %w", err)
	}

	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.3),
		TransitionRatio: getFloat("SIM_TRANSITION_RATIO", 0.1),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.6),
		Patients:        getInt("SIM_PATIENTS", 500),
		ListingLimit:    getInt("SIM_LISTING_LIMIT", 1000),
		PostgresDSN:     baseCfg.PostgresDSN,
		JWTSecret:       baseCfg.JWTSecret,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.TransitionRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.TransitionRatio /= total
		cfg.ReadRatio /= total
	}

	if cfg.Workers <= 0 {
		return cfg, fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return cfg, fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Patients <= 0 {
		return cfg, fmt.Errorf("SIM_PATIENTS must be > 0")
	}
	return cfg, nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id, provider_id FROM services
		WHERE active
		LIMIT $1
	`, cfg.ListingLimit)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref listingRef
		if err := rows.Scan(&ref.ID, &ref.ProviderID); err != nil {
			return nil, err
		}
		dataPool.Listings = append(dataPool.Listings, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dataPool.Listings) == 0 {
		return nil, fmt.Errorf("no active listings, run cmd/seed first")
	}

	for i := 0; i < cfg.Patients; i++ {
		dataPool.Patients = append(dataPool.Patients, uuid.New())
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.TransitionRatio:
				s.doTransition(ctx, rng)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doListOwn(ctx, rng)
				case 2:
					s.doListServices(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	listing := s.pool.Listings[rng.Intn(len(s.pool.Listings))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	// Random quarter hour within the next 60 days.
	slot := time.Now().UTC().Truncate(time.Hour).Add(48*time.Hour + time.Duration(rng.Intn(60*24*4))*15*time.Minute)

	body, _ := json.Marshal(map[string]any{
		"provider_id":  listing.ProviderID.String(),
		"service_id":   listing.ID.String(),
		"scheduled_at": slot,
	})

	start := time.Now()
	resp, err := s.do(ctx, auth.Caller{ID: patientID, Role: auth.RolePatient}, http.MethodPost, "/appointments", body)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var appt struct {
				ID uuid.UUID `json:"id"`
			}
			if raw, err := io.ReadAll(resp.Body); err == nil && json.Unmarshal(raw, &appt) == nil && appt.ID != uuid.Nil {
				s.pool.AddAppointment(bookedRef{ID: appt.ID, PatientID: patientID, ProviderID: listing.ProviderID})
			}
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

// doTransition moves a booked appointment one step along the happy path as
// its provider.
func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	action := []string{"confirm", "confirm", "start", "complete"}[rng.Intn(4)]

	start := time.Now()
	resp, err := s.do(ctx, auth.Caller{ID: appt.ProviderID, Role: auth.RoleDoctor}, http.MethodPost,
		fmt.Sprintf("/appointments/%s/%s", appt.ID, action), nil)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict
	}

	s.metrics.Transition.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	s.read(ctx, &s.metrics.ReadByID, auth.Caller{ID: appt.PatientID, Role: auth.RolePatient},
		fmt.Sprintf("/appointments/%s", appt.ID))
}

func (s *Simulator) doListOwn(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	s.read(ctx, &s.metrics.ListOwn, auth.Caller{ID: patientID, Role: auth.RolePatient}, "/appointments?limit=20&offset=0")
}

func (s *Simulator) doListServices(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	s.read(ctx, &s.metrics.ListServices, auth.Caller{ID: patientID, Role: auth.RolePatient}, "/services?limit=20")
}

func (s *Simulator) read(ctx context.Context, om *OperationMetrics, caller auth.Caller, path string) {
	start := time.Now()
	resp, err := s.do(ctx, caller, http.MethodGet, path, nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		success = resp.StatusCode == http.StatusOK
		switch resp.Header.Get("X-Cache") {
		case "HIT":
			atomic.AddInt64(&s.metrics.CacheHits, 1)
		case "MISS":
			atomic.AddInt64(&s.metrics.CacheMisses, 1)
		}
	}
	om.Record(latency, success, false)
}

func (s *Simulator) do(ctx context.Context, caller auth.Caller, method, path string, body []byte) (*http.Response, error) {
	token, err := s.token(caller)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		atomic.AddInt64(&s.metrics.RateLimited, 1)
	}
	return resp, err
}

func (s *Simulator) token(caller auth.Caller) (string, error) {
	if t, ok := s.tokens.Load(caller.ID); ok {
		return t.(string), nil
	}
	t, err := auth.IssueToken(s.config.JWTSecret, caller, 24*time.Hour)
	if err != nil {
		return "", err
	}
	s.tokens.Store(caller.ID, t)
	return t, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Transition", &s.metrics.Transition)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List own appointments", &s.metrics.ListOwn)
	printOperationReport("List services", &s.metrics.ListServices)

	hits := atomic.LoadInt64(&s.metrics.CacheHits)
	misses := atomic.LoadInt64(&s.metrics.CacheMisses)
	if hits+misses > 0 {
		fmt.Printf("Cache: hits=%d misses=%d hit ratio=%.1f%%\n", hits, misses, float64(hits)/float64(hits+misses)*100)
	}
	if n := atomic.LoadInt64(&s.metrics.RateLimited); n > 0 {
		fmt.Printf("Rate limited responses: %d\n", n)
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
