package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
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

	"github.com/hackgods/booking-platform/internal/auth"
	"github.com/hackgods/booking-platform/internal/config"
	"github.com/hackgods/booking-platform/internal/db"
	"github.com/hackgods/booking-platform/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	CancelRatio     float64
	RescheduleRatio float64
	ReadRatio       float64
	ClientLimit     int
	SlotLimit       int
	PostgresDSN     string
	JWTSecret       string
}

type clientAccount struct {
	ID    uuid.UUID
	Token string
}

type slotRef struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
}

type booking struct {
	ID         uuid.UUID
	Client     int
	ProviderID uuid.UUID
}

type DataPool struct {
	Clients         []clientAccount
	Slots           []slotRef
	slotsByProvider map[uuid.UUID][]uuid.UUID

	mu       sync.Mutex
	bookings []booking
}

func (dp *DataPool) AddBooking(b booking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

// TakeBooking removes and returns a random booking so two workers never
// cancel the same appointment on purpose. Races still happen through reschedule.
func (dp *DataPool) TakeBooking(rng *rand.Rand) (booking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.bookings) == 0 {
		return booking{}, false
	}
	i := rng.Intn(len(dp.bookings))
	b := dp.bookings[i]
	dp.bookings[i] = dp.bookings[len(dp.bookings)-1]
	dp.bookings = dp.bookings[:len(dp.bookings)-1]
	return b, true
}

func (dp *DataPool) PeekBooking(rng *rand.Rand) (booking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.bookings) == 0 {
		return booking{}, false
	}
	return dp.bookings[rng.Intn(len(dp.bookings))], true
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

func (om *OperationMetrics) Stats() (avg, low, high, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	low = latencies[0]
	high = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, low, high, p50, p95
}

func percentileIndex(n, p int) int {
	i := n * p / 100
	if i >= n {
		i = n - 1
	}
	return i
}

type Metrics struct {
	Booking      OperationMetrics
	Cancel       OperationMetrics
	Reschedule   OperationMetrics
	ListMine     OperationMetrics
	Discover     OperationMetrics
	UnreadCounts OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *slog.Logger
}

func main() {
	logger := logging.New("simulate", os.Getenv("LOG_LEVEL"))

	cfg, err := loadConfig()
	if err == nil {
		err = validateConfig(cfg)
	}
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger.Info("simulator starting",
		"duration", cfg.Duration, "workers", cfg.Workers,
		"booking", cfg.BookingRatio, "cancel", cfg.CancelRatio,
		"reschedule", cfg.RescheduleRatio, "read", cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", "err", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Error("load data pool", "err", err)
		os.Exit(1)
	}
	logger.Info("data loaded", "clients", len(dataPool.Clients), "slots", len(dataPool.Slots))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()

	checkCtx, cancelCheck := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelCheck()
	if err := verifyInvariants(checkCtx, pgPool); err != nil {
		logger.Error("consistency check failed", "err", err)
		os.Exit(2)
	}
	logger.Info("consistency check passed")
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("load base config: %w", err)
	}

	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:"+baseCfg.HTTPPort),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.45),
		CancelRatio:     getFloat("SIM_CANCEL_RATIO", 0.1),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.15),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		ClientLimit:     getInt("SIM_CLIENT_LIMIT", 1000),
		SlotLimit:       getInt("SIM_SLOT_LIMIT", 2400),
		PostgresDSN:     baseCfg.PostgresDSN,
		JWTSecret:       baseCfg.JWTSecret,
	}
	cfg.normalize()
	return cfg, nil
}

func (c *SimConfig) normalize() {
	total := c.BookingRatio + c.CancelRatio + c.RescheduleRatio + c.ReadRatio
	if total > 0 {
		c.BookingRatio /= total
		c.CancelRatio /= total
		c.RescheduleRatio /= total
		c.ReadRatio /= total
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.Duration+time.Hour)
	dataPool := &DataPool{slotsByProvider: make(map[uuid.UUID][]uuid.UUID)}

	rows, err := pool.Query(ctx, `
		SELECT id FROM users WHERE role = 'client' LIMIT $1
	`, cfg.ClientLimit)
	if err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		tok, err := tokens.Issue(auth.Actor{UserID: id, Role: auth.RoleClient})
		if err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Clients = append(dataPool.Clients, clientAccount{ID: id, Token: tok})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `
		SELECT id, provider_id FROM timeslots
		WHERE is_booked = false AND day > current_date
		ORDER BY random()
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	for rows.Next() {
		var s slotRef
		if err := rows.Scan(&s.ID, &s.ProviderID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, s)
		dataPool.slotsByProvider[s.ProviderID] = append(dataPool.slotsByProvider[s.ProviderID], s.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Clients) == 0 {
		return nil, fmt.Errorf("no clients loaded")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no slots loaded")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", "duration", s.config.Duration, "workers", s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < c.BookingRatio:
			s.doBooking(ctx, rng)
		case r < c.BookingRatio+c.CancelRatio:
			s.doCancel(ctx, rng)
		case r < c.BookingRatio+c.CancelRatio+c.RescheduleRatio:
			s.doReschedule(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doListMine(ctx, rng)
			case 1:
				s.doDiscover(ctx, rng)
			case 2:
				s.doUnreadCount(ctx, rng)
			}
		}
	}
}

// call sends one request and reports the status; 409 and 422 count as expected contention.
func (s *Simulator) call(ctx context.Context, method, path, token string, body any, out any) (status int, latency time.Duration, err error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency = time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, err
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, latency, nil
}

func record(ctx context.Context, om *OperationMetrics, status int, latency time.Duration, err error, ok int) {
	if ctx.Err() != nil {
		return
	}
	contention := status == http.StatusConflict || status == http.StatusUnprocessableEntity || status == http.StatusTooManyRequests
	om.Record(latency, err == nil && status == ok, err == nil && contention)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	ci := rng.Intn(len(s.pool.Clients))
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	status, latency, err := s.call(ctx, http.MethodPost, "/appointments", s.pool.Clients[ci].Token,
		map[string]string{"timeslot_id": slot.ID.String()}, &resp)
	if err == nil && status == http.StatusCreated && resp.ID != uuid.Nil {
		s.pool.AddBooking(booking{ID: resp.ID, Client: ci, ProviderID: slot.ProviderID})
	}
	record(ctx, &s.metrics.Booking, status, latency, err, http.StatusCreated)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeBooking(rng)
	if !ok {
		return
	}
	status, latency, err := s.call(ctx, http.MethodPost, "/appointments/"+b.ID.String()+"/cancel",
		s.pool.Clients[b.Client].Token, nil, nil)
	record(ctx, &s.metrics.Cancel, status, latency, err, http.StatusOK)
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.PeekBooking(rng)
	if !ok {
		return
	}
	candidates := s.pool.slotsByProvider[b.ProviderID]
	if len(candidates) == 0 {
		return
	}
	target := candidates[rng.Intn(len(candidates))]

	status, latency, err := s.call(ctx, http.MethodPost, "/appointments/"+b.ID.String()+"/reschedule",
		s.pool.Clients[b.Client].Token, map[string]string{"new_timeslot_id": target.String()}, nil)
	record(ctx, &s.metrics.Reschedule, status, latency, err, http.StatusOK)
}

func (s *Simulator) doListMine(ctx context.Context, rng *rand.Rand) {
	c := s.pool.Clients[rng.Intn(len(s.pool.Clients))]
	status, latency, err := s.call(ctx, http.MethodGet, "/appointments/me", c.Token, nil, nil)
	record(ctx, &s.metrics.ListMine, status, latency, err, http.StatusOK)
}

func (s *Simulator) doDiscover(ctx context.Context, rng *rand.Rand) {
	c := s.pool.Clients[rng.Intn(len(s.pool.Clients))]
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	status, latency, err := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/providers/%s/slots?available=true", slot.ProviderID), c.Token, nil, nil)
	record(ctx, &s.metrics.Discover, status, latency, err, http.StatusOK)
}

func (s *Simulator) doUnreadCount(ctx context.Context, rng *rand.Rand) {
	c := s.pool.Clients[rng.Intn(len(s.pool.Clients))]
	status, latency, err := s.call(ctx, http.MethodGet, "/notifications/unread/count", c.Token, nil, nil)
	record(ctx, &s.metrics.UnreadCounts, status, latency, err, http.StatusOK)
}

// verifyInvariants checks the store after the run: no slot holds two active
// appointments and the booked flag matches the active appointment.
func verifyInvariants(ctx context.Context, pool *pgxpool.Pool) error {
	var doubleBooked, mismatched int
	err := pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM (
				SELECT timeslot_id FROM appointments
				WHERE status = 'booked'
				GROUP BY timeslot_id HAVING count(*) > 1
			) d),
			(SELECT count(*) FROM timeslots t
			 WHERE t.is_booked <> EXISTS (
				SELECT 1 FROM appointments a
				WHERE a.timeslot_id = t.id AND a.status = 'booked'
			 ))
	`).Scan(&doubleBooked, &mismatched)
	if err != nil {
		return err
	}
	if doubleBooked > 0 || mismatched > 0 {
		return fmt.Errorf("%d double-booked slots, %d slots with a stale booked flag", doubleBooked, mismatched)
	}
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("List mine", &s.metrics.ListMine)
	printOperationReport("Discover slots", &s.metrics.Discover)
	printOperationReport("Unread count", &s.metrics.UnreadCounts)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, low, high, p50, p95 := om.Stats()

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
		avg.Round(time.Millisecond), low.Round(time.Millisecond), high.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

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
