package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
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

	"github.com/carelink/televisit/internal/booking"
	"github.com/carelink/televisit/internal/config"
	"github.com/carelink/televisit/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	PayRatio     float64
	ReadRatio    float64
	PatientLimit int
	DoctorLimit  int
	Horizon      int // days ahead to generate booking targets for
	SlotDuration time.Duration
	PostgresDSN  string
}

// BookingTarget is a concrete (doctor, date, slot label) triple the
// simulator can try to book. Many workers hitting the same target is
// the whole point.
type BookingTarget struct {
	DoctorID uuid.UUID
	Date     string
	TimeSlot string
}

type DataPool struct {
	Patients     []uuid.UUID
	Doctors      []uuid.UUID
	Targets      []BookingTarget
	mu           sync.RWMutex
	appointments []uuid.UUID // Thread-safe list of created appointment IDs
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment() (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	idx := rand.Intn(len(dp.appointments))
	return dp.appointments[idx], true
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

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking       OperationMetrics
	Pay           OperationMetrics
	ReadByID      OperationMetrics
	ListByPatient OperationMetrics
	ListSlots     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f pay=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.PayRatio, cfg.ReadRatio)

	// Load data from Postgres
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d doctors, %d booking targets",
		len(dataPool.Patients), len(dataPool.Doctors), len(dataPool.Targets))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	// Run simulation
	sim.Run()

	// Print report
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		PayRatio:     getFloat("SIM_PAY_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 2000),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 50),
		Horizon:      getInt("SIM_HORIZON_DAYS", 7),
		SlotDuration: baseCfg.SlotDuration,
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.PayRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.PayRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Horizon <= 0 {
		return fmt.Errorf("SIM_HORIZON_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	// Load patients
	rows, err := pool.Query(ctx, `
		SELECT id FROM patients LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}

	// Load availability windows and expand them into concrete booking
	// targets over the horizon. Slot labels must match what the API
	// would produce, so go through the same generator.
	rows, err = pool.Query(ctx, `
		SELECT w.doctor_id, w.weekday, w.start_time, w.end_time, w.status
		FROM availability_windows w
		WHERE w.status = 'Available'
		  AND w.doctor_id IN (SELECT id FROM doctors LIMIT $1)
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load availability windows: %w", err)
	}
	defer rows.Close()

	type windowRow struct {
		doctorID   uuid.UUID
		weekday    int
		start, end string
		status     string
	}
	var windows []windowRow
	doctorSeen := make(map[uuid.UUID]bool)
	for rows.Next() {
		var wr windowRow
		if err := rows.Scan(&wr.doctorID, &wr.weekday, &wr.start, &wr.end, &wr.status); err != nil {
			return nil, err
		}
		windows = append(windows, wr)
		if !doctorSeen[wr.doctorID] {
			doctorSeen[wr.doctorID] = true
			dataPool.Doctors = append(dataPool.Doctors, wr.doctorID)
		}
	}

	today := time.Now()
	for day := 0; day < cfg.Horizon; day++ {
		date := today.AddDate(0, 0, day)
		for _, wr := range windows {
			if int(date.Weekday()) != wr.weekday {
				continue
			}
			w := booking.AvailabilityWindow{
				DoctorID:  wr.doctorID,
				Weekday:   time.Weekday(wr.weekday),
				StartTime: wr.start,
				EndTime:   wr.end,
				Status:    booking.WindowStatus(wr.status),
			}
			slots, err := booking.GenerateSlots(w, cfg.SlotDuration)
			if err != nil {
				return nil, fmt.Errorf("generate slots for doctor %s: %w", wr.doctorID, err)
			}
			for _, slot := range slots {
				dataPool.Targets = append(dataPool.Targets, BookingTarget{
					DoctorID: wr.doctorID,
					Date:     date.Format("2006-01-02"),
					TimeSlot: slot.Label(),
				})
			}
		}
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Targets) == 0 {
		return nil, fmt.Errorf("no booking targets generated (seed doctors and availability first)")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			// Select operation based on ratios
			r := rng.Float64()
			if r < s.config.BookingRatio {
				s.doBooking(ctx, rng)
			} else if r < s.config.BookingRatio+s.config.PayRatio {
				s.doPay(ctx, rng)
			} else {
				// Read operations - distribute evenly
				readOp := rng.Intn(3)
				switch readOp {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doListByPatient(ctx, rng)
				case 2:
					s.doListSlots(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Targets) == 0 || len(s.pool.Patients) == 0 {
		return
	}

	target := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	body := map[string]string{
		"doctor_id":  target.DoctorID.String(),
		"patient_id": patientID.String(),
		"date":       target.Date,
		"time_slot":  target.TimeSlot,
	}

	start := time.Now()
	resp, err := s.post(ctx, "/appointments", body)
	latency := time.Since(start)

	if err != nil {
		s.metrics.Booking.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var result struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.ID != uuid.Nil {
			s.pool.AddAppointment(result.ID)
		}
		s.metrics.Booking.Record(latency, true, false)
	case http.StatusConflict:
		io.Copy(io.Discard, resp.Body)
		s.metrics.Booking.Record(latency, false, true)
	default:
		io.Copy(io.Discard, resp.Body)
		s.metrics.Booking.Record(latency, false, false)
	}
}

func (s *Simulator) doPay(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment()
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.post(ctx, fmt.Sprintf("/appointments/%s/pay", id), nil)
	latency := time.Since(start)

	if err != nil {
		s.metrics.Pay.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		s.metrics.Pay.Record(latency, true, false)
	case http.StatusConflict:
		s.metrics.Pay.Record(latency, false, true)
	default:
		s.metrics.Pay.Record(latency, false, false)
	}
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment()
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.get(ctx, fmt.Sprintf("/appointments/%s", id))
	latency := time.Since(start)

	if err != nil {
		s.metrics.ReadByID.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	s.metrics.ReadByID.Record(latency, resp.StatusCode == http.StatusOK, false)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Patients) == 0 {
		return
	}
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	resp, err := s.get(ctx, fmt.Sprintf("/appointments?patient_id=%s", patientID))
	latency := time.Since(start)

	if err != nil {
		s.metrics.ListByPatient.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	s.metrics.ListByPatient.Record(latency, resp.StatusCode == http.StatusOK, false)
}

func (s *Simulator) doListSlots(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Targets) == 0 {
		return
	}
	target := s.pool.Targets[rng.Intn(len(s.pool.Targets))]

	start := time.Now()
	resp, err := s.get(ctx, fmt.Sprintf("/doctors/%s/slots?date=%s", target.DoctorID, target.Date))
	latency := time.Since(start)

	if err != nil {
		s.metrics.ListSlots.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	s.metrics.ListSlots.Record(latency, resp.StatusCode == http.StatusOK, false)
}

func (s *Simulator) post(ctx context.Context, path string, body any) (*http.Response, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return s.client.Do(req)
}

func (s *Simulator) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return s.client.Do(req)
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println("=== Simulation Report ===")
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Pay", &s.metrics.Pay)
	printOperationReport("ReadByID", &s.metrics.ReadByID)
	printOperationReport("ListByPatient", &s.metrics.ListByPatient)
	printOperationReport("ListSlots", &s.metrics.ListSlots)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		fmt.Printf("%-14s no operations\n", name)
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%-14s total=%d success=%d conflict=%d error=%d\n",
		name, total, success, conflict, errCount)
	fmt.Printf("%-14s avg=%s min=%s max=%s p50=%s p95=%s\n",
		"", avg, min, max, p50, p95)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}
