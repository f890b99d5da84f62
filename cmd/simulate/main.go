package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-booking/internal/availability"
	"github.com/clinicdesk/clinic-booking/internal/booking"
	"github.com/clinicdesk/clinic-booking/internal/clinicapi"
	"github.com/clinicdesk/clinic-booking/internal/config"
	"github.com/clinicdesk/clinic-booking/internal/slots"
)

// The simulator drives full booking workflows (draft, debounced
// availability check, gated submit) against a running backend and reports
// how often the gate blocked, how often the backend rejected, and how the
// latencies spread.

type SimConfig struct {
	APIBaseURL     string
	Duration       time.Duration
	Workers        int
	EmergencyRatio float64
	RescheduleRatio float64
	Debounce       time.Duration
	CacheTTL       time.Duration
}

type DataPool struct {
	Patients []clinicapi.Patient

	mu           sync.RWMutex
	appointments []string
}

func (dp *DataPool) AddAppointment(id string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return "", false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Blocked   int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, blocked bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if blocked {
		atomic.AddInt64(&om.Blocked, 1)
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
	Booking    OperationMetrics
	Reschedule OperationMetrics
	List       OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *clinicapi.Client
	log     zerolog.Logger
	metrics Metrics
	grid    []string
}

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "simulate").Logger()

	baseCfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	cfg := loadSimConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("emergency_ratio", cfg.EmergencyRatio).
		Float64("reschedule_ratio", cfg.RescheduleRatio).
		Msg("simulator starting")

	client := clinicapi.New(cfg.APIBaseURL, clinicapi.Options{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Session:    clinicapi.StaticSession{BearerToken: baseCfg.APIToken, Actor: baseCfg.ActorID},
		Logger:     zerolog.Nop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	patients, err := client.SearchPatients(ctx, "")
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("load patients")
	}
	if len(patients) == 0 {
		log.Fatal().Msg("no patients available, run the seeder first")
	}
	log.Info().Int("patients", len(patients)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{Patients: patients},
		client: client,
		log:    log,
		grid:   slots.Generate(),
	}

	sim.Run()
	sim.PrintReport()
}

func loadSimConfig(base config.Config) SimConfig {
	return SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", base.APIBaseURL),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 5),
		EmergencyRatio:  getFloat("SIM_EMERGENCY_RATIO", 0.1),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.2),
		Debounce:        getDuration("SIM_DEBOUNCE", 50*time.Millisecond),
		CacheTTL:        base.CacheTTL,
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.EmergencyRatio < 0 || cfg.EmergencyRatio > 1 {
		return fmt.Errorf("SIM_EMERGENCY_RATIO must be within [0, 1]")
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Msg("starting simulation")

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
			case r < s.config.RescheduleRatio:
				s.doReschedule(ctx, rng)
			case r < s.config.RescheduleRatio+0.1:
				s.doList(ctx)
			default:
				s.doBooking(ctx, rng)
			}
		}
	}
}

// doBooking runs one complete workflow: fill the draft field by field,
// wait for the debounced availability check to settle, submit if the gate
// opens.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	cache := availability.NewMemoryCache()
	checker := availability.NewCachedChecker(s.client, cache, s.config.CacheTTL, zerolog.Nop())
	monitor := availability.NewMonitor(checker, availability.MonitorOptions{
		Debounce: s.config.Debounce,
		Logger:   zerolog.Nop(),
	})
	defer monitor.Close()

	gw := booking.NewGateway(s.client, booking.NopNotifier{}, zerolog.Nop())
	ctl := booking.NewController(gw, monitor, booking.ControllerOptions{Logger: zerolog.Nop()})

	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	emergency := rng.Float64() < s.config.EmergencyRatio

	ctl.SelectPatient(&patient)
	ctl.SetDate(time.Now().UTC().AddDate(0, 0, rng.Intn(7)).Format("2006-01-02"))
	ctl.SetTime(s.grid[rng.Intn(len(s.grid))])
	ctl.SetDuration(slots.Durations[rng.Intn(len(slots.Durations))])
	ctl.SetEmergency(emergency)

	start := time.Now()

	if !emergency && !s.waitForSettled(ctx, monitor) {
		s.metrics.Booking.Record(time.Since(start), false, true)
		return
	}

	appt, err := ctl.Submit(ctx)
	latency := time.Since(start)

	switch {
	case err == nil:
		s.pool.AddAppointment(appt.AppointmentID)
		s.metrics.Booking.Record(latency, true, false)
	case errors.Is(err, booking.ErrSubmissionBlocked):
		s.metrics.Booking.Record(latency, false, true)
	default:
		s.metrics.Booking.Record(latency, false, false)
	}
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	duration := slots.Durations[rng.Intn(len(slots.Durations))]
	date := time.Now().UTC().AddDate(0, 0, rng.Intn(7))
	clock := s.grid[rng.Intn(len(s.grid))]
	startAt, endAt, err := slots.Interval(date.Format("2006-01-02"), clock, duration)
	if err != nil {
		return
	}

	gw := booking.NewGateway(s.client, booking.NopNotifier{}, zerolog.Nop())
	startStr := clinicapi.FormatInstant(startAt)
	endStr := clinicapi.FormatInstant(endAt)

	start := time.Now()
	_, err = gw.Update(ctx, id, clinicapi.UpdateAppointmentRequest{
		Start:             &startStr,
		End:               &endStr,
		DurationInMinutes: &duration,
	})
	s.metrics.Reschedule.Record(time.Since(start), err == nil, false)
}

func (s *Simulator) doList(ctx context.Context) {
	start := time.Now()
	_, err := s.client.ListAppointments(ctx)
	s.metrics.List.Record(time.Since(start), err == nil, false)
}

// waitForSettled polls the monitor until the check leaves its transient
// states or the budget runs out.
func (s *Simulator) waitForSettled(ctx context.Context, monitor *availability.Monitor) bool {
	deadline := time.Now().Add(s.config.Debounce*4 + 5*time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(10 * time.Millisecond):
		}
		switch monitor.State() {
		case availability.StateAvailable:
			return true
		case availability.StateUnavailable, availability.StateUnverified:
			return false
		}
	}
	return false
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking workflow", &s.metrics.Booking)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("List", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	blocked := atomic.LoadInt64(&om.Blocked)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if blocked > 0 {
		fmt.Printf("  Blocked by gate: %d (%.1f%%)\n", blocked, float64(blocked)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
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
