package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-booking/internal/availability"
	"github.com/clinicdesk/clinic-booking/internal/booking"
	"github.com/clinicdesk/clinic-booking/internal/clinicapi"
	"github.com/clinicdesk/clinic-booking/internal/config"
	redisclient "github.com/clinicdesk/clinic-booking/internal/redis"
)

// bookctl runs a single booking (or reschedule) workflow from the command
// line: look up the patient, wait for the debounced availability check to
// settle, submit if the gate opens.

type stderrNotifier struct{}

func (stderrNotifier) Success(msg string) { fmt.Fprintf(os.Stderr, "OK   %s\n", msg) }
func (stderrNotifier) Error(msg, detail string) {
	if detail != "" {
		fmt.Fprintf(os.Stderr, "FAIL %s: %s\n", msg, detail)
		return
	}
	fmt.Fprintf(os.Stderr, "FAIL %s\n", msg)
}

func main() {
	var (
		patientQuery = flag.String("patient-query", "", "name or contact fragment to find the patient")
		date         = flag.String("date", "", "appointment date, YYYY-MM-DD")
		clock        = flag.String("time", "", "slot start, HH:MM")
		duration     = flag.Int("duration", 30, "duration in minutes")
		emergency    = flag.Bool("emergency", false, "book even when the slot reads unavailable")
		rescheduleID = flag.String("reschedule", "", "appointment id to move instead of creating")
		list         = flag.Bool("list", false, "list appointments and exit")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	if cfg.Env == "dev" {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	client := clinicapi.New(cfg.APIBaseURL, clinicapi.Options{
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Session:    clinicapi.StaticSession{BearerToken: cfg.APIToken, Actor: cfg.ActorID},
		Logger:     log,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	gw := booking.NewGateway(client, stderrNotifier{}, log)

	if *list {
		if err := printAppointments(ctx, gw); err != nil {
			log.Fatal().Err(err).Msg("list appointments")
		}
		return
	}

	if *patientQuery == "" && *rescheduleID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cache, closeCache := buildCache(cfg, log)
	defer closeCache()

	checker := availability.NewCachedChecker(client, cache, cfg.CacheTTL, log)
	monitor := availability.NewMonitor(checker, availability.MonitorOptions{
		Debounce:             cfg.Debounce,
		ExcludeAppointmentID: *rescheduleID,
		Logger:               log,
		OnChange: func(st availability.State) {
			fmt.Fprintf(os.Stderr, "availability: %s\n", st)
		},
	})
	defer monitor.Close()

	opts := booking.ControllerOptions{
		Session:  clinicapi.StaticSession{BearerToken: cfg.APIToken, Actor: cfg.ActorID},
		Notifier: stderrNotifier{},
		Logger:   log,
	}

	if *rescheduleID != "" {
		err = runReschedule(ctx, gw, monitor, opts, *rescheduleID, *date, *clock, *duration, *emergency)
	} else {
		err = runBooking(ctx, client, gw, monitor, opts, *patientQuery, *date, *clock, *duration, *emergency)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("workflow failed")
	}
}

func runBooking(ctx context.Context, client *clinicapi.Client, gw *booking.Gateway, monitor *availability.Monitor, opts booking.ControllerOptions, query, date, clock string, duration int, emergency bool) error {
	patients, err := client.SearchPatients(ctx, query)
	if err != nil {
		return err
	}
	if len(patients) == 0 {
		return fmt.Errorf("no patient matches %q", query)
	}
	if len(patients) > 1 {
		fmt.Fprintf(os.Stderr, "%d patients match %q, taking the first:\n", len(patients), query)
		for _, p := range patients {
			contact := ""
			if p.Contact != nil {
				contact = *p.Contact
			}
			fmt.Fprintf(os.Stderr, "  %s  %s  %s\n", p.PatientID, p.Name, contact)
		}
	}
	patient := patients[0]

	ctl := booking.NewController(gw, monitor, opts)
	ctl.SelectPatient(&patient)
	ctl.SetDate(date)
	ctl.SetTime(clock)
	ctl.SetDuration(duration)
	ctl.SetEmergency(emergency)

	if !emergency {
		if st := waitForSettled(ctx, monitor); st != availability.StateAvailable {
			return fmt.Errorf("slot did not verify as available (state %s)", st)
		}
	}

	appt, err := ctl.Submit(ctx)
	if err != nil {
		var fieldErrs booking.FieldErrors
		if errors.As(err, &fieldErrs) {
			for field, msg := range fieldErrs {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
			}
		}
		return err
	}

	fmt.Printf("booked %s for %s at %s (%d min)\n",
		appt.AppointmentID, patient.Name, appt.StartDatetime, appt.DurationInMinutes)
	return nil
}

func runReschedule(ctx context.Context, gw *booking.Gateway, monitor *availability.Monitor, opts booking.ControllerOptions, id, date, clock string, duration int, emergency bool) error {
	appts, err := gw.List(ctx)
	if err != nil {
		return err
	}
	var current *clinicapi.Appointment
	for i := range appts {
		if appts[i].AppointmentID == id {
			current = &appts[i].Appointment
			break
		}
	}
	if current == nil {
		return fmt.Errorf("appointment %s not found", id)
	}

	ctl, err := booking.NewRescheduleController(gw, monitor, *current, opts)
	if err != nil {
		return err
	}
	if date != "" {
		ctl.SetDate(date)
	}
	if clock != "" {
		ctl.SetTime(clock)
	}
	if duration > 0 {
		ctl.SetDuration(duration)
	}
	ctl.SetEmergency(emergency)

	if !emergency {
		if st := waitForSettled(ctx, monitor); st != availability.StateAvailable {
			return fmt.Errorf("slot did not verify as available (state %s)", st)
		}
	}

	appt, err := ctl.SubmitReschedule(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("moved %s to %s (%d min)\n", appt.AppointmentID, appt.StartDatetime, appt.DurationInMinutes)
	return nil
}

func printAppointments(ctx context.Context, gw *booking.Gateway) error {
	appts, err := gw.List(ctx)
	if err != nil {
		return err
	}
	for _, a := range appts {
		name := "-"
		if a.Patient != nil {
			name = a.Patient.Name
		}
		status := "-"
		if a.Status != nil {
			status = *a.Status
		}
		fmt.Printf("%s  %s  %-8s  %-3dmin  %s\n",
			a.AppointmentID, a.StartDatetime, status, a.DurationInMinutes, name)
	}
	return nil
}

// buildCache prefers the shared redis cache so settled results survive
// across bookctl invocations; without REDIS_ADDR it falls back in-process.
func buildCache(cfg config.Config, log zerolog.Logger) (availability.Cache, func()) {
	if cfg.RedisAddr == "" {
		return availability.NewMemoryCache(), func() {}
	}
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-process cache")
		return availability.NewMemoryCache(), func() {}
	}
	return redisclient.NewResultCache(rdb), func() { rdb.Close() }
}

func waitForSettled(ctx context.Context, monitor *availability.Monitor) availability.State {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return monitor.State()
		case <-time.After(25 * time.Millisecond):
		}
		switch st := monitor.State(); st {
		case availability.StateAvailable, availability.StateUnavailable, availability.StateUnverified:
			return st
		}
	}
	return monitor.State()
}
