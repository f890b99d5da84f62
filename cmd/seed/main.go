package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-booking/internal/clinicapi"
	"github.com/clinicdesk/clinic-booking/internal/config"
	"github.com/clinicdesk/clinic-booking/internal/slots"
)

// seed populates a running backend (normally the stub) with fake patients
// and a spread of appointments over the coming week, so the booking
// workflow has realistic conflicts to run into.
func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "seed").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	patientCount := getInt("SEED_PATIENTS", 50)
	apptCount := getInt("SEED_APPOINTMENTS", 40)

	client := clinicapi.New(cfg.APIBaseURL, clinicapi.Options{
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Session:    clinicapi.StaticSession{BearerToken: cfg.APIToken, Actor: cfg.ActorID},
		Logger:     log,
	})

	gofakeit.Seed(time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	patients, err := seedPatients(ctx, cfg, patientCount, log)
	if err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	if err := seedAppointments(ctx, client, patients, apptCount, log); err != nil {
		log.Fatal().Err(err).Msg("seed appointments")
	}

	log.Info().Msg("seed complete")
}

// seedPatients posts directly to the stub's patient endpoint; patient
// creation is not part of the booking client's surface.
func seedPatients(ctx context.Context, cfg config.Config, count int, log zerolog.Logger) ([]string, error) {
	log.Info().Int("count", count).Msg("seeding patients")

	hc := &http.Client{Timeout: cfg.HTTPTimeout}
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id, err := postPatient(ctx, hc, cfg.APIBaseURL, gofakeit.Name(), gofakeit.Phone())
		if err != nil {
			return nil, fmt.Errorf("create patient: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func postPatient(ctx context.Context, hc *http.Client, baseURL, name, contact string) (string, error) {
	body := fmt.Sprintf(`{"name":%q,"contact":%q}`, name, contact)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/patients",
		strings.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var env struct {
		Success bool `json:"success"`
		Data    struct {
			PatientID string `json:"patient_id"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", err
	}
	if !env.Success {
		return "", fmt.Errorf("backend rejected patient: %s", env.Error)
	}
	return env.Data.PatientID, nil
}

func seedAppointments(ctx context.Context, client *clinicapi.Client, patients []string, count int, log zerolog.Logger) error {
	log.Info().Int("count", count).Msg("seeding appointments")

	grid := slots.Generate()
	today := time.Now().UTC().Truncate(24 * time.Hour)

	created := 0
	for attempts := 0; created < count && attempts < count*4; attempts++ {
		date := today.AddDate(0, 0, rand.Intn(7)).Format("2006-01-02")
		clock := grid[rand.Intn(len(grid))]
		duration := slots.Durations[rand.Intn(len(slots.Durations))]

		start, end, err := slots.Interval(date, clock, duration)
		if err != nil {
			continue
		}

		_, err = client.CreateAppointment(ctx, clinicapi.CreateAppointmentRequest{
			PatientID:         patients[rand.Intn(len(patients))],
			Start:             clinicapi.FormatInstant(start),
			End:               clinicapi.FormatInstant(end),
			DurationInMinutes: duration,
		})
		if err != nil {
			log.Debug().Err(err).Msg("appointment rejected, retrying")
			continue
		}
		created++
	}

	log.Info().Int("created", created).Msg("appointments seeded")
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
