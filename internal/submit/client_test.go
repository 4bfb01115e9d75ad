package submit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/precoposto/precoposto/internal/blobstore"
	"github.com/precoposto/precoposto/internal/capture"
	"github.com/precoposto/precoposto/internal/exif"
	"github.com/precoposto/precoposto/internal/models"
	"github.com/precoposto/precoposto/internal/state"
)

func setupSubmitter(t *testing.T) (*Submitter, *state.Service, *blobstore.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	stateSvc, err := state.NewService(db, "", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	durable, err := blobstore.NewSQLiteBackend(db)
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	blobs := blobstore.New(zerolog.Nop(), durable, blobstore.NewMemoryBackend())

	loc := time.UTC
	extractor := exif.NewExtractor(loc, zerolog.Nop())
	validator := capture.NewValidator(extractor, loc, nil)
	orch := capture.New(extractor, validator, blobs, stateSvc, 0, zerolog.Nop())

	now := func() time.Time { return time.Date(2026, 9, 1, 8, 5, 0, 0, time.UTC) }
	submitter := NewSubmitter(stateSvc, NewClient(zerolog.Nop()), orch, now, zerolog.Nop())
	return submitter, stateSvc, blobs
}

func fillPeriod(t *testing.T, svc *state.Service, period models.Period) {
	t.Helper()
	full := models.PriceBlock{Ethanol: "3,89", Regular: "5,79", Additized: "5,99", Diesel: "6,19"}
	for _, id := range state.VisibleStationIDs(svc.Load()) {
		if err := svc.MutateRecord(period, id, func(rec *models.StationRecord) {
			rec.Cash = full
			rec.Term = full
		}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSubmit_Success(t *testing.T) {
	submitter, svc, blobs := setupSubmitter(t)
	fillPeriod(t, svc, models.PeriodMorning)

	key := blobstore.ImageKey(models.PeriodMorning, models.ReferenceStationID)
	if err := blobs.Save(key, []byte("photo"), nil); err != nil {
		t.Fatal(err)
	}
	if err := svc.MutateRecord(models.PeriodMorning, models.ReferenceStationID, func(rec *models.StationRecord) {
		rec.Photo = "cGhvdG8="
	}); err != nil {
		t.Fatal(err)
	}

	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	if err := svc.SetWebhookURL(server.URL); err != nil {
		t.Fatal(err)
	}

	if err := submitter.Submit(models.PeriodMorning); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if received["Período"] != "Manhã" {
		t.Errorf("Período = %q, want Manhã", received["Período"])
	}
	if received["Posto Referência - Etanol (Vista)"] != "3.89" {
		t.Errorf("ethanol = %q, want normalized 3.89", received["Posto Referência - Etanol (Vista)"])
	}

	st := svc.Load()
	if st.Meta.LastSent[models.PeriodMorning].IsZero() {
		t.Error("LastSent not stamped")
	}
	if got := st.Periods[models.PeriodAfternoon][models.ReferenceStationID].Cash.Ethanol; got != "3,89" {
		t.Errorf("afternoon not prefilled, ethanol = %q", got)
	}
	if st.Periods[models.PeriodMorning][models.ReferenceStationID].Photo != "" {
		t.Error("morning photo not cleared after submission")
	}
	if _, ok := blobs.Get(key); ok {
		t.Error("morning blob not purged after submission")
	}
}

func TestSubmit_Non2xxLeavesStateUnsubmitted(t *testing.T) {
	submitter, svc, _ := setupSubmitter(t)
	fillPeriod(t, svc, models.PeriodMorning)
	if err := svc.MutateRecord(models.PeriodMorning, models.ReferenceStationID, func(rec *models.StationRecord) {
		rec.Photo = "cGhvdG8="
	}); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()
	if err := svc.SetWebhookURL(server.URL); err != nil {
		t.Fatal(err)
	}

	if err := submitter.Submit(models.PeriodMorning); err == nil {
		t.Fatal("Submit succeeded against a 404 webhook")
	}

	// No partial clear: a retry must resend the same data.
	st := svc.Load()
	if !st.Meta.LastSent[models.PeriodMorning].IsZero() {
		t.Error("LastSent stamped on failure")
	}
	if st.Periods[models.PeriodMorning][models.ReferenceStationID].Photo == "" {
		t.Error("photo cleared on failed submission")
	}
}

func TestSubmit_RetriesServerErrors(t *testing.T) {
	submitter, svc, _ := setupSubmitter(t)
	fillPeriod(t, svc, models.PeriodAfternoon)

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	if err := svc.SetWebhookURL(server.URL); err != nil {
		t.Fatal(err)
	}

	if err := submitter.Submit(models.PeriodAfternoon); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if calls < 2 {
		t.Errorf("calls = %d, want a retry after 503", calls)
	}
}

func TestSubmit_IncompletePeriod(t *testing.T) {
	submitter, _, _ := setupSubmitter(t)

	err := submitter.Submit(models.PeriodMorning)
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("err = %v, want ErrIncomplete", err)
	}
}

func TestSubmit_NoChangeFlagSatisfiesCompleteness(t *testing.T) {
	submitter, svc, _ := setupSubmitter(t)

	for _, id := range state.VisibleStationIDs(svc.Load()) {
		if err := svc.MutateRecord(models.PeriodMorning, id, func(rec *models.StationRecord) {
			rec.NoChange = true
		}); err != nil {
			t.Fatal(err)
		}
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()
	if err := svc.SetWebhookURL(server.URL); err != nil {
		t.Fatal(err)
	}

	if err := submitter.Submit(models.PeriodMorning); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}
