// Package state owns the canonical per-period, per-station survey aggregate.
// The whole aggregate is serialized under a single durable key on every
// mutation; loading always succeeds, rebuilding defaults on missing or
// corrupt data.
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/precoposto/precoposto/internal/models"
)

// stateKey is the fixed durable key the aggregate lives under.
const stateKey = "precoposto:state:v1"

// ErrUnknownStation reports a mutation addressed to a station that is not in
// the aggregate.
var ErrUnknownStation = errors.New("unknown station")

// Service is the process-wide state store: a write-through in-memory cache
// over the durable key, with synchronous same-process change notification.
type Service struct {
	db         *sql.DB
	log        zerolog.Logger
	envWebhook string
	now        func() time.Time

	mu          sync.Mutex
	cache       *models.AppState
	subscribers []func(*models.AppState)
}

// NewService creates the backing table if needed and returns the store.
// envWebhook is the environment-supplied webhook override, possibly empty.
func NewService(db *sql.DB, envWebhook string, log zerolog.Logger) (*Service, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS app_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("create app_state table: %w", err)
	}
	return &Service{db: db, envWebhook: envWebhook, log: log, now: time.Now}, nil
}

// Load returns a copy of the current aggregate. Missing or corrupt persisted
// data yields a freshly built default (one competitor) instead of an error;
// stored data of an older shape is upgraded by merging into a default
// skeleton.
func (s *Service) Load() *models.AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked().Clone()
}

func (s *Service) loadLocked() *models.AppState {
	if s.cache != nil {
		return s.cache
	}

	var raw string
	err := s.db.QueryRow(`SELECT value FROM app_state WHERE key = ?`, stateKey).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.cache = defaultState(1)
		return s.cache
	case err != nil:
		s.log.Warn().Err(err).Msg("state read failed, starting from defaults")
		s.cache = defaultState(1)
		return s.cache
	}

	var stored models.AppState
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.log.Warn().Err(err).Msg("corrupt persisted state, starting from defaults")
		s.cache = defaultState(1)
		return s.cache
	}

	s.cache = mergeState(&stored)
	return s.cache
}

// Save stamps the last-edited timestamp, persists the whole aggregate
// atomically and notifies subscribers synchronously.
func (s *Service) Save(st *models.AppState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = st.Clone()
	return s.persistLocked()
}

func (s *Service) persistLocked() error {
	s.cache.Meta.LastEdited = s.now()
	raw, err := json.Marshal(s.cache)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO app_state (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, stateKey, string(raw))
	if err != nil {
		return fmt.Errorf("persist state: %w", err)
	}

	snapshot := s.cache.Clone()
	for _, fn := range s.subscribers {
		fn(snapshot)
	}
	return nil
}

// Subscribe registers a callback invoked synchronously after every persisted
// mutation, with a copy of the new aggregate. There is no unsubscribe; the
// service lives for the process lifetime.
func (s *Service) Subscribe(fn func(*models.AppState)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// update runs a read-modify-write cycle over the canonical aggregate.
func (s *Service) update(mutate func(*models.AppState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.loadLocked()
	if err := mutate(st); err != nil {
		return err
	}
	return s.persistLocked()
}

// SetCompetitorCount resizes the visible competitor slots. Newly visible
// slots get default-named empty records in both periods; slots beyond the new
// count are deleted, up to the fixed tracking maximum, so shrinking and
// growing again never resurrects stale data. Out-of-range counts are clamped.
func (s *Service) SetCompetitorCount(n int) error {
	clamped := clampCompetitorCount(n)
	if clamped != n {
		s.log.Warn().Int("requested", n).Int("using", clamped).Msg("competitor count out of range, clamping")
	}
	return s.update(func(st *models.AppState) error {
		st.Config.CompetitorCount = clamped

		for i := 1; i <= clamped; i++ {
			id := models.CompetitorID(i)
			if _, ok := st.Meta.StationNames[id]; !ok {
				st.Meta.StationNames[id] = models.DefaultStationName(id)
			}
			for _, p := range models.Periods() {
				if st.Periods[p][id] == nil {
					st.Periods[p][id] = models.NewStationRecord(id, st.Meta.StationNames[id])
				}
			}
		}

		for i := clamped + 1; i <= models.MaxTrackedSlots; i++ {
			id := models.CompetitorID(i)
			delete(st.Meta.StationNames, id)
			for _, p := range models.Periods() {
				delete(st.Periods[p], id)
			}
		}
		return nil
	})
}

// ClearPeriod resets every record in the period to its empty default while
// preserving station names. The caller is responsible for purging the
// corresponding blob store entries.
func (s *Service) ClearPeriod(period models.Period) error {
	if !period.Valid() {
		return fmt.Errorf("unknown period %q", period)
	}
	return s.update(func(st *models.AppState) error {
		bucket := st.Periods[period]
		for id := range bucket {
			name := st.Meta.StationNames[id]
			if name == "" {
				name = models.DefaultStationName(id)
			}
			bucket[id] = models.NewStationRecord(id, name)
		}
		return nil
	})
}

// RenameStation sets a station's display name in the name table and in both
// period records.
func (s *Service) RenameStation(id, name string) error {
	return s.update(func(st *models.AppState) error {
		if _, ok := st.Meta.StationNames[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStation, id)
		}
		st.Meta.StationNames[id] = name
		for _, p := range models.Periods() {
			if rec := st.Periods[p][id]; rec != nil {
				rec.Name = name
			}
		}
		return nil
	})
}

// SetWebhookURL stores the user-configured webhook URL.
func (s *Service) SetWebhookURL(url string) error {
	return s.update(func(st *models.AppState) error {
		st.Config.WebhookURL = url
		return nil
	})
}

// MutateRecord applies an in-place edit to one station record and persists.
func (s *Service) MutateRecord(period models.Period, stationID string, fn func(*models.StationRecord)) error {
	if !period.Valid() {
		return fmt.Errorf("unknown period %q", period)
	}
	return s.update(func(st *models.AppState) error {
		rec := st.Periods[period][stationID]
		if rec == nil {
			return fmt.Errorf("%w: %s", ErrUnknownStation, stationID)
		}
		fn(rec)
		return nil
	})
}

// CompleteSubmission records a successful webhook submission. A morning
// submission additionally prefills the afternoon: price fields are copied
// verbatim into the afternoon records, then the morning photos are cleared
// and its no-change flags reset.
func (s *Service) CompleteSubmission(period models.Period, at time.Time) error {
	if !period.Valid() {
		return fmt.Errorf("unknown period %q", period)
	}
	return s.update(func(st *models.AppState) error {
		st.Meta.LastSent[period] = at
		if period != models.PeriodMorning {
			return nil
		}
		for id, rec := range st.Periods[models.PeriodMorning] {
			if target := st.Periods[models.PeriodAfternoon][id]; target != nil {
				target.Cash = rec.Cash
				target.Term = rec.Term
			}
			rec.Photo = ""
			rec.Metadata = nil
			rec.NoChange = false
		}
		return nil
	})
}

// WebhookURL resolves the submission endpoint with the full override
// precedence chain.
func (s *Service) WebhookURL() string {
	return resolveWebhookURL(internalWebhookOverride, s.envWebhook, s.Load().Config.WebhookURL)
}
