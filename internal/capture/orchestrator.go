// Package capture runs the photo intake pipeline: extraction, same-day
// validation for gallery-sourced competitor photos, compression, blob
// persistence and the station-record update, strictly in that order.
package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/precoposto/precoposto/internal/blobstore"
	"github.com/precoposto/precoposto/internal/exif"
	"github.com/precoposto/precoposto/internal/imaging"
	"github.com/precoposto/precoposto/internal/metrics"
	"github.com/precoposto/precoposto/internal/models"
	"github.com/precoposto/precoposto/internal/state"
)

// Phase tracks where one station/period capture unit is in its lifecycle.
type Phase string

const (
	PhaseEmpty      Phase = "empty"
	PhaseProcessing Phase = "processing"
	PhasePreviewed  Phase = "previewed"
	PhaseErrorShown Phase = "error"
)

// Error is a user-actionable capture failure: the capture was discarded and
// prior photo state is untouched.
type Error struct {
	Reason     string
	Suggestion string
	Metadata   *models.CaptureMetadata
}

func (e *Error) Error() string { return e.Reason }

// Result is a successful capture or hydration outcome.
type Result struct {
	Photo    string                  `json:"photo"` // base64-encoded compressed JPEG
	Metadata *models.CaptureMetadata `json:"metadata,omitempty"`
	Width    int                     `json:"width,omitempty"`
	Height   int                     `json:"height,omitempty"`
}

// Orchestrator coordinates photo acquisition for every station/period key.
// Concurrent captures on the same key are a caller-side non-goal (the UI
// disables the control while processing); the orchestrator only tracks
// phases, it does not serialize them.
type Orchestrator struct {
	extractor *exif.Extractor
	validator *Validator
	blobs     *blobstore.Store
	state     *state.Service
	log       zerolog.Logger
	maxDim    int

	mu     sync.Mutex
	phases map[string]Phase
}

// New wires the pipeline. maxDim of zero or less selects the default bound.
func New(extractor *exif.Extractor, validator *Validator, blobs *blobstore.Store, st *state.Service, maxDim int, log zerolog.Logger) *Orchestrator {
	if maxDim <= 0 {
		maxDim = imaging.DefaultMaxDimension
	}
	return &Orchestrator{
		extractor: extractor,
		validator: validator,
		blobs:     blobs,
		state:     st,
		log:       log,
		maxDim:    maxDim,
		phases:    make(map[string]Phase),
	}
}

// Capture ingests one photo for a station and period. Gallery-sourced
// competitor photos are gated on the same-day policy; everything else is
// marked validated. The compressed artifact and its metadata are persisted
// and written through to the owning station record.
func (o *Orchestrator) Capture(period models.Period, stationID string, source Source, r io.Reader) (*Result, error) {
	key := blobstore.ImageKey(period, stationID)
	o.setPhase(key, PhaseProcessing)

	data, err := io.ReadAll(r)
	if err != nil {
		o.setPhase(key, PhaseErrorShown)
		metrics.CapturesTotal.WithLabelValues(stationID, "error").Inc()
		return nil, &Error{Reason: reasonProcessingError}
	}

	meta := o.extractor.Extract(bytes.NewReader(data))

	_, competitor := models.CompetitorSlot(stationID)
	if source == SourceGallery && competitor {
		res := o.validator.Validate(meta, stationID)
		if !res.Valid {
			o.setPhase(key, PhaseErrorShown)
			metrics.CapturesTotal.WithLabelValues(stationID, "rejected").Inc()
			o.log.Info().Str("station", stationID).Str("reason", res.Reason).Msg("capture rejected")
			return nil, &Error{Reason: res.Reason, Suggestion: res.Suggestion, Metadata: res.Metadata}
		}
		meta = res.Metadata
	} else {
		meta = validated(meta)
	}

	timer := prometheus.NewTimer(metrics.CompressionDuration)
	artifact, err := imaging.Compress(data, o.maxDim)
	timer.ObserveDuration()
	if err != nil {
		o.setPhase(key, PhaseErrorShown)
		metrics.CapturesTotal.WithLabelValues(stationID, "error").Inc()
		o.log.Warn().Err(err).Str("station", stationID).Msg("compression failed")
		return nil, &Error{Reason: "Erro ao comprimir a imagem"}
	}

	if err := o.blobs.Save(key, artifact.Data, meta); err != nil {
		o.setPhase(key, PhaseErrorShown)
		metrics.CapturesTotal.WithLabelValues(stationID, "error").Inc()
		o.log.Error().Err(err).Str("station", stationID).Msg("photo persistence failed on every tier")
		return nil, &Error{Reason: "Não foi possível salvar a imagem"}
	}

	photo := base64.StdEncoding.EncodeToString(artifact.Data)
	err = o.state.MutateRecord(period, stationID, func(rec *models.StationRecord) {
		rec.Photo = photo
		rec.Metadata = meta.Clone()
	})
	if err != nil {
		o.setPhase(key, PhaseErrorShown)
		metrics.CapturesTotal.WithLabelValues(stationID, "error").Inc()
		return nil, fmt.Errorf("update station record: %w", err)
	}

	o.setPhase(key, PhasePreviewed)
	metrics.CapturesTotal.WithLabelValues(stationID, "ok").Inc()
	return &Result{Photo: photo, Metadata: meta, Width: artifact.Width, Height: artifact.Height}, nil
}

// Hydrate repopulates a station record whose photo field is empty from a
// previously persisted blob, covering the case where the blobs survived a
// restart but the aggregate was rebuilt fresh. It returns the current photo
// state either way, with ok=false when there is nothing to show.
func (o *Orchestrator) Hydrate(period models.Period, stationID string) (*Result, bool) {
	st := o.state.Load()
	rec := st.Periods[period][stationID]
	if rec == nil {
		return nil, false
	}
	key := blobstore.ImageKey(period, stationID)

	if rec.Photo != "" {
		o.setPhase(key, PhasePreviewed)
		return &Result{Photo: rec.Photo, Metadata: rec.Metadata}, true
	}

	data, ok := o.blobs.Get(key)
	if !ok {
		return nil, false
	}
	meta := o.blobs.GetMetadata(key)
	photo := base64.StdEncoding.EncodeToString(data)

	err := o.state.MutateRecord(period, stationID, func(rec *models.StationRecord) {
		rec.Photo = photo
		rec.Metadata = meta.Clone()
	})
	if err != nil {
		o.log.Warn().Err(err).Str("station", stationID).Msg("hydration write-back failed")
	}

	o.setPhase(key, PhasePreviewed)
	return &Result{Photo: photo, Metadata: meta}, true
}

// Clear removes the persisted photo and metadata for the key and resets the
// record's photo fields. Price data is untouched.
func (o *Orchestrator) Clear(period models.Period, stationID string) error {
	key := blobstore.ImageKey(period, stationID)
	o.blobs.Remove(key)
	o.setPhase(key, PhaseEmpty)
	return o.state.MutateRecord(period, stationID, func(rec *models.StationRecord) {
		rec.Photo = ""
		rec.Metadata = nil
	})
}

// PurgePeriod removes every persisted photo for the period, across all
// tracked slots. Used after a period reset or a morning submission, where the
// records have already been cleared.
func (o *Orchestrator) PurgePeriod(period models.Period) {
	ids := []string{models.ReferenceStationID}
	for i := 1; i <= models.MaxTrackedSlots; i++ {
		ids = append(ids, models.CompetitorID(i))
	}
	for _, id := range ids {
		key := blobstore.ImageKey(period, id)
		o.blobs.Remove(key)
		o.setPhase(key, PhaseEmpty)
	}
}

// Phase returns the capture lifecycle phase for a station/period key.
func (o *Orchestrator) Phase(period models.Period, stationID string) Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.phases[blobstore.ImageKey(period, stationID)]; ok {
		return p
	}
	return PhaseEmpty
}

func (o *Orchestrator) setPhase(key string, p Phase) {
	o.mu.Lock()
	o.phases[key] = p
	o.mu.Unlock()
}
