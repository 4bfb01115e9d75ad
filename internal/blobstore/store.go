package blobstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/precoposto/precoposto/internal/metrics"
	"github.com/precoposto/precoposto/internal/models"
)

const (
	imagePrefix    = "img:"
	metadataPrefix = "meta:"
)

// ImageKey returns the blob key for a station's compressed photo.
func ImageKey(period models.Period, stationID string) string {
	return fmt.Sprintf("%s%s:%s", imagePrefix, period, stationID)
}

// MetadataKeyFor maps an image key to its metadata side-record key, so both
// records are always co-addressable by a simple key transformation.
func MetadataKeyFor(imageKey string) string {
	return metadataPrefix + strings.TrimPrefix(imageKey, imagePrefix)
}

// TierUsage reports approximate stored bytes for one tier.
type TierUsage struct {
	Tier      string `json:"tier"`
	Bytes     int64  `json:"bytes"`
	Available bool   `json:"available"`
}

// Store fans blob operations out over an ordered list of tiers: writes land
// on the first tier that accepts them, reads take the first hit.
type Store struct {
	backends []Backend
	log      zerolog.Logger
}

// New builds a Store trying backends in the given order. The first backend is
// the primary durable tier; later ones are fallbacks.
func New(log zerolog.Logger, backends ...Backend) *Store {
	return &Store{backends: backends, log: log}
}

// Save stores the blob, and its metadata side-record when meta is non-nil, on
// the first tier that accepts the write. Tier failures are logged and counted
// but only surface when every tier rejects the write.
func (s *Store) Save(key string, data []byte, meta *models.CaptureMetadata) error {
	var metaJSON []byte
	if meta != nil {
		var err error
		metaJSON, err = json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	var lastErr error
	for _, backend := range s.backends {
		if err := backend.Put(key, data); err != nil {
			lastErr = err
			metrics.StorageWriteFailures.WithLabelValues(backend.Name()).Inc()
			s.log.Warn().Err(err).Str("tier", backend.Name()).Str("key", key).
				Msg("blob write failed, degrading to next tier")
			continue
		}
		if metaJSON != nil {
			if err := backend.Put(MetadataKeyFor(key), metaJSON); err != nil {
				s.log.Warn().Err(err).Str("tier", backend.Name()).Str("key", key).
					Msg("metadata write failed")
			}
		}
		return nil
	}
	return fmt.Errorf("all storage tiers failed: %w", lastErr)
}

// Get returns the blob for key from the first tier that has it.
func (s *Store) Get(key string) ([]byte, bool) {
	for _, backend := range s.backends {
		value, err := backend.Get(key)
		if err == nil {
			return value, true
		}
		if !errors.Is(err, ErrNotFound) {
			s.log.Debug().Err(err).Str("tier", backend.Name()).Str("key", key).Msg("blob read failed")
		}
	}
	return nil, false
}

// GetMetadata returns the metadata side-record for an image key, or nil when
// it is absent or does not decode to a well-formed record.
func (s *Store) GetMetadata(imageKey string) *models.CaptureMetadata {
	raw, ok := s.Get(MetadataKeyFor(imageKey))
	if !ok {
		return nil
	}
	var meta models.CaptureMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		s.log.Warn().Err(err).Str("key", imageKey).Msg("discarding undecodable metadata record")
		return nil
	}
	if !meta.Status.Known() {
		s.log.Warn().Str("key", imageKey).Str("status", string(meta.Status)).
			Msg("discarding metadata record with unknown status")
		return nil
	}
	return &meta
}

// Remove deletes the blob and its metadata record from every tier. Tier
// failures are logged and swallowed so one tier cannot block another's
// cleanup.
func (s *Store) Remove(key string) {
	for _, backend := range s.backends {
		for _, k := range []string{key, MetadataKeyFor(key)} {
			if err := backend.Delete(k); err != nil {
				s.log.Warn().Err(err).Str("tier", backend.Name()).Str("key", k).Msg("blob delete failed")
			}
		}
	}
}

// Clear empties every tier, swallowing per-tier failures.
func (s *Store) Clear() {
	for _, backend := range s.backends {
		if err := backend.Clear(); err != nil {
			s.log.Warn().Err(err).Str("tier", backend.Name()).Msg("blob clear failed")
		}
	}
}

// UsageInfo reports approximate byte usage per tier. It never fails; a tier
// that cannot report usage shows as unavailable with zero bytes.
func (s *Store) UsageInfo() []TierUsage {
	usage := make([]TierUsage, 0, len(s.backends))
	for _, backend := range s.backends {
		bytes, err := backend.Usage()
		if err != nil {
			s.log.Debug().Err(err).Str("tier", backend.Name()).Msg("usage query failed")
			usage = append(usage, TierUsage{Tier: backend.Name()})
			continue
		}
		usage = append(usage, TierUsage{Tier: backend.Name(), Bytes: bytes, Available: true})
	}
	return usage
}
