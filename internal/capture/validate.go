package capture

import (
	"bytes"
	"fmt"
	"time"

	"github.com/precoposto/precoposto/internal/exif"
	"github.com/precoposto/precoposto/internal/models"
)

// Source is where a photo came from. Only gallery picks are subject to the
// same-day policy; fresh camera captures are trusted by construction.
type Source string

const (
	SourceCamera  Source = "camera"
	SourceGallery Source = "gallery"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceCamera || s == SourceGallery
}

// User-facing validation messages, matching the rest of the wire surface.
const (
	reasonNoMetadata      = "Não foi possível verificar a data da foto"
	reasonProcessingError = "Erro ao processar a imagem"
	suggestionUseCamera   = "Use a câmera para tirar uma foto atual"
)

// ValidationResult is the outcome of the capture-date check.
type ValidationResult struct {
	Valid      bool
	Status     models.ValidationStatus
	Reason     string
	Suggestion string
	// Metadata carries whatever was extracted, also on rejection, so the
	// caller can show the offending capture attributes.
	Metadata *models.CaptureMetadata
}

// Validator enforces the policy that gallery-sourced competitor photos must
// have been taken on the current calendar day.
type Validator struct {
	extractor *exif.Extractor
	loc       *time.Location
	now       func() time.Time
}

// NewValidator builds a Validator. now may be nil, defaulting to time.Now.
func NewValidator(extractor *exif.Extractor, loc *time.Location, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{extractor: extractor, loc: loc, now: now}
}

// ValidateFile extracts metadata from the photo and applies the same-day
// policy for the station. It never panics or returns an error; internal
// failures come back as an invalid result with a generic reason.
func (v *Validator) ValidateFile(photo []byte, stationID string) ValidationResult {
	var meta *models.CaptureMetadata
	if _, competitor := models.CompetitorSlot(stationID); competitor {
		meta = v.extractor.Extract(bytes.NewReader(photo))
	}
	return v.Validate(meta, stationID)
}

// Validate applies the same-day policy to already-extracted metadata.
func (v *Validator) Validate(meta *models.CaptureMetadata, stationID string) (res ValidationResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = ValidationResult{
				Status: models.StatusInvalid,
				Reason: reasonProcessingError,
			}
		}
	}()

	// Reference uploads are trusted, and the policy only ever applies to
	// competitor slots.
	if stationID == models.ReferenceStationID {
		return ValidationResult{Valid: true, Status: models.StatusValidated, Metadata: validated(meta)}
	}
	if _, ok := models.CompetitorSlot(stationID); !ok {
		return ValidationResult{Valid: true, Status: models.StatusValidated, Metadata: validated(meta)}
	}

	if meta == nil || meta.CapturedAt == nil {
		return ValidationResult{
			Status:     models.StatusInvalid,
			Reason:     reasonNoMetadata,
			Suggestion: suggestionUseCamera,
			Metadata:   invalidated(meta, reasonNoMetadata),
		}
	}

	captured := meta.CapturedAt.In(v.loc)
	today := v.now().In(v.loc)
	cy, cm, cd := captured.Date()
	ty, tm, td := today.Date()
	if cy != ty || cm != tm || cd != td {
		reason := fmt.Sprintf("A foto foi tirada em %s", captured.Format("02/01/2006"))
		return ValidationResult{
			Status:     models.StatusInvalid,
			Reason:     reason,
			Suggestion: suggestionUseCamera,
			Metadata:   invalidated(meta, reason),
		}
	}

	return ValidationResult{Valid: true, Status: models.StatusValidated, Metadata: validated(meta)}
}

func validated(meta *models.CaptureMetadata) *models.CaptureMetadata {
	if meta == nil {
		meta = &models.CaptureMetadata{}
	}
	out := meta.Clone()
	out.Status = models.StatusValidated
	out.Reason = ""
	return out
}

func invalidated(meta *models.CaptureMetadata, reason string) *models.CaptureMetadata {
	if meta == nil {
		meta = &models.CaptureMetadata{}
	}
	out := meta.Clone()
	out.Status = models.StatusInvalid
	out.Reason = reason
	return out
}
