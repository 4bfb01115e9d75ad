package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is one of the two fixed daily reporting windows.
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
)

// Periods returns both reporting periods in chronological order.
func Periods() []Period {
	return []Period{PeriodMorning, PeriodAfternoon}
}

// Valid reports whether p is one of the two known periods.
func (p Period) Valid() bool {
	return p == PeriodMorning || p == PeriodAfternoon
}

// Label returns the wire label used in submissions.
func (p Period) Label() string {
	if p == PeriodAfternoon {
		return "Tarde"
	}
	return "Manhã"
}

const (
	// ReferenceStationID identifies the surveyor's own station.
	ReferenceStationID = "reference"

	// MaxCompetitors is the most competitor slots that can be visible at once.
	MaxCompetitors = 10

	// MaxTrackedSlots bounds how many competitor slots are purged when the
	// visible count shrinks. Data beyond this is never tracked.
	MaxTrackedSlots = 20
)

// CompetitorID returns the station identifier for competitor slot n (1-based).
func CompetitorID(n int) string {
	return fmt.Sprintf("competitor_%d", n)
}

// CompetitorSlot parses a competitor station identifier, returning its slot
// number and true, or 0 and false for the reference station or anything else.
func CompetitorSlot(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "competitor_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// DefaultStationName returns the display name a slot starts with.
func DefaultStationName(id string) string {
	if n, ok := CompetitorSlot(id); ok {
		return fmt.Sprintf("Concorrente %d", n)
	}
	return "Posto Referência"
}

// NoData is the sentinel a surveyor enters when a price is not displayed at
// the station. It passes through submission payloads verbatim.
const NoData = "Sem dados"

// PriceBlock holds the four fuel prices for one payment mode, kept as the
// user-entered strings (comma decimal separator).
type PriceBlock struct {
	Ethanol   string `json:"etanol"`
	Regular   string `json:"gasolinaComum"`
	Additized string `json:"gasolinaAditivada"`
	Diesel    string `json:"diesel"`
}

// Fields returns the four prices in fixed fuel order.
func (b PriceBlock) Fields() []string {
	return []string{b.Ethanol, b.Regular, b.Additized, b.Diesel}
}

// FuelLabels returns the wire labels matching the order of PriceBlock.Fields.
func FuelLabels() []string {
	return []string{"Etanol", "Gasolina Comum", "Gasolina Aditivada", "Diesel"}
}

// ValidationStatus classifies the outcome of photo capture-date validation.
type ValidationStatus string

const (
	StatusValidated ValidationStatus = "validated"
	StatusWarning   ValidationStatus = "warning"
	StatusInvalid   ValidationStatus = "invalid"
)

// Known reports whether s is one of the three defined statuses.
func (s ValidationStatus) Known() bool {
	return s == StatusValidated || s == StatusWarning || s == StatusInvalid
}

// Label returns the wire label used in submissions.
func (s ValidationStatus) Label() string {
	switch s {
	case StatusValidated:
		return "VALIDADA"
	case StatusWarning:
		return "AVISO"
	default:
		return "INVÁLIDA"
	}
}

// CaptureMetadata carries the attributes extracted from a photo. Every field
// except Status is optional; absence means the photo did not embed it.
type CaptureMetadata struct {
	CapturedAt *time.Time       `json:"capturedAt,omitempty"`
	Make       string           `json:"make,omitempty"`
	Model      string           `json:"model,omitempty"`
	Software   string           `json:"software,omitempty"`
	Latitude   *float64         `json:"latitude,omitempty"`
	Longitude  *float64         `json:"longitude,omitempty"`
	Status     ValidationStatus `json:"status"`
	Reason     string           `json:"reason,omitempty"`
}

// HasGPS reports whether both coordinates were extracted.
func (m *CaptureMetadata) HasGPS() bool {
	return m != nil && m.Latitude != nil && m.Longitude != nil
}

// Device returns a single human-readable device string, or "" when the photo
// carried no device attributes.
func (m *CaptureMetadata) Device() string {
	if m == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	for _, s := range []string{m.Make, m.Model, m.Software} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Clone returns a deep copy of the metadata.
func (m *CaptureMetadata) Clone() *CaptureMetadata {
	if m == nil {
		return nil
	}
	out := *m
	if m.CapturedAt != nil {
		t := *m.CapturedAt
		out.CapturedAt = &t
	}
	if m.Latitude != nil {
		v := *m.Latitude
		out.Latitude = &v
	}
	if m.Longitude != nil {
		v := *m.Longitude
		out.Longitude = &v
	}
	return &out
}

// StationRecord is the per-period survey entry for one station.
type StationRecord struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Cash     PriceBlock       `json:"vista"`
	Term     PriceBlock       `json:"prazo"`
	NoChange bool             `json:"noChange"`
	Photo    string           `json:"photo,omitempty"` // base64-encoded compressed JPEG
	Metadata *CaptureMetadata `json:"metadata,omitempty"`
}

// NewStationRecord builds an empty record for a station.
func NewStationRecord(id, name string) *StationRecord {
	return &StationRecord{ID: id, Name: name}
}

// Clone returns a deep copy of the record.
func (r *StationRecord) Clone() *StationRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Metadata = r.Metadata.Clone()
	return &out
}

// Config is the user-adjustable configuration stored with the state.
type Config struct {
	CompetitorCount int    `json:"concorrentesCount"`
	WebhookURL      string `json:"webhookUrl,omitempty"`
}

// Meta tracks bookkeeping alongside the survey data.
type Meta struct {
	StationNames map[string]string    `json:"stationNames"`
	LastEdited   time.Time            `json:"lastEdited"`
	LastSent     map[Period]time.Time `json:"lastSent"`
}

// AppState is the whole persisted aggregate: configuration, bookkeeping and
// the two period buckets. It is serialized and rewritten as a unit.
type AppState struct {
	Config  Config                               `json:"config"`
	Meta    Meta                                 `json:"meta"`
	Periods map[Period]map[string]*StationRecord `json:"periods"`
}

// Clone returns a deep copy of the aggregate.
func (s *AppState) Clone() *AppState {
	if s == nil {
		return nil
	}
	out := &AppState{Config: s.Config}
	out.Meta = Meta{
		StationNames: make(map[string]string, len(s.Meta.StationNames)),
		LastEdited:   s.Meta.LastEdited,
		LastSent:     make(map[Period]time.Time, len(s.Meta.LastSent)),
	}
	for k, v := range s.Meta.StationNames {
		out.Meta.StationNames[k] = v
	}
	for k, v := range s.Meta.LastSent {
		out.Meta.LastSent[k] = v
	}
	out.Periods = make(map[Period]map[string]*StationRecord, len(s.Periods))
	for p, bucket := range s.Periods {
		cp := make(map[string]*StationRecord, len(bucket))
		for id, rec := range bucket {
			cp[id] = rec.Clone()
		}
		out.Periods[p] = cp
	}
	return out
}
