package capture

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/precoposto/precoposto/internal/exif"
	"github.com/precoposto/precoposto/internal/models"
)

var testLoc = time.FixedZone("BRT", -3*60*60)

func testValidator() *Validator {
	extractor := exif.NewExtractor(testLoc, zerolog.Nop())
	now := func() time.Time { return time.Date(2026, 9, 1, 10, 0, 0, 0, testLoc) }
	return NewValidator(extractor, testLoc, now)
}

func metaAt(t time.Time) *models.CaptureMetadata {
	return &models.CaptureMetadata{CapturedAt: &t}
}

func TestValidate_ReferenceAlwaysValid(t *testing.T) {
	v := testValidator()

	// Old capture date, no metadata at all: the reference station is
	// trusted either way.
	old := metaAt(time.Date(2020, 1, 1, 9, 0, 0, 0, testLoc))
	for _, meta := range []*models.CaptureMetadata{nil, old} {
		res := v.Validate(meta, models.ReferenceStationID)
		if !res.Valid {
			t.Errorf("reference photo rejected: %+v", res)
		}
		if res.Status != models.StatusValidated {
			t.Errorf("Status = %q, want validated", res.Status)
		}
	}
}

func TestValidate_NonCompetitorIDValid(t *testing.T) {
	v := testValidator()
	res := v.Validate(nil, "something_else")
	if !res.Valid || res.Status != models.StatusValidated {
		t.Errorf("non-competitor id rejected: %+v", res)
	}
}

func TestValidate_CompetitorNoMetadata(t *testing.T) {
	v := testValidator()

	for _, meta := range []*models.CaptureMetadata{nil, {Make: "Apple"}} {
		res := v.Validate(meta, models.CompetitorID(1))
		if res.Valid {
			t.Fatalf("competitor photo without capture date accepted: %+v", res)
		}
		if res.Status != models.StatusInvalid {
			t.Errorf("Status = %q, want invalid", res.Status)
		}
		if res.Suggestion == "" {
			t.Error("rejection missing camera suggestion")
		}
	}
}

func TestValidate_CompetitorWrongDay(t *testing.T) {
	v := testValidator()

	// Same time of day, previous day: still rejected, the check is on the
	// calendar date only.
	captured := time.Date(2026, 8, 31, 10, 0, 0, 0, testLoc)
	res := v.Validate(metaAt(captured), models.CompetitorID(3))
	if res.Valid {
		t.Fatalf("yesterday's photo accepted: %+v", res)
	}
	if res.Status != models.StatusInvalid {
		t.Errorf("Status = %q, want invalid", res.Status)
	}
	if !strings.Contains(res.Reason, "31/08/2026") {
		t.Errorf("Reason = %q, want the actual capture date in it", res.Reason)
	}
	if res.Metadata == nil || res.Metadata.CapturedAt == nil {
		t.Error("extracted metadata not carried along for display")
	}
	if res.Metadata.Status != models.StatusInvalid {
		t.Errorf("carried metadata status = %q, want invalid", res.Metadata.Status)
	}
}

func TestValidate_CompetitorSameDay(t *testing.T) {
	v := testValidator()

	tests := []time.Time{
		time.Date(2026, 9, 1, 0, 0, 1, 0, testLoc),
		time.Date(2026, 9, 1, 10, 0, 0, 0, testLoc),
		time.Date(2026, 9, 1, 23, 59, 59, 0, testLoc),
	}
	for _, captured := range tests {
		res := v.Validate(metaAt(captured), models.CompetitorID(1))
		if !res.Valid {
			t.Errorf("same-day photo at %v rejected: %+v", captured, res)
		}
		if res.Status != models.StatusValidated {
			t.Errorf("Status = %q, want validated", res.Status)
		}
		if res.Metadata == nil || res.Metadata.Status != models.StatusValidated {
			t.Errorf("metadata status not stamped validated: %+v", res.Metadata)
		}
	}
}

func TestValidate_CalendarDayNotGraceWindow(t *testing.T) {
	v := testValidator()

	// 23:30 the night before is only a few hours old but on another
	// calendar day: rejected. There is no grace window.
	captured := time.Date(2026, 8, 31, 23, 30, 0, 0, testLoc)
	if res := v.Validate(metaAt(captured), models.CompetitorID(1)); res.Valid {
		t.Errorf("previous-night photo accepted: %+v", res)
	}
}

func TestValidateFile_NoEmbeddedData(t *testing.T) {
	v := testValidator()

	res := v.ValidateFile([]byte("not an image"), models.CompetitorID(1))
	if res.Valid {
		t.Fatalf("unparseable file accepted for competitor: %+v", res)
	}

	// The same file is fine for the reference station: no metadata check.
	res = v.ValidateFile([]byte("not an image"), models.ReferenceStationID)
	if !res.Valid {
		t.Errorf("reference upload rejected: %+v", res)
	}
}
