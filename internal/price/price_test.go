package price

import (
	"testing"

	"github.com/precoposto/precoposto/internal/models"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"5", "5"},
		{"58", "5,8"},
		{"589", "5,89"},
		{"1234", "1,23"},
		{"5,89", "5,89"},
		{"5.89", "5,89"},
		{"a5b8c9", "5,89"},
		{"1999", "1,99"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.input); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitize_TruncatesNotRounds(t *testing.T) {
	// "1,239" would round to "1,24"; truncation keeps "1,23".
	if got := Sanitize("1239"); got != "1,23" {
		t.Errorf("Sanitize(1239) = %q, want 1,23", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"5,89", "5.89"},
		{"1.234,56", "1234.56"},
		{models.NoData, models.NoData},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRecordComplete(t *testing.T) {
	full := models.PriceBlock{Ethanol: "3,89", Regular: "5,79", Additized: "5,99", Diesel: "6,19"}
	partial := models.PriceBlock{Ethanol: "3,89"}
	withSentinel := models.PriceBlock{Ethanol: "3,89", Regular: models.NoData, Additized: "5,99", Diesel: "6,19"}

	tests := []struct {
		name string
		rec  *models.StationRecord
		want bool
	}{
		{"nil record", nil, false},
		{"empty record", models.NewStationRecord("reference", "Posto"), false},
		{"no change flag", &models.StationRecord{NoChange: true}, true},
		{"all filled", &models.StationRecord{Cash: full, Term: full}, true},
		{"partial cash", &models.StationRecord{Cash: partial, Term: full}, false},
		{"partial term", &models.StationRecord{Cash: full, Term: partial}, false},
		{"no-data sentinel counts as filled", &models.StationRecord{Cash: withSentinel, Term: full}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecordComplete(tt.rec); got != tt.want {
				t.Errorf("RecordComplete() = %v, want %v", got, tt.want)
			}
		})
	}
}
