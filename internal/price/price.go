// Package price handles the price-as-text fields: live input sanitization in
// Brazilian format and normalization for the submission payload.
package price

import (
	"strings"

	"github.com/precoposto/precoposto/internal/models"
)

// maxDigits caps a pump price at three significant digits ("9,99").
const maxDigits = 3

// Sanitize reshapes raw input into the canonical display form: digits only,
// truncated (not rounded) to three, with a comma after the first digit.
// "1234" becomes "1,23"; a single digit stays as-is; non-digits are dropped.
func Sanitize(input string) string {
	var digits strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			if digits.Len() == maxDigits {
				break
			}
		}
	}
	d := digits.String()
	if len(d) < 2 {
		return d
	}
	return d[:1] + "," + d[1:]
}

// Normalize converts a display value to the webhook's numeric form: thousands
// separators stripped, decimal comma converted to dot. The NoData sentinel
// passes through verbatim.
func Normalize(value string) string {
	if value == models.NoData {
		return value
	}
	v := strings.ReplaceAll(value, ".", "")
	return strings.ReplaceAll(v, ",", ".")
}

// RecordComplete reports whether a station record is ready for submission:
// either flagged as unchanged today, or with all eight price fields filled in
// (the NoData sentinel counts as filled).
func RecordComplete(r *models.StationRecord) bool {
	if r == nil {
		return false
	}
	if r.NoChange {
		return true
	}
	for _, f := range r.Cash.Fields() {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	for _, f := range r.Term.Fields() {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	return true
}
