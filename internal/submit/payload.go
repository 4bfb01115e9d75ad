// Package submit builds the webhook payload and delivers it.
package submit

import (
	"fmt"
	"time"

	"github.com/precoposto/precoposto/internal/models"
	"github.com/precoposto/precoposto/internal/price"
	"github.com/precoposto/precoposto/internal/state"
)

// BuildPayload flattens one period's records into the webhook body: a flat
// mapping of human-readable keys to string values. Key prefixes use the
// fixed slot labels so downstream sheets keep stable columns even when the
// surveyor renames a station; the editable name travels as a value.
func BuildPayload(st *models.AppState, period models.Period, sentAt time.Time) map[string]string {
	payload := map[string]string{
		"Data de Envio": sentAt.Format("02/01/2006 (15:04)"),
		"Período":       period.Label(),
	}

	blockLabels := []struct {
		label string
		pick  func(*models.StationRecord) models.PriceBlock
	}{
		{"Vista", func(r *models.StationRecord) models.PriceBlock { return r.Cash }},
		{"Prazo", func(r *models.StationRecord) models.PriceBlock { return r.Term }},
	}

	for _, id := range state.VisibleStationIDs(st) {
		rec := st.Periods[period][id]
		if rec == nil {
			continue
		}
		prefix := models.DefaultStationName(id)

		payload[prefix+" - Nome"] = rec.Name
		for _, block := range blockLabels {
			fields := block.pick(rec).Fields()
			for i, label := range models.FuelLabels() {
				key := fmt.Sprintf("%s - %s (%s)", prefix, label, block.label)
				payload[key] = price.Normalize(fields[i])
			}
		}

		if rec.NoChange {
			payload[prefix+" - Sem Alteração"] = "SIM"
		} else {
			payload[prefix+" - Sem Alteração"] = "NÃO"
		}
		payload[prefix+" - Foto"] = rec.Photo

		if meta := rec.Metadata; meta != nil {
			if meta.CapturedAt != nil {
				payload[prefix+" - Foto Data"] = meta.CapturedAt.Format("02/01/2006 15:04:05")
			}
			if device := meta.Device(); device != "" {
				payload[prefix+" - Foto Dispositivo"] = device
			}
			payload[prefix+" - Foto Validação"] = meta.Status.Label()
			if meta.HasGPS() {
				payload[prefix+" - Foto GPS"] = fmt.Sprintf("%.6f, %.6f", *meta.Latitude, *meta.Longitude)
			}
		}
	}

	return payload
}

// IncompleteStations returns the display names of visible stations in the
// period that are not ready for submission.
func IncompleteStations(st *models.AppState, period models.Period) []string {
	var incomplete []string
	for _, id := range state.VisibleStationIDs(st) {
		rec := st.Periods[period][id]
		if !price.RecordComplete(rec) {
			name := models.DefaultStationName(id)
			if rec != nil && rec.Name != "" {
				name = rec.Name
			}
			incomplete = append(incomplete, name)
		}
	}
	return incomplete
}
