package state

import (
	"time"

	"github.com/precoposto/precoposto/internal/models"
)

// DefaultWebhookURL is the endpoint used when no override is configured
// anywhere.
const DefaultWebhookURL = "https://hooks.precoposto.app/api/daily-report"

// internalWebhookOverride takes precedence over every other webhook source.
// Empty in normal builds; set via -ldflags for pinned deployments.
var internalWebhookOverride = ""

// resolveWebhookURL applies the override precedence: compiled-in override,
// then environment, then the user-configured value, then the default.
// The first non-empty value wins.
func resolveWebhookURL(internalOverride, env, stored string) string {
	for _, candidate := range []string{internalOverride, env, stored} {
		if candidate != "" {
			return candidate
		}
	}
	return DefaultWebhookURL
}

// clampCompetitorCount forces a stored count into the supported 1..10 range.
// Out-of-range values are clamped rather than rejected so loading never
// fails; see DESIGN.md.
func clampCompetitorCount(n int) int {
	if n < 1 {
		return 1
	}
	if n > models.MaxCompetitors {
		return models.MaxCompetitors
	}
	return n
}

// defaultState builds the default-shaped aggregate for a competitor count:
// every visible station has an empty record in both periods and a default
// display name.
func defaultState(competitorCount int) *models.AppState {
	count := clampCompetitorCount(competitorCount)
	st := &models.AppState{
		Config: models.Config{CompetitorCount: count},
		Meta: models.Meta{
			StationNames: make(map[string]string),
			LastSent:     make(map[models.Period]time.Time),
		},
		Periods: make(map[models.Period]map[string]*models.StationRecord),
	}
	ids := visibleStationIDs(count)
	for _, id := range ids {
		st.Meta.StationNames[id] = models.DefaultStationName(id)
	}
	for _, p := range models.Periods() {
		bucket := make(map[string]*models.StationRecord, len(ids))
		for _, id := range ids {
			bucket[id] = models.NewStationRecord(id, st.Meta.StationNames[id])
		}
		st.Periods[p] = bucket
	}
	return st
}

func visibleStationIDs(competitorCount int) []string {
	ids := make([]string, 0, competitorCount+1)
	ids = append(ids, models.ReferenceStationID)
	for i := 1; i <= competitorCount; i++ {
		ids = append(ids, models.CompetitorID(i))
	}
	return ids
}

// VisibleStationIDs returns the reference station followed by the currently
// visible competitor slots.
func VisibleStationIDs(st *models.AppState) []string {
	return visibleStationIDs(clampCompetitorCount(st.Config.CompetitorCount))
}

// mergeState upgrades a stored aggregate of any prior shape: a fresh default
// skeleton is built for the stored competitor count and the stored fragments
// are merged into it field by field, so every expected key exists afterwards
// and additive schema changes never break old data.
func mergeState(stored *models.AppState) *models.AppState {
	merged := defaultState(stored.Config.CompetitorCount)
	merged.Config.WebhookURL = stored.Config.WebhookURL
	merged.Meta.LastEdited = stored.Meta.LastEdited

	for p, t := range stored.Meta.LastSent {
		if p.Valid() {
			merged.Meta.LastSent[p] = t
		}
	}
	for id, name := range stored.Meta.StationNames {
		if name == "" {
			continue
		}
		if _, tracked := merged.Meta.StationNames[id]; tracked {
			merged.Meta.StationNames[id] = name
		}
	}

	for _, p := range models.Periods() {
		storedBucket := stored.Periods[p]
		if storedBucket == nil {
			continue
		}
		for id, def := range merged.Periods[p] {
			if rec := storedBucket[id]; rec != nil {
				mergeRecord(def, rec)
			}
		}
	}

	// Display names win over whatever the stored records carried.
	for _, p := range models.Periods() {
		for id, rec := range merged.Periods[p] {
			rec.Name = merged.Meta.StationNames[id]
		}
	}
	return merged
}

func mergeRecord(dst, src *models.StationRecord) {
	dst.Cash = src.Cash
	dst.Term = src.Term
	dst.NoChange = src.NoChange
	dst.Photo = src.Photo
	if src.Metadata != nil && src.Metadata.Status.Known() {
		dst.Metadata = src.Metadata.Clone()
	}
	if src.Name != "" {
		dst.Name = src.Name
	}
}
