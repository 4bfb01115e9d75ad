package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/precoposto/precoposto/internal/capture"
	"github.com/precoposto/precoposto/internal/models"
	"github.com/precoposto/precoposto/internal/price"
	"github.com/precoposto/precoposto/internal/state"
	"github.com/precoposto/precoposto/internal/submit"
)

// maxUploadBytes bounds photo uploads before compression.
const maxUploadBytes = 16 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error      string                  `json:"error"`
	Suggestion string                  `json:"suggestion,omitempty"`
	Metadata   *models.CaptureMetadata `json:"metadata,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func parsePeriod(r *http.Request) (models.Period, bool) {
	p := models.Period(chi.URLParam(r, "period"))
	return p, p.Valid()
}

func parseStation(r *http.Request) (string, bool) {
	id := chi.URLParam(r, "station")
	if id == models.ReferenceStationID {
		return id, true
	}
	if n, ok := models.CompetitorSlot(id); ok && n <= models.MaxCompetitors {
		return id, true
	}
	return id, false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	st := s.state.Load()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    st,
		"stations": state.VisibleStationIDs(st),
	})
}

func (s *Server) handleSetCompetitors(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	if req.Count < 1 || req.Count > models.MaxCompetitors {
		writeError(w, http.StatusBadRequest, "quantidade de concorrentes deve estar entre 1 e 10")
		return
	}
	if err := s.state.SetCompetitorCount(req.Count); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.handleGetState(w, r)
}

func (s *Server) handleSetWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	if err := s.state.SetWebhookURL(req.URL); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"webhookUrl": s.state.WebhookURL()})
}

func (s *Server) handleRenameStation(w http.ResponseWriter, r *http.Request) {
	station, ok := parseStation(r)
	if !ok {
		writeError(w, http.StatusNotFound, "posto desconhecido")
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	if err := s.state.RenameStation(station, req.Name); err != nil {
		if errors.Is(err, state.ErrUnknownStation) {
			writeError(w, http.StatusNotFound, "posto desconhecido")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": station, "name": req.Name})
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(r)
	if !ok {
		writeError(w, http.StatusNotFound, "período desconhecido")
		return
	}
	station, ok := parseStation(r)
	if !ok {
		writeError(w, http.StatusNotFound, "posto desconhecido")
		return
	}
	var req struct {
		Cash     models.PriceBlock `json:"vista"`
		Term     models.PriceBlock `json:"prazo"`
		NoChange bool              `json:"noChange"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "corpo inválido")
		return
	}

	err := s.state.MutateRecord(period, station, func(rec *models.StationRecord) {
		rec.Cash = sanitizeBlock(req.Cash)
		rec.Term = sanitizeBlock(req.Term)
		rec.NoChange = req.NoChange
	})
	if err != nil {
		if errors.Is(err, state.ErrUnknownStation) {
			writeError(w, http.StatusNotFound, "posto desconhecido")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sanitizeBlock canonicalizes entered prices; the NoData sentinel and blanks
// pass through untouched.
func sanitizeBlock(b models.PriceBlock) models.PriceBlock {
	return models.PriceBlock{
		Ethanol:   sanitizeField(b.Ethanol),
		Regular:   sanitizeField(b.Regular),
		Additized: sanitizeField(b.Additized),
		Diesel:    sanitizeField(b.Diesel),
	}
}

func sanitizeField(v string) string {
	if v == "" || v == models.NoData {
		return v
	}
	return price.Sanitize(v)
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(r)
	if !ok {
		writeError(w, http.StatusNotFound, "período desconhecido")
		return
	}
	station, ok := parseStation(r)
	if !ok {
		writeError(w, http.StatusNotFound, "posto desconhecido")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "upload inválido")
		return
	}
	file, _, err := r.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "campo 'photo' ausente")
		return
	}
	defer file.Close()

	source := capture.Source(r.FormValue("source"))
	if source == "" {
		source = capture.SourceCamera
	}
	if !source.Valid() {
		writeError(w, http.StatusBadRequest, "origem deve ser camera ou gallery")
		return
	}

	result, err := s.orch.Capture(period, station, source, file)
	if err != nil {
		var capErr *capture.Error
		if errors.As(err, &capErr) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Error:      capErr.Reason,
				Suggestion: capErr.Suggestion,
				Metadata:   capErr.Metadata,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHydrate(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(r)
	if !ok {
		writeError(w, http.StatusNotFound, "período desconhecido")
		return
	}
	station, ok := parseStation(r)
	if !ok {
		writeError(w, http.StatusNotFound, "posto desconhecido")
		return
	}
	result, found := s.orch.Hydrate(period, station)
	if !found {
		writeError(w, http.StatusNotFound, "sem foto para este posto")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleClearPhoto(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(r)
	if !ok {
		writeError(w, http.StatusNotFound, "período desconhecido")
		return
	}
	station, ok := parseStation(r)
	if !ok {
		writeError(w, http.StatusNotFound, "posto desconhecido")
		return
	}
	if err := s.orch.Clear(period, station); err != nil && !errors.Is(err, state.ErrUnknownStation) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClearPeriod(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(r)
	if !ok {
		writeError(w, http.StatusNotFound, "período desconhecido")
		return
	}
	if err := s.state.ClearPeriod(period); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Record reset and blob purge are separate responsibilities; the store
	// does not own blob lifecycle.
	s.orch.PurgePeriod(period)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(r)
	if !ok {
		writeError(w, http.StatusNotFound, "período desconhecido")
		return
	}
	if err := s.submitter.Submit(period); err != nil {
		if errors.Is(err, submit.ErrIncomplete) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "enviado", "period": period.Label()})
}

func (s *Server) handleStorageUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tiers": s.blobs.UsageInfo()})
}
