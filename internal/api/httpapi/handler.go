// Package httpapi exposes the paper lifecycle and fraud analytics over a
// JSON HTTP API.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	apperrors "github.com/jobchain/integrity/internal/errors"
	fraudservice "github.com/jobchain/integrity/internal/fraud/service"
	paperservice "github.com/jobchain/integrity/internal/paper/service"
	"github.com/jobchain/integrity/internal/storage"
)

// maxRequestBody caps JSON request bodies; every request here is a couple
// of identifiers.
const maxRequestBody = 1 << 16

// Handler routes integrity API requests to the paper and fraud services.
type Handler struct {
	paper *paperservice.Service
	fraud *fraudservice.Service
}

// NewHandler builds the HTTP handler for the integrity API.
func NewHandler(paper *paperservice.Service, fraud *fraudservice.Service) http.Handler {
	h := &Handler{paper: paper, fraud: fraud}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/paper/generate-sets", h.handleGenerateSets)
	mux.HandleFunc("POST /api/paper/lock", h.handleLock)
	mux.HandleFunc("POST /api/paper/unlock", h.handleUnlock)
	mux.HandleFunc("GET /api/paper/verify/{paperSetID}", h.handleVerify)
	mux.HandleFunc("GET /api/paper/{vacancyID}", h.handleSets)
	mux.HandleFunc("GET /api/paper/{vacancyID}/sets/{label}", h.handleSetByLabel)
	mux.HandleFunc("GET /api/fraud/{vacancyID}", h.handleAlerts)
	mux.HandleFunc("POST /api/fraud/analyze", h.handleAnalyze)
	return mux
}

type paperSetView struct {
	ID          string    `json:"id"`
	VacancyID   string    `json:"vacancy_id"`
	SetID       string    `json:"set_id"`
	ContentHash string    `json:"content_hash"`
	Locked      bool      `json:"locked"`
	CenterID    string    `json:"center_id,omitempty"`
	LedgerRef   string    `json:"ledger_ref"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type fraudAlertView struct {
	ID           string    `json:"id"`
	VacancyID    string    `json:"vacancy_id"`
	AlertType    string    `json:"alert_type"`
	SuspectCount int       `json:"suspect_count"`
	PatternHash  string    `json:"pattern_hash,omitempty"`
	EvidenceHash string    `json:"evidence_hash"`
	LedgerRef    string    `json:"ledger_ref"`
	CreatedAt    time.Time `json:"created_at"`
}

type paperSetsResponse struct {
	VacancyID string         `json:"vacancy_id"`
	PaperSets []paperSetView `json:"paper_sets"`
	AllLocked bool           `json:"all_locked"`
}

type verifyResponse struct {
	PaperSetID string `json:"paper_set_id"`
	Valid      bool   `json:"valid"`
}

type alertsResponse struct {
	VacancyID string           `json:"vacancy_id"`
	Alerts    []fraudAlertView `json:"alerts"`
}

type analyzeResponse struct {
	VacancyID string           `json:"vacancy_id"`
	NewAlerts []fraudAlertView `json:"new_alerts"`
}

type errorResponse struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type vacancyRequest struct {
	VacancyID string `json:"vacancy_id"`
}

type lockRequest struct {
	VacancyID string `json:"vacancy_id"`
	CenterID  string `json:"center_id"`
}

func (h *Handler) handleGenerateSets(w http.ResponseWriter, r *http.Request) {
	var req vacancyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sets, err := h.paper.Generate(r.Context(), req.VacancyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, paperSetsResponse{
		VacancyID: req.VacancyID,
		PaperSets: paperSetViews(sets),
	})
}

func (h *Handler) handleLock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sets, err := h.paper.Lock(r.Context(), req.VacancyID, req.CenterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paperSetsResponse{
		VacancyID: req.VacancyID,
		PaperSets: paperSetViews(sets),
		AllLocked: allLocked(sets),
	})
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req vacancyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sets, err := h.paper.Unlock(r.Context(), req.VacancyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paperSetsResponse{
		VacancyID: req.VacancyID,
		PaperSets: paperSetViews(sets),
	})
}

func (h *Handler) handleSets(w http.ResponseWriter, r *http.Request) {
	vacancyID := r.PathValue("vacancyID")
	sets, err := h.paper.Sets(r.Context(), vacancyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paperSetsResponse{
		VacancyID: vacancyID,
		PaperSets: paperSetViews(sets),
		AllLocked: allLocked(sets),
	})
}

func (h *Handler) handleSetByLabel(w http.ResponseWriter, r *http.Request) {
	set, err := h.paper.SetByLabel(r.Context(), r.PathValue("vacancyID"), r.PathValue("label"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paperSetView{
		ID:          set.ID,
		VacancyID:   set.VacancyID,
		SetID:       set.SetID,
		ContentHash: set.ContentHash,
		Locked:      set.Locked,
		CenterID:    set.CenterID,
		LedgerRef:   set.LedgerRef,
		CreatedAt:   set.CreatedAt,
		UpdatedAt:   set.UpdatedAt,
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	paperSetID := r.PathValue("paperSetID")
	valid, err := h.paper.Verify(r.Context(), paperSetID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{PaperSetID: paperSetID, Valid: valid})
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	vacancyID := r.PathValue("vacancyID")
	alerts, err := h.fraud.Alerts(r.Context(), vacancyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alertsResponse{
		VacancyID: vacancyID,
		Alerts:    fraudAlertViews(alerts),
	})
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req vacancyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := h.fraud.Analyze(r.Context(), req.VacancyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{
		VacancyID: req.VacancyID,
		NewAlerts: fraudAlertViews(created),
	})
}

// paperSetViews converts storage records to API views. Raw question content
// never leaves the service; only the digest does.
func paperSetViews(sets []storage.PaperSet) []paperSetView {
	views := make([]paperSetView, 0, len(sets))
	for _, set := range sets {
		views = append(views, paperSetView{
			ID:          set.ID,
			VacancyID:   set.VacancyID,
			SetID:       set.SetID,
			ContentHash: set.ContentHash,
			Locked:      set.Locked,
			CenterID:    set.CenterID,
			LedgerRef:   set.LedgerRef,
			CreatedAt:   set.CreatedAt,
			UpdatedAt:   set.UpdatedAt,
		})
	}
	return views
}

func fraudAlertViews(alerts []storage.FraudAlert) []fraudAlertView {
	views := make([]fraudAlertView, 0, len(alerts))
	for _, alert := range alerts {
		views = append(views, fraudAlertView{
			ID:           alert.ID,
			VacancyID:    alert.VacancyID,
			AlertType:    alert.AlertType,
			SuspectCount: alert.SuspectCount,
			PatternHash:  alert.PatternHash,
			EvidenceHash: alert.EvidenceHash,
			LedgerRef:    alert.LedgerRef,
			CreatedAt:    alert.CreatedAt,
		})
	}
	return views
}

func allLocked(sets []storage.PaperSet) bool {
	if len(sets) == 0 {
		return false
	}
	for _, set := range sets {
		if !set.Locked {
			return false
		}
	}
	return true
}

// decodeJSON parses a small JSON request body into dst. It writes a 400 and
// returns false on malformed input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "MALFORMED_REQUEST",
			Message: "request body is not valid JSON",
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// writeError maps domain errors to HTTP statuses and a structured JSON body.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	status := code.HTTPStatus()

	// Internal failures keep their cause in the logs, not the response.
	message := "internal error"
	if status < http.StatusInternalServerError {
		var domainErr *apperrors.Error
		if errors.As(err, &domainErr) {
			message = domainErr.Message
		} else {
			message = err.Error()
		}
	} else {
		log.Printf("request failed code=%s: %v", code, err)
	}

	writeJSON(w, status, errorResponse{
		Code:     string(code),
		Message:  message,
		Metadata: apperrors.GetMetadata(err),
	})
}
