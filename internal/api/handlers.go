package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LeventeLantos/outreach-engine/internal/campaign"
	"github.com/LeventeLantos/outreach-engine/internal/collector"
	"github.com/LeventeLantos/outreach-engine/internal/model"
	"github.com/LeventeLantos/outreach-engine/internal/scheduler"
	"github.com/LeventeLantos/outreach-engine/internal/worker"
)

const maxBodyBytes = 1 << 20

type CampaignService interface {
	StartCampaign(ctx context.Context, req campaign.StartRequest) error
	StopCampaign(ctx context.Context, campaignID string) error
	CampaignStatus(ctx context.Context, campaignID string) (model.CampaignStatus, error)
}

type CollectionService interface {
	Launch(ctx context.Context, req collector.LaunchRequest) (string, error)
	Status(ctx context.Context, target string) (model.JobStatus, error)
	StatusByID(ctx context.Context, leadID string) (model.JobStatus, error)
}

type RecoveryJob interface {
	Status() scheduler.Status
	RunNow(ctx context.Context) error
}

type Handler struct {
	campaigns   CampaignService
	collections CollectionService
	recovery    RecoveryJob
}

func NewHandler(c CampaignService, col CollectionService, rec RecoveryJob) *Handler {
	return &Handler{campaigns: c, collections: col, recovery: rec}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type startCampaignRequest struct {
	Recipients  []model.Recipient `json:"recipients"`
	Template    string            `json:"template"`
	Credentials model.Credentials `json:"credentials"`
}

func (h *Handler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	var body startCampaignRequest
	if !decodeBody(w, r, &body) {
		return
	}

	id := chi.URLParam(r, "id")
	err := h.campaigns.StartCampaign(r.Context(), campaign.StartRequest{
		CampaignID:  id,
		Recipients:  body.Recipients,
		Template:    body.Template,
		Credentials: body.Credentials,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"campaignId": id, "queued": len(body.Recipients)})
}

func (h *Handler) StopCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.campaigns.StopCampaign(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"campaignId": id, "stopped": true})
}

func (h *Handler) CampaignStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.campaigns.CampaignStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type launchCollectionRequest struct {
	TargetProfile string            `json:"targetProfile"`
	Count         int               `json:"count"`
	Credentials   model.Credentials `json:"credentials"`
	ImportParams  map[string]any    `json:"importParams"`
}

func (h *Handler) LaunchCollection(w http.ResponseWriter, r *http.Request) {
	var body launchCollectionRequest
	if !decodeBody(w, r, &body) {
		return
	}

	id, err := h.collections.Launch(r.Context(), collector.LaunchRequest{
		TargetProfile: body.TargetProfile,
		Count:         body.Count,
		Credentials:   body.Credentials,
		ImportParams:  body.ImportParams,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"leadId": id, "status": model.JobInProgress})
}

func (h *Handler) CollectionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.collections.Status(r.Context(), r.URL.Query().Get("target"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) CollectionStatusByID(w http.ResponseWriter, r *http.Request) {
	st, err := h.collections.StatusByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) RecoveryStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.recovery.Status())
}

func (h *Handler) RecoveryRun(w http.ResponseWriter, r *http.Request) {
	if err := h.recovery.RunNow(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.recovery.Status())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body: " + err.Error()})
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, campaign.ErrInvalidRequest), errors.Is(err, collector.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, worker.ErrPoolFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
