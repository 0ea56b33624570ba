package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/retention"
	"custodia/internal/transport/http/shared"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

type applyHoldRequest struct {
	Reason      string     `json:"reason"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Duration    string     `json:"duration,omitempty"`
	ExternalRef string     `json:"external_ref,omitempty"`
}

func (h *Handler) handleApplyHold(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var body applyHoldRequest
	if err := shared.DecodeJSON(r, &body); err != nil {
		shared.WriteError(w, err)
		return
	}

	req := retention.ApplyHoldRequest{
		RecordID:    recordID,
		Reason:      body.Reason,
		ExpiresAt:   body.ExpiresAt,
		ExternalRef: body.ExternalRef,
	}
	if body.Duration != "" {
		d, err := time.ParseDuration(body.Duration)
		if err != nil {
			shared.WriteError(w, dErrors.Newf(dErrors.CodeInvalidInput, "invalid duration %q", body.Duration))
			return
		}
		req.Duration = d
	}

	record, err := h.retention.ApplyHold(ctx, req)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	h.invalidatePosture(ctx)
	shared.WriteJSON(w, http.StatusOK, record)
}

type releaseHoldRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleReleaseHold(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var body releaseHoldRequest
	if err := shared.DecodeJSON(r, &body); err != nil {
		shared.WriteError(w, err)
		return
	}

	record, err := h.retention.ReleaseHold(ctx, recordID, body.Reason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	h.invalidatePosture(ctx)
	shared.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleListExpiring(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	statutoryYears, err := queryInt(q.Get("statutory_years"), 0)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	page, err := queryInt(q.Get("page"), 1)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	pageSize, err := queryInt(q.Get("page_size"), 0)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	includeHeld := q.Get("include_held") == "true"

	listing, err := h.retention.FindExpiring(r.Context(), q.Get("record_type"),
		statutoryYears, page, pageSize, includeHeld)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"records": listing,
		"page":    page,
	})
}

type bulkStatusRequest struct {
	RecordIDs []string `json:"record_ids"`
	Status    string   `json:"status"`
	Reason    string   `json:"reason"`
}

func (h *Handler) handleBulkStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body bulkStatusRequest
	if err := shared.DecodeJSON(r, &body); err != nil {
		shared.WriteError(w, err)
		return
	}

	status, err := id.ParseRecordStatus(body.Status)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	recordIDs := make([]id.RecordID, 0, len(body.RecordIDs))
	for _, raw := range body.RecordIDs {
		recordID, err := id.ParseRecordID(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		recordIDs = append(recordIDs, recordID)
	}

	result, err := h.retention.BulkUpdateStatus(ctx, recordIDs, status, body.Reason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	h.invalidatePosture(ctx)
	shared.WriteJSON(w, http.StatusOK, result)
}

func queryInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "invalid integer %q", raw)
	}
	return n, nil
}
