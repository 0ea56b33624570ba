package httptransport

import (
	"net/http"
	"time"

	"custodia/internal/transport/http/shared"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/requestcontext"
)

func (h *Handler) handleLedgerEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := requestcontext.Now(r.Context())

	// Default window: the trailing 30 days.
	start := now.AddDate(0, 0, -30)
	end := now
	var err error
	if raw := q.Get("start"); raw != "" {
		if start, err = time.Parse(time.RFC3339, raw); err != nil {
			shared.WriteError(w, dErrors.Newf(dErrors.CodeInvalidInput, "invalid start time %q", raw))
			return
		}
	}
	if raw := q.Get("end"); raw != "" {
		if end, err = time.Parse(time.RFC3339, raw); err != nil {
			shared.WriteError(w, dErrors.Newf(dErrors.CodeInvalidInput, "invalid end time %q", raw))
			return
		}
	}

	entries, err := h.ledger.FindByTenantAndRange(r.Context(), start, end)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"start":   start,
		"end":     end,
	})
}

func (h *Handler) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.VerifyChain(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleGetPosture(w http.ResponseWriter, r *http.Request) {
	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "30d"
	}
	view, err := h.posture.GetPosture(r.Context(), timeframe)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, view)
}
