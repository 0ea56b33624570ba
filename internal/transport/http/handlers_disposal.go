package httptransport

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/disposal"
	"custodia/internal/transport/http/shared"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

type disposeRequest struct {
	Kind           string   `json:"kind,omitempty"`
	Method         string   `json:"method"`
	Reason         string   `json:"reason"`
	Witness        string   `json:"witness,omitempty"`
	StatutoryYears int      `json:"statutory_years"`
	ComplianceTags []string `json:"compliance_tags,omitempty"`
	Ticket         string   `json:"ticket,omitempty"`
	SubjectRequest string   `json:"subject_request,omitempty"`
}

func (h *Handler) handleDispose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var body disposeRequest
	if err := shared.DecodeJSON(r, &body); err != nil {
		shared.WriteError(w, err)
		return
	}
	method, err := id.ParseDisposalMethod(body.Method)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	req := disposal.DisposeRequest{
		RecordID:       recordID,
		Method:         method,
		Reason:         body.Reason,
		Witness:        body.Witness,
		StatutoryYears: body.StatutoryYears,
		ComplianceTags: body.ComplianceTags,
	}
	if body.Kind != "" {
		kind, err := id.ParseActionKind(body.Kind)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		req.Kind = kind
	}
	switch {
	case body.SubjectRequest != "":
		req.Origin = disposal.SubjectRequest{RequestRef: body.SubjectRequest}
	case body.Ticket != "":
		req.Origin = disposal.ManualAdmin{Ticket: body.Ticket}
	default:
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput,
			"a ticket or subject request reference is required"))
		return
	}

	cert, err := h.disposal.DisposeRecord(ctx, req)
	if err != nil {
		var holdErr *disposal.HoldActiveError
		if errors.As(err, &holdErr) {
			shared.WriteErrorDetails(w, err, map[string]any{
				"hold_expires_at": holdErr.ExpiresAt.Format(time.RFC3339),
			})
			return
		}
		shared.WriteError(w, err)
		return
	}
	h.invalidatePosture(ctx)
	shared.WriteJSON(w, http.StatusCreated, cert)
}

func (h *Handler) handleVerifyCertificate(w http.ResponseWriter, r *http.Request) {
	certID, err := id.ParseCertificateID(chi.URLParam(r, "certificateID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.disposal.VerifyCertificate(r.Context(), certID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}
