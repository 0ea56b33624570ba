package disposal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	dErrors "custodia/pkg/domain-errors"
)

// AnchorProof is an external timestamping authority's attestation that a
// fingerprint existed at a point in time.
type AnchorProof struct {
	Proof     string    `json:"proof"`
	Timestamp time.Time `json:"timestamp"`
}

// Anchorer submits fingerprints for external timestamp anchoring. Anchoring
// is best-effort: failures weaken a certificate's external-provenance claim
// but never invalidate it.
type Anchorer interface {
	Submit(ctx context.Context, fingerprint string) (*AnchorProof, error)
}

// HTTPAnchorer talks to a timestamping service over HTTP.
type HTTPAnchorer struct {
	baseURL string
	client  *http.Client
}

func NewHTTPAnchorer(baseURL string, timeout time.Duration) (*HTTPAnchorer, error) {
	if baseURL == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "anchor service url is required")
	}
	return &HTTPAnchorer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (a *HTTPAnchorer) Submit(ctx context.Context, fingerprint string) (*AnchorProof, error) {
	body, err := json.Marshal(map[string]string{"hash": fingerprint})
	if err != nil {
		return nil, fmt.Errorf("marshal anchor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/anchors", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build anchor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit anchor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("anchor service returned status %d", resp.StatusCode)
	}

	var proof AnchorProof
	if err := json.NewDecoder(resp.Body).Decode(&proof); err != nil {
		return nil, fmt.Errorf("decode anchor response: %w", err)
	}
	if proof.Proof == "" || proof.Timestamp.IsZero() {
		return nil, fmt.Errorf("anchor service returned incomplete proof")
	}
	return &proof, nil
}
