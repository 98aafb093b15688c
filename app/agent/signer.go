package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Signer obtains the certificate and per-request signatures the spooling
// agent demands, by delegating to a server-side signing endpoint. The
// station never holds a private key.
type Signer struct {
	signingURL string
	token      string
	httpClient *http.Client

	mu          sync.Mutex
	certificate string
}

// NewSigner creates a signer backed by the given HTTPS endpoint and
// bearer token.
func NewSigner(signingURL, token string) *Signer {
	return &Signer{
		signingURL: signingURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Certificate returns the signing certificate, fetching it on first use
// and caching it for the life of the process.
func (s *Signer) Certificate(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.certificate != "" {
		return s.certificate, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.signingURL+"/certificate", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build certificate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch certificate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("certificate endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read certificate response: %w", err)
	}

	s.certificate = string(body)
	return s.certificate, nil
}

// Sign signs the agent's challenge string via the signing endpoint.
func (s *Signer) Sign(ctx context.Context, challenge string) (string, error) {
	payload, err := json.Marshal(map[string]string{"request": challenge})
	if err != nil {
		return "", fmt.Errorf("failed to encode signing request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.signingURL+"/sign", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build signing request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call signing endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("signing endpoint returned status %d", resp.StatusCode)
	}

	var result struct {
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode signing response: %w", err)
	}
	if result.Signature == "" {
		return "", fmt.Errorf("signing endpoint returned empty signature")
	}

	return result.Signature, nil
}
