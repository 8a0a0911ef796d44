package federation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sylvanet/arbor/internal/apperr"
	"github.com/sylvanet/arbor/internal/metrics"
)

// maxObjectBytes caps a single fetched object.
const maxObjectBytes = 1 << 20

// Fetcher retrieves a remote object by protocol identifier. Implementations
// are responsible for transport-level signature verification; failures
// surface as apperr.ErrUnreachable, apperr.ErrInvalidSignature, or
// apperr.ErrMalformedPayload.
type Fetcher interface {
	Fetch(ctx context.Context, apID string) ([]byte, error)
}

// SignatureVerifier checks the cryptographic signature of a fetched
// response. The zero behavior (nil verifier) trusts the transport, which
// is only appropriate in tests.
type SignatureVerifier interface {
	Verify(resp *http.Response, body []byte) error
}

// HTTPFetcher fetches objects over HTTP with a shared politeness limiter.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	verifier  SignatureVerifier
}

// Verify *HTTPFetcher satisfies Fetcher at compile time.
var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher builds a fetcher limited to fetchesPerSecond across all
// destinations. verifier may be nil to skip signature checks.
func NewHTTPFetcher(timeout time.Duration, fetchesPerSecond float64, userAgent string, verifier SignatureVerifier) *HTTPFetcher {
	if fetchesPerSecond <= 0 {
		fetchesPerSecond = 10
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(fetchesPerSecond), 1),
		userAgent: userAgent,
		verifier:  verifier,
	}
}

// Fetch retrieves the object at apID.
func (f *HTTPFetcher) Fetch(ctx context.Context, apID string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("federation: fetch cancelled: %w", err)
	}
	metrics.RemoteFetches.Inc()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apID, nil)
	if err != nil {
		return nil, fmt.Errorf("federation: build request for %q: %w", apID, apperr.ErrMalformedPayload)
	}
	req.Header.Set("Accept", "application/activity+json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("federation: fetch %q: %v: %w", apID, err, apperr.ErrUnreachable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("federation: fetch %q: status %d: %w", apID, resp.StatusCode, apperr.ErrUnreachable)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectBytes))
	if err != nil {
		return nil, fmt.Errorf("federation: read %q: %v: %w", apID, err, apperr.ErrUnreachable)
	}
	if f.verifier != nil {
		if err := f.verifier.Verify(resp, body); err != nil {
			return nil, fmt.Errorf("federation: verify %q: %v: %w", apID, err, apperr.ErrInvalidSignature)
		}
	}
	return body, nil
}
