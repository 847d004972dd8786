package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/helixir/materials-aggregator/internal/domain"
)

const (
	// maxBodySize bounds how much of a provider response is read.
	maxBodySize = 10 << 20

	// bodyExcerptSize bounds the body text carried by a rejection error.
	bodyExcerptSize = 200
)

// credentialParam matches query parameters that carry provider keys
// (Ticketmaster apikey, NCBI api_key).
var credentialParam = regexp.MustCompile(`(?i)([?&]api_?key=)[^&#\s"]*`)

// RedactURL masks credential query parameters in rawURL.
func RedactURL(rawURL string) string {
	return credentialParam.ReplaceAllString(rawURL, "${1}REDACTED")
}

// redact masks credentials in the URL of a *url.Error anywhere in err's chain.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = RedactURL(urlErr.URL)
	}
	return err
}

// InvalidURL reports a request URL that could not be built from the
// adapter's configuration.
func InvalidURL(source domain.SourceType, err error) *domain.UpstreamError {
	return &domain.UpstreamError{
		Source:  source,
		Kind:    domain.UpstreamMisconfigured,
		Message: "invalid request URL",
		Cause:   redact(err),
	}
}

// Get issues a GET to rawURL and returns the response body of a 2xx reply.
// Network failures become UpstreamUnavailable; non-2xx replies are classified
// by domain.NewStatusError with a body excerpt. Credential query parameters
// never appear in the returned error.
func Get(ctx context.Context, client *HTTPClient, source domain.SourceType, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, InvalidURL(source, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, domain.NewUnavailableError(source, redact(err))
	}
	defer resp.Body.Close()

	if err := CheckResponse(source, resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, domain.NewUnavailableError(source, fmt.Errorf("reading body: %w", err))
	}
	return body, nil
}

// CheckResponse returns nil for 2xx responses and a classified
// *domain.UpstreamError otherwise. The body is read only on failure.
func CheckResponse(source domain.SourceType, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, bodyExcerptSize))
	upstreamErr := domain.NewStatusError(source, resp.StatusCode, strings.TrimSpace(string(excerpt)))
	if d, ok := ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
		upstreamErr.RetryAfter = d
	}
	return upstreamErr
}

// DecodeJSON unmarshals body into v, reporting failures as malformed payloads.
// Unknown fields are ignored.
func DecodeJSON(source domain.SourceType, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return domain.NewMalformedError(source, err)
	}
	return nil
}
