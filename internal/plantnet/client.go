// Package plantnet is a client for the Pl@ntNet image identification API.
package plantnet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL  = "https://my-api.plantnet.org"
	defaultProject  = "all"
	defaultTimeout  = 60 * time.Second
	maxRetries      = 3
	initialBackoff  = 500 * time.Millisecond
	maxErrorBodyLen = 512
)

// Candidate is one species match.
type Candidate struct {
	Score          float64
	ScientificName string
	CommonNames    []string
	Family         string
}

// CommonName returns the first common name, falling back to the
// scientific name.
func (c Candidate) CommonName() string {
	if len(c.CommonNames) > 0 && c.CommonNames[0] != "" {
		return c.CommonNames[0]
	}
	return c.ScientificName
}

// StatusError is returned for non-2xx answers other than 404.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("plantnet: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("plantnet: unexpected status %d: %s", e.Code, e.Body)
}

// HTTPStatus returns the upstream status code.
func (e *StatusError) HTTPStatus() int { return e.Code }

// Client calls the Pl@ntNet identify endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	project    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different host (for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithProject selects the flora project, e.g. "all" or "weurope".
func WithProject(p string) Option {
	return func(c *Client) {
		if p != "" {
			c.project = p
		}
	}
}

// WithRequestsPerMinute limits outgoing calls. Zero or less disables limiting.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		} else {
			c.limiter = nil
		}
	}
}

// NewClient creates a Pl@ntNet client with the given API key.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		project: defaultProject,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c != nil && c.apiKey != "" }

type identifyResponse struct {
	Results []struct {
		Score   float64 `json:"score"`
		Species struct {
			ScientificNameWithoutAuthor string   `json:"scientificNameWithoutAuthor"`
			CommonNames                 []string `json:"commonNames"`
			Family                      struct {
				ScientificNameWithoutAuthor string `json:"scientificNameWithoutAuthor"`
			} `json:"family"`
		} `json:"species"`
	} `json:"results"`
}

// Identify sends one photo and returns candidates ordered by score. A
// "species not found" answer yields no candidates and no error.
func (c *Client) Identify(ctx context.Context, mediaType string, image []byte) ([]Candidate, error) {
	body, contentType, err := buildForm(mediaType, image)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := range maxRetries {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		cands, err := c.doIdentify(ctx, body, contentType)
		if err == nil {
			return cands, nil
		}
		if !isRateLimit(err) {
			return nil, err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func isRateLimit(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

func buildForm(mediaType string, image []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="images"; filename="plant"`)
	h.Set("Content-Type", mediaType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("creating image part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("writing image part: %w", err)
	}
	if err := mw.WriteField("organs", "auto"); err != nil {
		return nil, "", fmt.Errorf("writing organs field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func redactKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable url]"
	}
	q := u.Query()
	if q.Has("api-key") {
		q.Set("api-key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) doIdentify(ctx context.Context, body []byte, contentType string) ([]Candidate, error) {
	u := fmt.Sprintf("%s/v2/identify/%s?%s", c.baseURL, url.PathEscape(c.project), url.Values{
		"api-key":                {c.apiKey},
		"include-related-images": {"false"},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The transport error quotes the URL, which carries the key.
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redactKey(ue.URL)
		}
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var ir identifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	cands := make([]Candidate, 0, len(ir.Results))
	for _, r := range ir.Results {
		if r.Species.ScientificNameWithoutAuthor == "" {
			continue
		}
		cands = append(cands, Candidate{
			Score:          r.Score,
			ScientificName: r.Species.ScientificNameWithoutAuthor,
			CommonNames:    r.Species.CommonNames,
			Family:         r.Species.Family.ScientificNameWithoutAuthor,
		})
	}
	return cands, nil
}
