// Package supabase is a client for a Supabase project: GoTrue for authentication and
// PostgREST for table rows.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-advisor-auth/internal/config"
	"github.com/jrsteele09/go-advisor-auth/provider"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	authPath = "/auth/v1"
	restPath = "/rest/v1"

	defaultRequestsPerSecond = 10
	defaultTimeout           = 30 * time.Second
)

var _ provider.Provider = (*Client)(nil)

// Client talks to one Supabase project. It implements provider.Provider and exposes
// row operations used by the REST backed repositories.
type Client struct {
	provider.Emitter

	baseURL    string
	anonKey    string
	httpClient *http.Client
	limiter    *rate.Limiter
	keySet     oidc.KeySet
	verifier   *oidc.IDTokenVerifier
	nowTime    func() time.Time
	logger     zerolog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit throttles outgoing requests. A non positive rps disables throttling.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTokenVerification verifies access tokens received in OAuth callbacks against the
// project's published signing keys.
func WithTokenVerification() ClientOption {
	return func(c *Client) {
		c.keySet = oidc.NewRemoteKeySet(context.Background(), c.baseURL+authPath+"/.well-known/jwks.json")
	}
}

// WithKeySet verifies callback access tokens with keySet.
func WithKeySet(keySet oidc.KeySet) ClientOption {
	return func(c *Client) {
		c.keySet = keySet
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(baseURL, anonKey string, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[supabase.New] base URL is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.Wrap(err, "[supabase.New] invalid base URL")
	}
	if anonKey == "" {
		return nil, errors.New("[supabase.New] anon key is required")
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(defaultRequestsPerSecond, defaultRequestsPerSecond),
		nowTime:    time.Now,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}

	if c.keySet != nil {
		c.verifier = oidc.NewVerifier(c.Issuer(), c.keySet, &oidc.Config{
			SkipClientIDCheck:    true,
			SupportedSigningAlgs: []string{oidc.RS256, oidc.ES256},
			Now:                  c.nowTime,
		})
	}
	return c, nil
}

// Issuer is the iss claim of tokens minted by the project.
func (c *Client) Issuer() string {
	return c.baseURL + authPath
}

// Configured reports whether the client points at a real project.
func (c *Client) Configured() bool {
	return config.IsConfigured(c.baseURL, c.anonKey)
}

type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	token   string
	headers map[string]string
}

// do sends req and decodes a successful JSON response into out, when out is non nil.
// Failed responses are returned as *provider.Error.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "[Client.do] rate limit wait")
		}
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return errors.Wrap(err, "[Client.do] encode body")
		}
		body = bytes.NewReader(payload)
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return errors.Wrap(err, "[Client.do] new request")
	}

	token := req.token
	if token == "" {
		token = c.anonKey
	}
	httpReq.Header.Set("apikey", c.anonKey)
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "[Client.do] %s %s", req.method, req.path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "[Client.do] read body")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := parseError(resp.StatusCode, raw)
		c.logger.Debug().Int("status", apiErr.Status).Str("code", apiErr.Code).Str("path", req.path).Msg(apiErr.Message)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "[Client.do] decode response")
	}
	return nil
}

// errorBody covers both GoTrue and PostgREST error payloads.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
}

func parseError(status int, raw []byte) *provider.Error {
	apiErr := &provider.Error{Status: status}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
		return apiErr
	}

	apiErr.Code = body.ErrorCode
	if apiErr.Code == "" {
		// PostgREST sends a string code, GoTrue repeats the HTTP status as a number.
		var code string
		if json.Unmarshal(body.Code, &code) == nil {
			apiErr.Code = code
		} else if body.Error != "" {
			apiErr.Code = body.Error
		}
	}

	for _, msg := range []string{body.ErrorDescription, body.Msg, body.Message, body.Error} {
		if msg != "" {
			apiErr.Message = msg
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func unixTime(seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
