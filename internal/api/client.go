// Package api is the HTTP client for the MakeLocal order management API.
// Every call runs under a timeout and failures are reported as
// *errors.APIError with one of the TIMEOUT, ABORTED, NETWORK_ERROR,
// API_ERROR or UNKNOWN_ERROR codes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Alturino/makelocal/internal/config"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/metrics"
	"github.com/Alturino/makelocal/internal/otel"
)

const (
	DefaultTimeout          = 5 * time.Second
	DefaultMaxResponseBytes = 5 << 20

	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-Id"
	// text/plain keeps browser callers of the same API out of CORS preflight;
	// the API parses the body as JSON regardless.
	contentTypeBody = "text/plain;charset=UTF-8"
)

var (
	errRequestTimeout    = errors.New("request timed out")
	errCrossHostRedirect = errors.New("redirect to another host refused")
	errTooManyRedirects  = errors.New("stopped after 10 redirects")
)

type Client struct {
	baseURL      string
	timeout      time.Duration
	http         *http.Client
	metrics      *metrics.Metrics
	maxBodyBytes int64
}

type RequestOption func(*http.Request)

func WithBearerToken(token string) RequestOption {
	return func(r *http.Request) {
		if token != "" {
			r.Header.Set(headerAuthorization, "Bearer "+token)
		}
	}
}

// NewClient builds a client whose cookie jar replays cookies set by the API,
// mirroring a browser sending credentials with every request. The jar belongs
// to one visitor; use Scoped to get a client for another one.
func NewClient(cfg config.Api, m *metrics.Metrics) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed creating cookie jar with error=%w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBody := cfg.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxResponseBytes
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		http: &http.Client{
			Transport:     otelhttp.NewTransport(http.DefaultTransport),
			CheckRedirect: sameHostRedirect,
			Jar:           jar,
		},
		metrics:      m,
		maxBodyBytes: maxBody,
	}, nil
}

// Scoped returns a client sharing the transport of cl with an empty cookie
// jar of its own.
func (cl *Client) Scoped() (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed creating cookie jar with error=%w", err)
	}
	scoped := *cl
	scoped.http = &http.Client{
		Transport:     cl.http.Transport,
		CheckRedirect: cl.http.CheckRedirect,
		Jar:           jar,
	}
	return &scoped, nil
}

func (cl *Client) Configured() bool {
	return cl.baseURL != ""
}

// Do sends body (JSON encoded, may be nil) to endpoint and decodes a JSON
// response into out (may be nil).
func (cl *Client) Do(
	c context.Context,
	method string,
	endpoint string,
	body any,
	out any,
	opts ...RequestOption,
) (err error) {
	c, span := otel.Tracer.Start(c, "Client Do")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Client Do").
		Str(log.KeyEndpoint, endpoint).
		Str(log.KeyRequestMethod, method).
		Logger()

	start := time.Now()
	defer func() {
		code := "OK"
		var apiErr *inErrors.APIError
		if errors.As(err, &apiErr) {
			code = string(apiErr.Code)
		}
		cl.metrics.ObserveAPIRequest(endpointLabel(endpoint), code, time.Since(start).Seconds())
		if err != nil {
			inErrors.HandleError(err, span)
			logger.Error().Err(err).Msg(err.Error())
		}
	}()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &inErrors.APIError{
				Code:    inErrors.CodeUnknownError,
				Message: "failed encoding request body",
				Err:     err,
			}
		}
		reader = bytes.NewReader(raw)
	}

	raw, _, err := cl.send(c, method, cl.baseURL+endpoint, reader, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &inErrors.APIError{
			Code:    inErrors.CodeUnknownError,
			Message: "failed decoding response body",
			Err:     err,
		}
	}
	logger.Trace().Msg("decoded response body")
	return nil
}

// Fetch downloads an absolute url under the same timeout rules and returns the
// body with its content type.
func (cl *Client) Fetch(c context.Context, url string) ([]byte, string, error) {
	c, span := otel.Tracer.Start(c, "Client Fetch")
	defer span.End()

	raw, contentType, err := cl.send(c, http.MethodGet, url, nil)
	if err != nil {
		inErrors.HandleError(err, span)
		return nil, "", err
	}
	return raw, contentType, nil
}

func (cl *Client) send(
	c context.Context,
	method string,
	url string,
	body io.Reader,
	opts ...RequestOption,
) ([]byte, string, error) {
	ctx, cancel := context.WithTimeoutCause(c, cl.timeout, errRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, "", &inErrors.APIError{
			Code:    inErrors.CodeUnknownError,
			Message: "failed creating request",
			Err:     err,
		}
	}
	if body != nil {
		req.Header.Set(headerContentType, contentTypeBody)
	}
	if requestID := log.RequestIDFromContext(c); requestID != "" {
		req.Header.Set(headerRequestID, requestID)
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := cl.http.Do(req)
	if err != nil {
		return nil, "", cl.transportError(c, ctx, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, cl.maxBodyBytes+1))
	if err != nil {
		return nil, "", cl.transportError(c, ctx, url, err)
	}
	if int64(len(raw)) > cl.maxBodyBytes {
		return nil, "", &inErrors.APIError{
			Code:       inErrors.CodeAPIError,
			Message:    fmt.Sprintf("response from %s exceeds %d bytes", url, cl.maxBodyBytes),
			StatusCode: resp.StatusCode,
		}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, "", statusError(resp.StatusCode, raw)
	}
	return raw, resp.Header.Get(headerContentType), nil
}

func (cl *Client) transportError(parent context.Context, ctx context.Context, url string, err error) error {
	switch {
	case parent.Err() != nil:
		return &inErrors.APIError{
			Code:    inErrors.CodeAborted,
			Message: "request was cancelled, please try again",
			Err:     err,
		}
	case errors.Is(context.Cause(ctx), errRequestTimeout):
		return &inErrors.APIError{
			Code:    inErrors.CodeTimeout,
			Message: fmt.Sprintf("request to %s timed out after %s", url, cl.timeout),
			Err:     err,
		}
	default:
		return &inErrors.APIError{
			Code:    inErrors.CodeNetworkError,
			Message: "network connection failed, please check your internet connection",
			Err:     err,
		}
	}
}

type errorBody struct {
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

func statusError(status int, raw []byte) error {
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	apiErr := &inErrors.APIError{
		Code:       inErrors.CodeAPIError,
		Message:    body.Message,
		StatusCode: status,
		Details:    body.Details,
	}
	if body.Code != "" {
		apiErr.Code = inErrors.APICode(body.Code)
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("HTTP error! status: %d", status)
	}
	return apiErr
}

// sameHostRedirect keeps redirects on the host of the original request.
func sameHostRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errTooManyRedirects
	}
	if !strings.EqualFold(req.URL.Host, via[0].URL.Host) {
		return errCrossHostRedirect
	}
	return nil
}

func endpointLabel(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}
