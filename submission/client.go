// Package submission sends captured leads to the remote ingestion endpoint.
package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	leadcapture "github.com/phbpx/leadcapture"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultUserAgent    = "leadcapture-form/1.0"
	maxResponseBodySize = 1 << 20 // 1MB
)

// Config controls how the Client reaches the endpoint.
type Config struct {
	// URL is the ingestion endpoint leads are POSTed to.
	URL string

	// Token is the bearer credential attached to every request. It is a
	// deployment secret and must come from configuration.
	Token string

	// Timeout bounds a whole request. Zero means no timeout.
	Timeout time.Duration

	HTTPClient *http.Client
	Log        *zap.SugaredLogger
	UserAgent  string
}

// Client posts form input to the ingestion endpoint. It makes exactly one
// attempt per call and never retries.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
	log        *zap.SugaredLogger
	userAgent  string
	tracer     trace.Tracer
}

// Receipt is the endpoint's confirmation that it accepted a lead.
type Receipt struct {
	StatusCode int
	// Body is the JSON the endpoint answered with. Empty when the endpoint
	// sent no body.
	Body json.RawMessage
}

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, errors.New("submission: endpoint URL is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("submission: invalid endpoint URL %q", endpoint)
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("submission: bearer token is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		url:        u.String(),
		token:      cfg.Token,
		httpClient: httpClient,
		log:        log,
		userAgent:  userAgent,
		tracer:     otel.Tracer("leadcapture/submission"),
	}, nil
}

// Submit sends in to the endpoint. Any failure is reported as a
// *leadcapture.SubmissionError.
func (c *Client) Submit(ctx context.Context, in leadcapture.FormInput) (Receipt, error) {
	ctx, span := c.tracer.Start(ctx, "submission.submit")
	defer span.End()

	body, err := json.Marshal(in.Normalize())
	if err != nil {
		return Receipt{}, c.fail(span, &leadcapture.SubmissionError{
			Kind:    leadcapture.SubmissionMalformed,
			Message: "encoding payload failed",
			Err:     err,
		})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, c.fail(span, &leadcapture.SubmissionError{
			Kind:    leadcapture.SubmissionTransport,
			Message: "building request failed",
			Err:     err,
		})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Receipt{}, c.fail(span, &leadcapture.SubmissionError{
			Kind:    leadcapture.SubmissionTransport,
			Message: "transport failure: " + err.Error(),
			Err:     err,
		})
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Receipt{}, c.fail(span, &leadcapture.SubmissionError{
			Kind:       leadcapture.SubmissionTransport,
			StatusCode: resp.StatusCode,
			Message:    "reading response failed: " + err.Error(),
			Err:        err,
		})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Receipt{}, c.fail(span, &leadcapture.SubmissionError{
			Kind:       leadcapture.SubmissionRejected,
			StatusCode: resp.StatusCode,
			Message:    rejectionMessage(data),
		})
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && !json.Valid(data) {
		return Receipt{}, c.fail(span, &leadcapture.SubmissionError{
			Kind:       leadcapture.SubmissionMalformed,
			StatusCode: resp.StatusCode,
			Message:    "endpoint returned a non-JSON body",
		})
	}

	c.log.Debugw("submission", "status", "accepted", "http_status", resp.StatusCode)

	return Receipt{StatusCode: resp.StatusCode, Body: json.RawMessage(data)}, nil
}

func (c *Client) fail(span trace.Span, err *leadcapture.SubmissionError) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(err.Kind))
	c.log.Debugw("submission", "status", "failed", "kind", err.Kind, "http_status", err.StatusCode, "message", err.Message)
	return err
}

// rejectionMessage pulls the "message" field out of an error body.
func rejectionMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return leadcapture.FallbackSubmissionMessage
	}
	if strings.TrimSpace(body.Message) == "" {
		return leadcapture.FallbackSubmissionMessage
	}
	return body.Message
}
