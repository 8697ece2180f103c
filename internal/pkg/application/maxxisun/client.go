package maxxisun

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/diwise/integration-maxxisun/domain"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

const (
	DefaultBaseURL string = "https://maxxisun.app:3000"

	TelemetryPath string = "/api/device/last"
	ConfigPath    string = "/api/device/config"

	userAgent    string = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0"
	acceptHeader string = "application/json, text/plain, */*"
)

var tracer = otel.Tracer("integration-maxxisun/maxxisun")

type Client interface {
	GetTelemetry(ctx context.Context) (domain.Snapshot, error)
	GetConfig(ctx context.Context) (any, error)
	PutConfig(ctx context.Context, payload domain.Snapshot) (any, error)
}

type client struct {
	baseURL    string
	token      string
	httpClient http.Client
}

type Option func(*client)

// WithInsecureSkipVerify disables certificate verification for every request
// made by the client.
func WithInsecureSkipVerify(skip bool) Option {
	return func(c *client) {
		if !skip {
			return
		}
		customTransport := http.DefaultTransport.(*http.Transport).Clone()
		customTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		c.httpClient.Transport = otelhttp.NewTransport(customTransport)
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *client) {
		c.httpClient.Timeout = timeout
	}
}

func New(baseURL, token string, opts ...Option) Client {
	c := &client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *client) GetTelemetry(ctx context.Context) (domain.Snapshot, error) {
	var err error

	ctx, span := tracer.Start(ctx, "get-telemetry")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var body any
	body, err = c.do(ctx, http.MethodGet, TelemetryPath, nil)
	if err != nil {
		return nil, err
	}

	obj, ok := body.(map[string]any)
	if !ok {
		err = fmt.Errorf("telemetry is not a json object: %w", ErrMalformedResponse)
		return nil, err
	}

	return domain.Snapshot(obj), nil
}

func (c *client) GetConfig(ctx context.Context) (any, error) {
	var err error

	ctx, span := tracer.Start(ctx, "get-config")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var body any
	body, err = c.do(ctx, http.MethodGet, ConfigPath, nil)

	return body, err
}

func (c *client) PutConfig(ctx context.Context, payload domain.Snapshot) (any, error) {
	var err error

	ctx, span := tracer.Start(ctx, "put-config")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var b []byte
	b, err = json.Marshal(payload)
	if err != nil {
		err = fmt.Errorf("failed to marshal config payload: %w", err)
		return nil, err
	}

	var body any
	body, err = c.do(ctx, http.MethodPut, ConfigPath, b)

	return body, err
}

// do performs a request and decodes the json body. An empty body decodes to nil.
func (c *client) do(ctx context.Context, method, path string, payload []byte) (any, error) {
	url := c.baseURL + path

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Add("User-Agent", userAgent)
	req.Header.Add("Accept", acceptHeader)
	req.Header.Add("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, &StatusError{Method: method, URL: url, Code: resp.StatusCode}
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Err: err}
	}

	if len(bytes.TrimSpace(respBytes)) == 0 {
		return nil, nil
	}

	var body any
	err = json.Unmarshal(respBytes, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal response body: %s: %w", err.Error(), ErrMalformedResponse)
	}

	return body, nil
}
