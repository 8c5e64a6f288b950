// Package iam is the gateway to the identity provider's SCIM REST API. It owns
// the OAuth2 credential of the tool and refreshes it transparently; callers
// only see the resource operations.
package iam

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/idcs-tools/scimctl/internal/config"
	"github.com/idcs-tools/scimctl/pkg/logger"
	"github.com/idcs-tools/scimctl/pkg/scim"
	"github.com/idcs-tools/scimctl/pkg/telemetry"
)

var tracer = otel.Tracer("internal/iam")

// AdminPath is the prefix of every admin API resource.
const AdminPath = "/admin/v1"

const (
	defaultRetryMax     = 3
	defaultRetryWaitMin = 500 * time.Millisecond
	defaultRetryWaitMax = 3 * time.Second
)

type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	tokens     *sharedTokenSource
	logger     logger.Logger
}

type ClientOption func(*clientOptions)

type clientOptions struct {
	logger       logger.Logger
	baseClient   *http.Client
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// WithLogger sets the logger used for request tracing. Defaults to a noop logger.
func WithLogger(l logger.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = l
	}
}

// WithHTTPClient sets the client whose transport carries every request,
// including the token requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.baseClient = c
	}
}

// WithRetryPolicy tunes the retries of idempotent requests.
func WithRetryPolicy(retryMax int, waitMin, waitMax time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.retryMax = retryMax
		o.retryWaitMin = waitMin
		o.retryWaitMax = waitMax
	}
}

// New builds a Client and acquires the first access token so that bad
// credentials are reported before any work starts.
func New(ctx context.Context, cfg *config.Config, opts ...ClientOption) (*Client, error) {
	o := &clientOptions{
		logger:       logger.NewNoopLogger(),
		baseClient:   &http.Client{},
		retryMax:     defaultRetryMax,
		retryWaitMin: defaultRetryWaitMin,
		retryWaitMax: defaultRetryWaitMax,
	}
	for _, opt := range opts {
		opt(o)
	}

	baseTransport := o.baseClient.Transport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}

	// token requests are never retried: a credential problem is fatal
	tokenClient := &http.Client{
		Transport: otelhttp.NewTransport(baseTransport),
		Timeout:   cfg.Timeout,
	}

	ccConfig := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL(),
		Scopes:       []string{cfg.Scope},
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, tokenClient)

	c := &Client{
		baseURL:  strings.TrimSuffix(cfg.IAMURL, "/"),
		clientID: cfg.ClientID,
		logger:   o.logger,
	}
	c.tokens = newSharedTokenSource(func() (*oauth2.Token, error) {
		tok, err := ccConfig.Token(tokenCtx)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("acquired access token", tokenFields(tok)...)
		return tok, nil
	})

	retrying := retryablehttp.NewClient()
	retrying.HTTPClient = &http.Client{Transport: baseTransport}
	retrying.Logger = nil
	retrying.RetryMax = o.retryMax
	retrying.RetryWaitMin = o.retryWaitMin
	retrying.RetryWaitMax = o.retryWaitMax
	retrying.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c.httpClient = &http.Client{
		Transport: &oauth2.Transport{
			Source: c.tokens,
			Base: otelhttp.NewTransport(&idempotentRetryTransport{
				retrying: &retryablehttp.RoundTripper{Client: retrying},
				plain:    baseTransport,
			}),
		},
		Timeout: cfg.Timeout,
	}

	c.logger.Info("initializing identity provider client",
		zap.String("iamurl", c.baseURL),
		zap.String("client_id", cfg.ClientID),
		zap.String("client_secret", cfg.MaskedSecret()),
	)

	if _, err := c.tokens.Token(); err != nil {
		return nil, fmt.Errorf("acquire access token from %s: %w", cfg.TokenURL(), err)
	}

	return c, nil
}

// ClientID is the OAuth client id the gateway authenticates as.
func (c *Client) ClientID() string {
	return c.clientID
}

// idempotentRetryTransport retries only the requests that can be repeated
// safely. A retried POST could create the same resources twice.
type idempotentRetryTransport struct {
	retrying http.RoundTripper
	plain    http.RoundTripper
}

func (t *idempotentRetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return t.retrying.RoundTrip(req)
	default:
		return t.plain.RoundTrip(req)
	}
}

// do sends one authenticated request and returns the response body of a 2xx answer.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "iam."+method)
	defer span.End()
	span.SetAttributes(attribute.String("scim.path", path))

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s payload: %w", method, path, err)
		}
		c.logger.Debug("sending payload", zap.String("method", method), zap.String("path", path), zap.ByteString("payload", b))
		body = bytes.NewReader(b)
	}

	target := c.baseURL + AdminPath + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Content-Type", scim.ContentType)
	req.Header.Set("Accept", scim.Accept)

	res, err := c.httpClient.Do(req)
	if err != nil {
		reqErr := &RequestError{Method: method, Path: path, Err: err}
		telemetry.TraceError(span, reqErr)
		c.logger.ErrorWithContext(ctx, "error making HTTP request", zap.Error(reqErr))
		return nil, reqErr
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		reqErr := &RequestError{Method: method, Path: path, StatusCode: res.StatusCode, Err: err}
		telemetry.TraceError(span, reqErr)
		return nil, reqErr
	}

	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
	c.logger.Debug("received response", zap.String("method", method), zap.String("path", path), zap.Int("status", res.StatusCode))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		reqErr := &RequestError{Method: method, Path: path, StatusCode: res.StatusCode, Body: respBody}
		telemetry.TraceError(span, reqErr)
		c.logger.ErrorWithContext(ctx, "error making HTTP request",
			zap.Error(reqErr),
			zap.ByteString("response", respBody),
		)
		return nil, reqErr
	}

	if len(respBody) > 0 {
		c.logger.Debug("response body", zap.ByteString("body", respBody))
	}
	return respBody, nil
}
