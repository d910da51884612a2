// Package rest is the JSON over HTTP client shared by the vendor gateways.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var ErrStatus = errors.New("rest: unexpected status")

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL    string
	http       *http.Client
	header     http.Header
	retries    uint64
	initial    time.Duration
	maxBackoff time.Duration
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

// WithRetries bounds the number of retries of a single request and the
// first wait between them. Waits grow exponentially.
func WithRetries(retries uint64, initial time.Duration) Option {
	return func(c *Client) {
		c.retries = retries
		c.initial = initial
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		http:       &http.Client{Timeout: defaultTimeout},
		header:     http.Header{},
		retries:    2,
		initial:    time.Second,
		maxBackoff: 10 * time.Second,
		logger:     zap.L().Named("rest"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Get(ctx context.Context, path string, header http.Header, out any) error {
	return c.Do(ctx, http.MethodGet, path, header, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, header http.Header, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, header, body, out)
}

func (c *Client) Put(ctx context.Context, path string, header http.Header, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, header, body, out)
}

// Do sends one request, retrying transport errors and 5xx/429 responses.
// body is sent as JSON when not nil; out is decoded from the response when
// not nil.
func (c *Client) Do(ctx context.Context, method, path string, header http.Header, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initial
	policy.MaxInterval = c.maxBackoff
	policy.MaxElapsedTime = 0

	op := func() error {
		return c.do(ctx, method, path, header, payload, out)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("request failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	return backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, c.retries), ctx), notify)
}

func (c *Client) do(ctx context.Context, method, path string, header http.Header, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return backoff.Permanent(err)
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%w: %s %s: %d %s", ErrStatus, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return err
		}
		return backoff.Permanent(err)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
