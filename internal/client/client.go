// Package client calls a remote ipnis daemon over its signed RPC endpoint.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"ipnis/internal/signing"
	"ipnis/pkg/tensor"
	"ipnis/pkg/types"
)

const defaultTimeout = 5 * time.Minute

// StatusError is a non-2xx reply from the daemon.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string { return fmt.Sprintf("ipnis: %d: %s", e.Code, e.Message) }

// StatusCode returns the HTTP status of the reply.
func (e *StatusError) StatusCode() int { return e.Code }

// IsTooBusy reports whether the daemon rejected the request for load.
func IsTooBusy(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

// Client signs requests with its signer and checks the daemon's
// countersignature on every reply.
type Client struct {
	http   *resty.Client
	signer signing.Signer
	server string
}

// Option configures a Client.
type Option func(*Client)

// WithServerAccount addresses requests to one daemon account and rejects
// replies countersigned by any other.
func WithServerAccount(account string) Option { return func(c *Client) { c.server = account } }

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.http.SetTimeout(d) } }

// WithRetries retries requests the daemon rejected as too busy.
func WithRetries(n int) Option {
	return func(c *Client) {
		c.http.SetRetryCount(n).
			SetRetryWaitTime(200 * time.Millisecond).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err == nil && r.StatusCode() == http.StatusTooManyRequests
			})
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		base := c.http.BaseURL
		c.http = resty.NewWithClient(hc).SetBaseURL(base).SetTimeout(defaultTimeout)
	}
}

// New returns a client for the daemon at baseURL.
func New(baseURL string, signer signing.Signer, opts ...Option) *Client {
	c := &Client{
		http:   resty.New().SetBaseURL(baseURL).SetTimeout(defaultTimeout),
		signer: signer,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// LoadModel asks the daemon to compile p and describe its inputs and outputs.
func (c *Client) LoadModel(ctx context.Context, p types.Path) (types.Model, error) {
	resp, err := c.do(ctx, types.Request{LoadModel: &types.LoadModelRequest{Path: p}})
	if err != nil {
		return types.Model{}, err
	}
	if resp.LoadModel == nil {
		return types.Model{}, errors.New("ipnis: reply is not a load_model response")
	}
	return resp.LoadModel.Model, nil
}

// Call runs model on inputs remotely.
func (c *Client) Call(ctx context.Context, model types.Model, inputs []tensor.Tensor) ([]tensor.Tensor, error) {
	resp, err := c.do(ctx, types.Request{Call: &types.CallRequest{Model: model, Inputs: inputs}})
	if err != nil {
		return nil, err
	}
	if resp.Call == nil {
		return nil, errors.New("ipnis: reply is not a call response")
	}
	return resp.Call.Outputs, nil
}

// Status fetches the daemon's status report. It is not signed.
func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var out types.StatusResponse
	var apiErr types.ErrorResponse
	r, err := c.http.R().SetContext(ctx).SetResult(&out).SetError(&apiErr).Get("/status")
	if err != nil {
		return out, err
	}
	if r.IsError() {
		return out, statusError(r, apiErr)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, req types.Request) (types.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return types.Response{}, err
	}
	env, err := c.signer.SignOwned(c.server, payload)
	if err != nil {
		return types.Response{}, err
	}

	var out signing.Envelope
	var apiErr types.ErrorResponse
	r, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(env).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/rpc")
	if err != nil {
		return types.Response{}, err
	}
	if r.IsError() {
		return types.Response{}, statusError(r, apiErr)
	}
	if err := c.signer.VerifyResponse(env, out); err != nil {
		return types.Response{}, err
	}
	var resp types.Response
	if err := json.Unmarshal(out.Payload, &resp); err != nil {
		return types.Response{}, fmt.Errorf("ipnis: decode reply: %w", err)
	}
	return resp, nil
}

func statusError(r *resty.Response, apiErr types.ErrorResponse) error {
	msg := apiErr.Error
	if msg == "" {
		msg = r.Status()
	}
	return &StatusError{Code: r.StatusCode(), Message: msg}
}
