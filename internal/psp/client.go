package psp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hearthhq/hearth/pkg/types"
	"github.com/rs/zerolog/log"
)

// ErrorClass tells callers how to react to a gateway failure.
type ErrorClass int

const (
	// ErrTransient requests may be retried as-is.
	ErrTransient ErrorClass = iota
	// ErrPermanent requests will never succeed; do not retry.
	ErrPermanent
	// ErrAmbiguous requests may or may not have taken effect. Retry only
	// with the same idempotency key, never assume failure.
	ErrAmbiguous
)

// GatewayError wraps a failed gateway call with its retry classification.
type GatewayError struct {
	Class      ErrorClass
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("gateway error: status=%d %s", e.StatusCode, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Classify returns the error class of a gateway call error. Unknown errors
// are treated as transient.
func Classify(err error) ErrorClass {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Class
	}
	return ErrTransient
}

type GatewayClient struct {
	httpClient *http.Client
	secretKey  string
	baseURL    string
}

func NewGatewayClient(baseURL, secretKey string, timeout time.Duration) *GatewayClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GatewayClient{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   false,
			},
		},
		secretKey: secretKey,
		baseURL:   baseURL,
	}
}

func (c *GatewayClient) CreateCharge(ctx context.Context, req *types.CreateChargeRequest) (*types.ChargeResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/v1/charges", req, "")
	if err != nil {
		return nil, err
	}

	var resp types.ChargeResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !resp.Status {
		return nil, &GatewayError{Class: ErrPermanent, Message: resp.Message}
	}

	return &resp, nil
}

// CreateTransfer sends funds to a host account. idemKey makes retries of an
// ambiguous attempt safe; the gateway returns the original transfer instead
// of creating a second one.
func (c *GatewayClient) CreateTransfer(ctx context.Context, req *types.CreateTransferRequest, idemKey string) (*types.TransferResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/v1/transfers", req, idemKey)
	if err != nil {
		return nil, err
	}

	var resp types.TransferResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !resp.Status {
		return nil, &GatewayError{Class: ErrPermanent, Message: resp.Message}
	}

	return &resp, nil
}

func (c *GatewayClient) GetTransferStatus(ctx context.Context, transferID string) (*types.TransferStatusResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/v1/transfers/"+transferID, nil, "")
	if err != nil {
		return nil, err
	}

	var resp types.TransferStatusResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &resp, nil
}

func (c *GatewayClient) doRequest(ctx context.Context, method, path string, body any, idemKey string) ([]byte, error) {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal request body")
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.Error().Err(err).
			Str("method", method).
			Str("url", url).
			Int64("duration_ms", duration).
			Msg("HTTP request failed")
		// A timeout or cut connection after the request left may still have
		// reached the gateway.
		class := ErrTransient
		if ctx.Err() != nil || isTimeout(err) {
			class = ErrAmbiguous
		}
		return nil, &GatewayError{Class: class, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).
			Str("method", method).
			Str("url", url).
			Int64("duration_ms", duration).
			Msg("Failed to read response body")
		return nil, &GatewayError{Class: ErrAmbiguous, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode >= 400 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("method", method).
			Str("url", url).
			Int64("duration_ms", duration).
			Str("body", string(respBody)).
			Msg("Gateway API error response")
		return nil, &GatewayError{
			Class:      classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	log.Info().
		Int("status", resp.StatusCode).
		Str("method", method).
		Str("url", url).
		Int64("duration_ms", duration).
		Msg("Gateway API request successful")

	return respBody, nil
}

func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrTransient
	case status >= 500:
		return ErrTransient
	default:
		return ErrPermanent
	}
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
