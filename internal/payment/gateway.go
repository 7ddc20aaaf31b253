// Package payment verifies payment references against the external gateway
// before a booking is confirmed.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

type Result string

const (
	Verified Result = "verified"
	Declined Result = "declined"
)

// ErrUnavailable means the gateway could not give an answer. Bookings then
// continue with payment pending.
var ErrUnavailable = errors.New("payment gateway unavailable")

type Verifier interface {
	Verify(ctx context.Context, reference string, amount float64) (Result, error)
}

type gatewayPayment struct {
	Reference string  `json:"reference"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
}

type HTTPGateway struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

func NewHTTPGateway(baseURL string, timeout time.Duration, log zerolog.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "payment").Logger(),
	}
}

// Verify looks up GET {base}/payments/{reference}. A succeeded payment that
// covers the amount is verified; failed, unknown or short payments are
// declined; anything else is ErrUnavailable.
func (g *HTTPGateway) Verify(ctx context.Context, reference string, amount float64) (Result, error) {
	endpoint := g.baseURL + "/payments/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warn().Err(err).Str("reference", reference).Msg("payment gateway request failed")
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Declined, nil
	case resp.StatusCode != http.StatusOK:
		// Includes 4xx: a refused request is not a verdict on the payment.
		g.log.Warn().Str("reference", reference).Int("status", resp.StatusCode).Msg("payment gateway did not answer")
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var p gatewayPayment
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	switch p.Status {
	case "succeeded":
		if p.Amount+0.005 < amount {
			g.log.Info().Str("reference", reference).Float64("paid", p.Amount).Float64("due", amount).Msg("payment does not cover amount")
			return Declined, nil
		}
		return Verified, nil
	case "failed", "canceled", "refunded":
		return Declined, nil
	default:
		return "", fmt.Errorf("%w: payment %s is %s", ErrUnavailable, reference, p.Status)
	}
}

// Disabled is used when no gateway is configured. Every reference stays
// pending.
type Disabled struct{}

func (Disabled) Verify(context.Context, string, float64) (Result, error) {
	return "", ErrUnavailable
}
