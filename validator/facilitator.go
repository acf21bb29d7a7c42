package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	x402 "github.com/paidroute/x402"
)

// Facilitator request timeouts. The total budget covers the whole exchange,
// the connect budget bounds dialing and the TLS handshake.
const (
	DefaultFacilitatorTimeout        = 10 * time.Second
	DefaultFacilitatorConnectTimeout = 3 * time.Second
)

// Facilitator settles signed authorizations through a remote facilitator
// service and is the production path for authorization-mode payments.
type Facilitator struct {
	url          string
	httpClient   *http.Client
	verifySettle bool
	now          func() time.Time
}

// FacilitatorOption configures a Facilitator.
type FacilitatorOption func(*Facilitator)

// WithHTTPClient overrides the default HTTP client and its timeouts.
func WithHTTPClient(client *http.Client) FacilitatorOption {
	return func(f *Facilitator) {
		f.httpClient = client
	}
}

// WithVerifySettle switches to the two-step flow: POST {url}/verify first,
// then POST {url}/settle. The default is a single POST to the base URL.
func WithVerifySettle() FacilitatorOption {
	return func(f *Facilitator) {
		f.verifySettle = true
	}
}

// NewFacilitator creates a facilitator backend for the service at url.
func NewFacilitator(url string, opts ...FacilitatorOption) *Facilitator {
	f := &Facilitator{
		url:        strings.TrimRight(url, "/"),
		httpClient: newFacilitatorHTTPClient(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func newFacilitatorHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: DefaultFacilitatorConnectTimeout}
	return &http.Client{
		Timeout: DefaultFacilitatorTimeout,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: DefaultFacilitatorConnectTimeout,
		},
	}
}

// Name implements Backend.
func (f *Facilitator) Name() string {
	return NameFacilitator
}

// Validate submits the signed authorization for settlement and returns the
// settlement receipt.
func (f *Facilitator) Validate(ctx context.Context, payment *x402.Payment, method x402.PaymentMethod) (*x402.PaymentReceipt, error) {
	if payment.Signed == nil {
		// A bare transaction hash carries nothing a facilitator can settle.
		return nil, ErrNotApplicable
	}

	if f.verifySettle {
		if err := f.verify(ctx, payment.Signed); err != nil {
			return nil, err
		}
		return f.settle(ctx, payment.Signed, method, f.url+"/settle")
	}
	return f.settle(ctx, payment.Signed, method, f.url)
}

// verify runs the verification leg: POST {url}/verify, expecting a body
// with a boolean "valid" and an optional "reason".
func (f *Facilitator) verify(ctx context.Context, signed *x402.SignedAuthorization) error {
	body, err := f.post(ctx, f.url+"/verify", signed)
	if err != nil {
		return err
	}

	if valid, ok := body["valid"].(bool); ok && valid {
		return nil
	}
	reason, _ := body["reason"].(string)
	if reason == "" {
		reason = "authorization failed verification"
	}
	return x402.NewError(x402.ClassRejected, reason)
}

func (f *Facilitator) settle(ctx context.Context, signed *x402.SignedAuthorization, method x402.PaymentMethod, url string) (*x402.PaymentReceipt, error) {
	body, err := f.post(ctx, url, signed)
	if err != nil {
		return nil, err
	}

	hash := x402.ExtractTransactionHash(body)
	if hash == "" {
		return nil, x402.NewError(x402.ClassFacilitatorMalformed, "facilitator settlement response carried no transaction hash")
	}

	return &x402.PaymentReceipt{
		TransactionHash: hash,
		Network:         method.Network,
		Payer:           signed.Payload.Authorization.From,
		Timestamp:       f.now().Unix(),
	}, nil
}

// post sends payload as JSON and classifies the outcome: transport failures,
// 5xx responses and non-JSON bodies are facilitator-unavailable, 4xx
// responses are terminal rejections carrying the facilitator's reason.
func (f *Facilitator) post(ctx context.Context, url string, payload any) (map[string]any, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, x402.WrapError(x402.ClassInternal, "failed to encode facilitator request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, x402.WrapError(x402.ClassInternal, "failed to create facilitator request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, x402.WrapError(x402.ClassFacilitatorUnavailable, "facilitator request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, x402.WrapError(x402.ClassFacilitatorUnavailable, "failed to read facilitator response", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, x402.Errorf(x402.ClassFacilitatorUnavailable, "facilitator returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, x402.NewError(x402.ClassRejected, rejectionReason(respBody))
	}

	var body map[string]any
	if err := json.Unmarshal(respBody, &body); err != nil {
		return nil, x402.WrapError(x402.ClassFacilitatorUnavailable, "facilitator returned a non-JSON response", err)
	}
	return body, nil
}

// rejectionReason pulls a human-readable reason out of a 4xx body.
func rejectionReason(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err == nil {
		for _, key := range []string{"error", "message", "reason"} {
			if s, ok := m[key].(string); ok && s != "" {
				return s
			}
		}
	}
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "payment rejected by facilitator"
	}
	const maxReason = 200
	if len(s) > maxReason {
		s = s[:maxReason]
	}
	return fmt.Sprintf("facilitator rejected payment: %s", s)
}
