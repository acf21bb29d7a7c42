// Package client pays x402 challenges transparently. Transport wraps an
// http.RoundTripper so that a 402 response is answered with a signed
// transfer authorization and the request retried, at most once; callers
// see only the final response.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	x402 "github.com/paidroute/x402"
	"github.com/paidroute/x402/logger"
	"github.com/paidroute/x402/signer"
)

var (
	// ErrBadChallenge marks a 402 response whose body is not a usable
	// payment challenge.
	ErrBadChallenge = errors.New("x402: unusable payment challenge")

	// ErrNoAcceptableMethod marks a challenge offering only methods the
	// wallet cannot or will not pay.
	ErrNoAcceptableMethod = errors.New("x402: no acceptable payment method")

	// ErrPaymentNotAccepted marks a 402 on the paid retry; the server
	// rejected the authorization and the client does not try again.
	ErrPaymentNotAccepted = errors.New("x402: payment not accepted")
)

// Transport is an http.RoundTripper that satisfies 402 challenges with
// payments signed by a wallet. It is safe for concurrent use; each call
// signs its own nonce.
type Transport struct {
	signer    *signer.Signer
	base      http.RoundTripper
	assets    map[string]bool
	acceptAny bool
	log       logger.Logger

	mu   sync.Mutex
	last *x402.PaymentInfo
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithBase sets the underlying round tripper. The default is
// http.DefaultTransport.
func WithBase(rt http.RoundTripper) TransportOption {
	return func(t *Transport) {
		t.base = rt
	}
}

// WithAssets restricts payment to the given token contracts. Without this
// option only each network's known stablecoin is paid.
func WithAssets(addresses ...string) TransportOption {
	return func(t *Transport) {
		if t.assets == nil {
			t.assets = make(map[string]bool, len(addresses))
		}
		for _, addr := range addresses {
			t.assets[strings.ToLower(addr)] = true
		}
	}
}

// WithAcceptAnyAsset pays whatever token a challenge asks for. Use only
// against trusted servers: the wallet will sign for arbitrary contracts.
func WithAcceptAnyAsset() TransportOption {
	return func(t *Transport) {
		t.acceptAny = true
	}
}

// WithLogger sets the transport logger. The default discards everything.
func WithLogger(log logger.Logger) TransportOption {
	return func(t *Transport) {
		t.log = log
	}
}

// NewTransport builds a paying round tripper around the wallet.
func NewTransport(s *signer.Signer, opts ...TransportOption) *Transport {
	t := &Transport{
		signer: s,
		base:   http.DefaultTransport,
		log:    logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LastSettlement returns the most recent settlement observed on any
// request through this transport. It is advisory on shared transports;
// concurrent calls clobber it, so read the response itself when the
// receipt matters.
func (t *Transport) LastSettlement() *x402.PaymentInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return nil
	}
	info := *t.last
	return &info
}

// RoundTrip issues req, pays a 402 challenge if one comes back, and
// retries exactly once. A second 402 is terminal.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusPaymentRequired {
		return resp, err
	}

	challenge, err := readChallenge(resp)
	if err != nil {
		return nil, err
	}

	method, ok := t.selectMethod(challenge.Methods)
	if !ok {
		return nil, fmt.Errorf("%w: %d methods offered", ErrNoAcceptableMethod, len(challenge.Methods))
	}

	signed, err := t.signer.Sign(method)
	if err != nil {
		return nil, fmt.Errorf("sign payment: %w", err)
	}
	header, err := x402.EncodePayment(signed)
	if err != nil {
		return nil, err
	}

	t.log.Debug("paying challenge", map[string]any{
		"network": method.Network,
		"asset":   method.Asset,
		"value":   method.MaximumAmount,
	})

	paid, err := replayableClone(req)
	if err != nil {
		return nil, err
	}
	paid.Header.Set(x402.PaymentHeader, header)

	resp, err = t.base.RoundTrip(paid)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusPaymentRequired {
		reason := rejectionMessage(resp)
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotAccepted, reason)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if info := t.settlementOf(resp, method); info != nil {
			t.mu.Lock()
			t.last = info
			t.mu.Unlock()
			t.log.Info("payment settled", map[string]any{
				"network": info.Network,
				"tx":      info.TransactionHash,
			})
		}
	}
	return resp, nil
}

// selectMethod picks the first method the wallet can pay: a network in
// the chain table carrying an accepted asset.
func (t *Transport) selectMethod(methods []x402.PaymentMethod) (x402.PaymentMethod, bool) {
	for _, m := range methods {
		if _, ok := x402.ChainID(m.Network); !ok {
			continue
		}
		if t.acceptsAsset(m) {
			return m, true
		}
	}
	return x402.PaymentMethod{}, false
}

func (t *Transport) acceptsAsset(m x402.PaymentMethod) bool {
	if t.acceptAny {
		return true
	}
	if len(t.assets) > 0 {
		return t.assets[strings.ToLower(m.Asset)]
	}
	tok, ok := x402.KnownTokenFor(m.Network)
	return ok && x402.EqualAddress(tok.Address, m.Asset)
}

// settlementOf extracts the settlement record from a paid 2xx response,
// preferring the body's payment/_transaction keys and falling back to the
// X-PAYMENT-RESPONSE header. The response body is restored for the caller.
func (t *Transport) settlementOf(resp *http.Response, method x402.PaymentMethod) *x402.PaymentInfo {
	if resp.Body != nil {
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			resp.Body = io.NopCloser(bytes.NewReader(nil))
			return nil
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))

		if info := settlementFromBody(body, method.Network); info != nil {
			return info
		}
	}

	settlement, err := x402.DecodeSettlementHeader(resp.Header.Get(x402.PaymentResponseHeader))
	if err != nil {
		return nil
	}
	return &x402.PaymentInfo{
		TransactionHash: settlement.TransactionHash,
		Network:         settlement.Network,
		Status:          x402.StatusConfirmed,
	}
}

func settlementFromBody(body []byte, network string) *x402.PaymentInfo {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil
	}

	for _, key := range []string{"payment", "_transaction"} {
		nested, ok := m[key].(map[string]any)
		if !ok {
			continue
		}
		hash := x402.ExtractTransactionHash(nested)
		if hash == "" {
			continue
		}
		info := &x402.PaymentInfo{TransactionHash: hash, Network: network, Status: x402.StatusConfirmed}
		if n, ok := nested["network"].(string); ok && n != "" {
			info.Network = n
		}
		if s, ok := nested["status"].(string); ok && s != "" {
			info.Status = s
		}
		return info
	}

	if hash := x402.ExtractTransactionHash(m); hash != "" {
		return &x402.PaymentInfo{TransactionHash: hash, Network: network, Status: x402.StatusConfirmed}
	}
	return nil
}

// readChallenge parses and validates a 402 body, consuming it.
func readChallenge(resp *http.Response) (*x402.Challenge, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadChallenge, err)
	}

	var challenge x402.Challenge
	if err := json.Unmarshal(body, &challenge); err != nil {
		return nil, fmt.Errorf("%w: body is not JSON", ErrBadChallenge)
	}
	if challenge.X402Version != x402.Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadChallenge, challenge.X402Version)
	}
	if len(challenge.Methods) == 0 {
		return nil, fmt.Errorf("%w: no payment methods offered", ErrBadChallenge)
	}
	return &challenge, nil
}

// replayableClone clones req with a fresh body so it can be sent again.
func replayableClone(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("x402: cannot retry a request whose body has no GetBody")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("x402: replay request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

// rejectionMessage summarizes a terminal 402, consuming its body.
func rejectionMessage(resp *http.Response) string {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "payment rejected"
	}

	var failure struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &failure); err == nil && failure.Message != "" {
		if failure.Error != "" {
			return failure.Error + ": " + failure.Message
		}
		return failure.Message
	}
	return "payment rejected"
}
