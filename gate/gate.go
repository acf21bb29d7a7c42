// Package gate provides HTTP middleware that requires a settled x402
// payment before a protected resource is invoked.
//
// A Gate guards one route (one payment method). Unpaid requests receive a
// 402 challenge naming the method; requests carrying an X-PAYMENT header are
// decoded, checked against the method, locked against replay, settled
// through the validator pipeline, and only then passed to the resource
// handler. The resource's response is augmented with the settlement record.
//
// Adapters exist for net/http (Handler), gin (Gin) and echo (Echo); all
// three share the same payment path.
package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	x402 "github.com/paidroute/x402"
	"github.com/paidroute/x402/logger"
	"github.com/paidroute/x402/metrics"
	"github.com/paidroute/x402/replay"
	"github.com/paidroute/x402/validator"
)

// Gate enforces payment for one protected route.
type Gate struct {
	config   Config
	method   x402.PaymentMethod
	pipeline *validator.Pipeline
	replays  replay.Store
	log      logger.Logger
	rec      metrics.Recorder
	now      func() time.Time

	// construction-time option state
	httpClient  *http.Client
	chainReader validator.ChainReader
	backends    []validator.Backend
}

// New builds a gate from config. Backends are created from ValidatorOrder:
// entries whose configuration is missing are skipped, and at least one
// backend must remain.
func New(config Config, opts ...Option) (*Gate, error) {
	g := &Gate{
		config: config.withDefaults(),
		log:    logger.NoopLogger{},
		rec:    metrics.NoopRecorder{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	if err := g.config.Validate(); err != nil {
		return nil, err
	}
	g.method = g.config.Method()

	if g.replays == nil {
		g.replays = replay.NewMemoryStore(time.Duration(g.config.ReplayRetentionSeconds) * time.Second)
	}

	injected := g.backends != nil
	if !injected {
		backends, err := g.buildBackends()
		if err != nil {
			return nil, err
		}
		g.backends = backends

		if g.config.Mode == x402.ModeTransactionHash && !g.hasHashBackend() {
			return nil, errors.New("x402: transaction-hash mode requires the chain or format backend")
		}
	}
	if len(g.backends) == 0 {
		return nil, ErrNoBackends
	}

	g.pipeline = validator.NewPipeline(g.backends,
		validator.WithLogger(g.log),
		validator.WithMetrics(g.rec),
	)
	return g, nil
}

// Method returns the payment method this gate offers in challenges.
func (g *Gate) Method() x402.PaymentMethod {
	return g.method
}

func (g *Gate) buildBackends() ([]validator.Backend, error) {
	var backends []validator.Backend
	for _, name := range g.config.ValidatorOrder {
		switch name {
		case validator.NameFacilitator:
			if g.config.FacilitatorURL == "" {
				continue
			}
			var opts []validator.FacilitatorOption
			if g.httpClient != nil {
				opts = append(opts, validator.WithHTTPClient(g.httpClient))
			}
			if g.config.FacilitatorVerifySettle {
				opts = append(opts, validator.WithVerifySettle())
			}
			backends = append(backends, validator.NewFacilitator(g.config.FacilitatorURL, opts...))

		case validator.NameChain:
			if g.chainReader != nil {
				backends = append(backends, validator.NewChain(g.chainReader,
					validator.WithConfirmations(g.config.Confirmations)))
				continue
			}
			if g.config.RPCURL == "" {
				continue
			}
			chain, err := validator.DialChain(g.config.RPCURL,
				validator.WithConfirmations(g.config.Confirmations))
			if err != nil {
				return nil, err
			}
			backends = append(backends, chain)

		case validator.NameFormat:
			backends = append(backends, validator.NewFormat(g.log))
		}
	}
	return backends, nil
}

func (g *Gate) hasHashBackend() bool {
	for _, b := range g.backends {
		if b.Name() == validator.NameChain || b.Name() == validator.NameFormat {
			return true
		}
	}
	return false
}

// Handler wraps next so every request must carry a settled payment.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(x402.PaymentHeader)
		if header == "" {
			g.challenge(w)
			return
		}

		receipt, err := g.handlePayment(r.Context(), header)
		if err != nil {
			status, body := g.failureResponse(err)
			writeJSON(w, status, body)
			return
		}

		captured := newBufferingWriter(w)
		next.ServeHTTP(captured, r)
		g.flush(w, captured.statusCode, captured.body.Bytes(), receipt)
	})
}

// handlePayment runs the payment path with logging and metrics around it.
func (g *Gate) handlePayment(ctx context.Context, header string) (*x402.PaymentReceipt, error) {
	id := paymentID()
	start := time.Now()

	receipt, err := g.process(ctx, header)
	g.rec.ObserveLatency("gate", time.Since(start), map[string]string{"network": g.method.Network})

	if err != nil {
		class := x402.ClassOf(err)
		g.rec.IncCounter(string(class), map[string]string{"network": g.method.Network})
		g.log.Warn("payment not accepted", map[string]any{
			"payment_id": id,
			"class":      string(class),
			"error":      err.Error(),
		})
		return nil, err
	}

	g.rec.IncCounter("settled", map[string]string{"network": g.method.Network})
	g.log.Info("payment settled", map[string]any{
		"payment_id": id,
		"network":    receipt.Network,
		"tx":         receipt.TransactionHash,
		"payer":      receipt.Payer,
	})
	return receipt, nil
}

// process validates one payment header end to end: decode, method checks,
// replay lock, validator pipeline. The replay lock is rolled back on any
// failure after it is taken, including panics and cancellations, so a
// transient outage does not burn the nonce.
func (g *Gate) process(ctx context.Context, header string) (receipt *x402.PaymentReceipt, err error) {
	payment, err := x402.DecodePayment(header, g.config.Mode)
	if err != nil {
		return nil, err
	}

	if payment.Signed != nil {
		if err := g.checkAuthorization(payment.Signed); err != nil {
			return nil, err
		}
	}

	key := g.replayKey(payment)
	if !g.replays.TryInsert(key) {
		return nil, x402.NewError(x402.ClassReplay, "payment has already been used")
	}
	settled := false
	defer func() {
		if !settled {
			g.replays.Remove(key)
		}
	}()

	receipt, err = g.pipeline.Validate(ctx, payment, g.method)
	if err != nil {
		return nil, err
	}
	settled = true
	return receipt, nil
}

// checkAuthorization applies the method's semantic rules to a decoded
// authorization before anything external is called.
func (g *Gate) checkAuthorization(signed *x402.SignedAuthorization) error {
	if signed.Network != g.method.Network {
		return x402.Errorf(x402.ClassInvalidAuthorization, "payment network %q does not match %q", signed.Network, g.method.Network)
	}
	if !acceptedScheme(signed.Scheme) {
		return x402.Errorf(x402.ClassInvalidAuthorization, "unsupported scheme %q", signed.Scheme)
	}

	auth := signed.Payload.Authorization
	if !x402.EqualAddress(auth.To, g.method.Recipient) {
		return x402.NewError(x402.ClassInvalidAuthorization, "authorization does not pay this resource's recipient")
	}

	value, err := x402.ParseAmount(auth.Value)
	if err != nil {
		return x402.WrapError(x402.ClassInvalidAuthorization, "invalid authorization value", err)
	}
	minimum, err := x402.ParseAmount(g.method.MinimumAmount)
	if err != nil {
		return x402.WrapError(x402.ClassInternal, "invalid configured minimum", err)
	}
	maximum, err := x402.ParseAmount(g.method.MaximumAmount)
	if err != nil {
		return x402.WrapError(x402.ClassInternal, "invalid configured maximum", err)
	}
	if value.Cmp(minimum) < 0 || value.Cmp(maximum) > 0 {
		return x402.Errorf(x402.ClassInvalidAuthorization, "authorization value %s is outside [%s, %s]",
			auth.Value, g.method.MinimumAmount, g.method.MaximumAmount)
	}

	validAfter, err := strconv.ParseInt(auth.ValidAfter, 10, 64)
	if err != nil {
		return x402.WrapError(x402.ClassInvalidAuthorization, "invalid validAfter", err)
	}
	validBefore, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if err != nil {
		return x402.WrapError(x402.ClassInvalidAuthorization, "invalid validBefore", err)
	}
	now := g.now().Unix()
	if validAfter > now {
		return x402.NewError(x402.ClassInvalidAuthorization, "authorization is not valid yet")
	}
	if now >= validBefore {
		return x402.NewError(x402.ClassExpired, "authorization has expired")
	}
	return nil
}

func acceptedScheme(scheme string) bool {
	return scheme == x402.SchemeExact || scheme == x402.SchemeEIP3009
}

// replayKey scopes single-use tracking to (network, asset, evidence): the
// authorization nonce, or the transaction hash on bare-hash routes.
func (g *Gate) replayKey(payment *x402.Payment) string {
	evidence := payment.TransactionHash
	if payment.Signed != nil {
		evidence = payment.Signed.Payload.Authorization.Nonce
	}
	return g.method.Network + ":" + strings.ToLower(g.method.Asset) + ":" + strings.ToLower(evidence)
}

// challenge emits the 402 body for a request with no payment attached.
func (g *Gate) challenge(w http.ResponseWriter) {
	g.rec.IncCounter("challenge", map[string]string{"network": g.method.Network})
	writeJSON(w, http.StatusPaymentRequired, g.challengeBody())
}

// challengeBody is the unpaid-request body: protocol version plus the
// methods the route accepts.
func (g *Gate) challengeBody() map[string]any {
	return map[string]any{
		"x402Version": x402.Version,
		"methods":     []x402.PaymentMethod{g.method},
	}
}

// failureResponse maps a classed error to its HTTP status and wire body.
// 402 bodies carry the methods again so the client can pay and retry.
func (g *Gate) failureResponse(err error) (int, map[string]any) {
	class := x402.ClassOf(err)
	status := class.HTTPStatus()
	body := map[string]any{
		"error":   string(class),
		"message": x402.PublicMessage(err),
	}
	if status == http.StatusPaymentRequired {
		body["x402Version"] = x402.Version
		body["methods"] = []x402.PaymentMethod{g.method}
	}
	return status, body
}

// flush writes a captured resource response to the wire with the
// settlement attached: the X-PAYMENT-RESPONSE header always, and the
// payment summary merged into JSON-object bodies.
func (g *Gate) flush(w http.ResponseWriter, statusCode int, body []byte, receipt *x402.PaymentReceipt) {
	if encoded, err := x402.EncodeSettlementHeader(receipt); err == nil {
		w.Header().Set(x402.PaymentResponseHeader, encoded)
	}

	info := x402.PaymentInfo{
		TransactionHash: receipt.TransactionHash,
		Network:         receipt.Network,
		Status:          x402.StatusConfirmed,
	}
	if merged, ok := mergeReceipt(body, info); ok {
		body = merged
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
	}

	// The body may have grown; never trust a precomputed length.
	w.Header().Del("Content-Length")
	w.WriteHeader(statusCode)
	w.Write(body)
}

// mergeReceipt injects the settlement summary into a JSON-object body
// under the payment key, plus a top-level transactionHash when the
// resource did not claim that key itself. Non-object bodies are left
// untouched.
func mergeReceipt(body []byte, info x402.PaymentInfo) ([]byte, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(trimmed, &m); err != nil || m == nil {
		return nil, false
	}

	m["payment"] = info
	if _, exists := m["transactionHash"]; !exists && info.TransactionHash != "" {
		m["transactionHash"] = info.TransactionHash
	}

	merged, err := json.Marshal(m)
	if err != nil {
		return nil, false
	}
	return merged, true
}

// bufferingWriter captures a handler's response so the settlement record
// can be merged in before anything reaches the wire.
type bufferingWriter struct {
	http.ResponseWriter
	body       bytes.Buffer
	statusCode int
	wrote      bool
}

func newBufferingWriter(w http.ResponseWriter) *bufferingWriter {
	return &bufferingWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (w *bufferingWriter) WriteHeader(code int) {
	if !w.wrote {
		w.statusCode = code
		w.wrote = true
	}
}

func (w *bufferingWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// paymentID labels one payment attempt across log lines.
func paymentID() string {
	return "pay_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}
