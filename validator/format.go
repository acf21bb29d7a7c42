package validator

import (
	"context"
	"regexp"
	"time"

	x402 "github.com/paidroute/x402"
	"github.com/paidroute/x402/logger"
)

// formatPattern is the shape check applied by the format backend. Ten
// characters covers "0x" plus at least four bytes of hex.
var formatPattern = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)

const formatMinLength = 10

// Format accepts any payment whose evidence merely looks like hex. It never
// touches a facilitator or a chain, so it proves nothing about settlement.
// Development and tests only.
type Format struct {
	log logger.Logger
	now func() time.Time
}

// NewFormat creates a format backend. Every accepted payment is logged at
// warning level as a reminder that nothing was settled.
func NewFormat(log logger.Logger) *Format {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Format{log: log, now: time.Now}
}

// Name implements Backend.
func (f *Format) Name() string {
	return NameFormat
}

// Validate checks the shape of the transaction hash or signature and
// synthesizes a receipt.
func (f *Format) Validate(ctx context.Context, payment *x402.Payment, method x402.PaymentMethod) (*x402.PaymentReceipt, error) {
	evidence := payment.TransactionHash
	if evidence == "" && payment.Signed != nil {
		evidence = payment.Signed.Payload.Signature
	}
	if len(evidence) < formatMinLength || !formatPattern.MatchString(evidence) {
		return nil, x402.NewError(x402.ClassInvalidFormat, "payment evidence is not well-formed hex")
	}

	f.log.Warn("format backend accepted a payment without settlement; do not use in production", map[string]any{
		"network": method.Network,
	})

	// The synthesized receipt names the evidence itself; there is no real
	// transaction behind it.
	receipt := &x402.PaymentReceipt{
		TransactionHash: evidence,
		Network:         method.Network,
		Timestamp:       f.now().Unix(),
	}
	if payment.Signed != nil {
		receipt.Payer = payment.Signed.Payload.Authorization.From
	}
	return receipt, nil
}
