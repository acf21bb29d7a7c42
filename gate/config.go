package gate

import (
	"errors"
	"fmt"

	x402 "github.com/paidroute/x402"
	"github.com/paidroute/x402/validator"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultNetwork                = "base-sepolia"
	DefaultTimeoutMS              = 300_000
	DefaultReplayRetentionSeconds = 86_400
)

// Bounds on the authorization validity window a method may advertise:
// one second to one hour.
const (
	MinTimeoutMS = 1_000
	MaxTimeoutMS = 3_600_000
)

// Configuration errors.
var (
	ErrNoRecipient    = errors.New("x402: recipient address is required")
	ErrNoAsset        = errors.New("x402: asset contract address is required")
	ErrNoAmount       = errors.New("x402: payment amount is required")
	ErrNoBackends     = errors.New("x402: no validation backend is configured")
	ErrShortRetention = errors.New("x402: replay retention must cover the authorization timeout")
)

// Config describes one protected route: what the payment method offered in
// challenges looks like, and how presented payments are validated.
type Config struct {
	// FacilitatorURL enables the facilitator backend.
	FacilitatorURL string

	// RPCURL enables the chain backend.
	RPCURL string

	// Network names the chain the payment settles on. Default base-sepolia.
	Network string

	// Asset is the token contract. Defaults to the network's known USDC
	// deployment when one exists.
	Asset string

	// Recipient receives the payment. Required.
	Recipient string

	// PaymentAmount is the price in smallest token units. Required.
	PaymentAmount string

	// MinimumAmount optionally accepts underpayment down to this bound.
	// Defaults to PaymentAmount.
	MinimumAmount string

	// TimeoutMS bounds the authorization validity window in milliseconds,
	// between MinTimeoutMS and MaxTimeoutMS. Default 300000 (five minutes).
	TimeoutMS int64

	// Description is surfaced to clients inside the challenge.
	Description string

	// Extra carries EIP-712 domain hints for non-USDC assets.
	Extra *x402.MethodExtra

	// Mode selects signed authorizations (default) or bare transaction
	// hashes for the route.
	Mode x402.Mode

	// ValidatorOrder lists backend names to try in order. Default
	// ["facilitator", "chain"]. "format" is development only.
	ValidatorOrder []string

	// ReplayRetentionSeconds bounds how long consumed nonces are remembered.
	// Default 86400. Must cover the authorization timeout.
	ReplayRetentionSeconds int64

	// Confirmations is the chain backend's required depth. Default 1.
	Confirmations uint64

	// FacilitatorVerifySettle switches the facilitator backend to the
	// two-step /verify + /settle flow.
	FacilitatorVerifySettle bool
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.Network == "" {
		c.Network = DefaultNetwork
	}
	if c.Asset == "" {
		if tok, ok := x402.KnownTokenFor(c.Network); ok {
			c.Asset = tok.Address
		}
	}
	if c.MinimumAmount == "" {
		c.MinimumAmount = c.PaymentAmount
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = DefaultTimeoutMS
	}
	if c.Mode == "" {
		c.Mode = x402.ModeAuthorization
	}
	if len(c.ValidatorOrder) == 0 {
		c.ValidatorOrder = []string{validator.NameFacilitator, validator.NameChain}
	}
	if c.ReplayRetentionSeconds == 0 {
		c.ReplayRetentionSeconds = DefaultReplayRetentionSeconds
	}
	if c.Confirmations == 0 {
		c.Confirmations = validator.DefaultConfirmations
	}
	return c
}

// Validate checks a defaulted config. Backend availability is checked by
// gate.New, which also knows about injected backends.
func (c Config) Validate() error {
	if _, ok := x402.ChainID(c.Network); !ok {
		return fmt.Errorf("x402: unknown network %q", c.Network)
	}
	if c.Recipient == "" {
		return ErrNoRecipient
	}
	if !x402.ValidAddress(c.Recipient) {
		return fmt.Errorf("x402: recipient %q is not a valid address", c.Recipient)
	}
	if c.Asset == "" {
		return ErrNoAsset
	}
	if !x402.ValidAddress(c.Asset) {
		return fmt.Errorf("x402: asset %q is not a valid address", c.Asset)
	}
	if c.PaymentAmount == "" {
		return ErrNoAmount
	}
	maximum, err := x402.ParseAmount(c.PaymentAmount)
	if err != nil {
		return fmt.Errorf("x402: invalid payment amount: %w", err)
	}
	minimum, err := x402.ParseAmount(c.MinimumAmount)
	if err != nil {
		return fmt.Errorf("x402: invalid minimum amount: %w", err)
	}
	if minimum.Sign() <= 0 || minimum.Cmp(maximum) > 0 {
		return fmt.Errorf("x402: amounts must satisfy 0 < minimum <= maximum")
	}
	if c.TimeoutMS < MinTimeoutMS || c.TimeoutMS > MaxTimeoutMS {
		return fmt.Errorf("x402: timeout %dms must be between %dms and %dms", c.TimeoutMS, MinTimeoutMS, MaxTimeoutMS)
	}

	switch c.Mode {
	case x402.ModeAuthorization, x402.ModeTransactionHash:
	default:
		return fmt.Errorf("x402: unknown mode %q", c.Mode)
	}

	for _, name := range c.ValidatorOrder {
		switch name {
		case validator.NameFacilitator, validator.NameChain, validator.NameFormat:
		default:
			return fmt.Errorf("x402: unknown validator backend %q", name)
		}
	}

	if c.ReplayRetentionSeconds*1000 < c.TimeoutMS {
		return ErrShortRetention
	}
	return nil
}

// Method builds the payment method this route offers in challenges.
func (c Config) Method() x402.PaymentMethod {
	return x402.PaymentMethod{
		Scheme:        x402.SchemeExact,
		Network:       c.Network,
		Asset:         c.Asset,
		Recipient:     c.Recipient,
		MaximumAmount: c.PaymentAmount,
		MinimumAmount: c.MinimumAmount,
		TimeoutMS:     c.TimeoutMS,
		Description:   c.Description,
		Extra:         c.Extra,
	}
}
