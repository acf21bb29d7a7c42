package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Protocol constants.
const (
	// Version is the x402 protocol version spoken by this module.
	Version = 1

	// PaymentHeader carries the client's payment on a retried request.
	PaymentHeader = "X-PAYMENT"

	// PaymentResponseHeader carries the settlement record back to the client.
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"

	// MaxPaymentHeaderBytes caps the accepted X-PAYMENT header size.
	MaxPaymentHeaderBytes = 8 * 1024

	// SchemeExact is the ERC-3009 exact-amount transfer scheme.
	SchemeExact = "exact"

	// SchemeEIP3009 is an accepted alias for SchemeExact.
	SchemeEIP3009 = "eip3009"

	// StatusConfirmed marks a settled payment in response bodies.
	StatusConfirmed = "confirmed"
)

// Mode selects what a route accepts in the X-PAYMENT header.
type Mode string

const (
	// ModeAuthorization accepts a signed ERC-3009 transfer authorization.
	ModeAuthorization Mode = "authorization"

	// ModeTransactionHash accepts a bare transaction hash for transfers
	// already settled on chain. Routes in this mode verify the hash with
	// the chain backend.
	ModeTransactionHash Mode = "transaction-hash"
)

// MethodExtra carries EIP-712 domain hints for the asset contract.
type MethodExtra struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// PaymentMethod is one offered way to pay inside a challenge: a
// (scheme, network, asset, recipient, amount) tuple plus timing bounds.
// Amounts are decimal strings in the smallest token unit.
type PaymentMethod struct {
	Scheme        string       `json:"scheme"`
	Network       string       `json:"network"`
	Asset         string       `json:"asset"`
	Recipient     string       `json:"recipient"`
	MaximumAmount string       `json:"maximumAmount"`
	MinimumAmount string       `json:"minimumAmount"`
	TimeoutMS     int64        `json:"timeout"`
	Description   string       `json:"description,omitempty"`
	Extra         *MethodExtra `json:"extra,omitempty"`
}

// UnmarshalJSON accepts the wire aliases other x402 implementations emit:
// payTo for recipient, maxAmountRequired for maximumAmount and
// maxTimeoutSeconds (seconds) for timeout (milliseconds). Canonical names
// win when both are present.
func (m *PaymentMethod) UnmarshalJSON(data []byte) error {
	var raw struct {
		Scheme            string       `json:"scheme"`
		Network           string       `json:"network"`
		Asset             string       `json:"asset"`
		Recipient         string       `json:"recipient"`
		PayTo             string       `json:"payTo"`
		MaximumAmount     string       `json:"maximumAmount"`
		MaxAmountRequired string       `json:"maxAmountRequired"`
		MinimumAmount     string       `json:"minimumAmount"`
		Timeout           *int64       `json:"timeout"`
		MaxTimeoutSeconds *int64       `json:"maxTimeoutSeconds"`
		Description       string       `json:"description"`
		Extra             *MethodExtra `json:"extra"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Scheme = raw.Scheme
	m.Network = raw.Network
	m.Asset = raw.Asset
	m.Description = raw.Description
	m.Extra = raw.Extra

	m.Recipient = raw.Recipient
	if m.Recipient == "" {
		m.Recipient = raw.PayTo
	}

	m.MaximumAmount = raw.MaximumAmount
	if m.MaximumAmount == "" {
		m.MaximumAmount = raw.MaxAmountRequired
	}
	m.MinimumAmount = raw.MinimumAmount
	if m.MinimumAmount == "" {
		m.MinimumAmount = m.MaximumAmount
	}

	switch {
	case raw.Timeout != nil:
		m.TimeoutMS = *raw.Timeout
	case raw.MaxTimeoutSeconds != nil:
		m.TimeoutMS = *raw.MaxTimeoutSeconds * 1000
	}
	return nil
}

// Challenge is the body of a 402 response: the protocol version and the
// payment methods the server accepts for the requested resource.
type Challenge struct {
	X402Version int             `json:"x402Version"`
	Methods     []PaymentMethod `json:"methods"`
}

// UnmarshalJSON accepts "accepts" as an alias for "methods".
func (c *Challenge) UnmarshalJSON(data []byte) error {
	var raw struct {
		X402Version int             `json:"x402Version"`
		Methods     []PaymentMethod `json:"methods"`
		Accepts     []PaymentMethod `json:"accepts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.X402Version = raw.X402Version
	c.Methods = raw.Methods
	if len(c.Methods) == 0 {
		c.Methods = raw.Accepts
	}
	return nil
}

// Authorization is the ERC-3009 TransferWithAuthorization body. All
// numeric fields are decimal strings on the wire; the nonce is 32 bytes
// of 0x-prefixed hex.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactPayload pairs an authorization with the 65-byte EIP-712 signature
// covering it.
type ExactPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// SignedAuthorization is the X-PAYMENT payload: a versioned envelope
// around the signed transfer authorization.
type SignedAuthorization struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     ExactPayload `json:"payload"`
}

// PaymentReceipt records a settled payment.
type PaymentReceipt struct {
	TransactionHash string   `json:"transactionHash"`
	Network         string   `json:"network"`
	Payer           string   `json:"payer,omitempty"`
	BlockNumber     *big.Int `json:"blockNumber,omitempty"`
	Timestamp       int64    `json:"timestamp,omitempty"`
}

// PaymentInfo is the settlement summary merged into 2xx response bodies
// under the "payment" key.
type PaymentInfo struct {
	TransactionHash string `json:"transactionHash"`
	Network         string `json:"network"`
	Status          string `json:"status"`
}

// SettlementHeader is the decoded X-PAYMENT-RESPONSE value.
type SettlementHeader struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash"`
	Network         string `json:"network"`
	Payer           string `json:"payer,omitempty"`
}

// Payment is a decoded X-PAYMENT header. Exactly one field is set: Signed
// in authorization mode, TransactionHash in legacy hash mode.
type Payment struct {
	Signed          *SignedAuthorization
	TransactionHash string
}

var (
	base64Pattern  = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)
	txHashPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// DecodePayment decodes an X-PAYMENT header value according to the
// route's mode. Authorization payloads are accepted as base64(JSON) or
// raw JSON, tried in that order; hash-mode headers must be a 32-byte
// transaction hash. All failures are classified invalid-format.
func DecodePayment(header string, mode Mode) (*Payment, error) {
	if header == "" {
		return nil, NewError(ClassInvalidFormat, "payment header is empty")
	}
	if len(header) > MaxPaymentHeaderBytes {
		return nil, Errorf(ClassInvalidFormat, "payment header exceeds %d bytes", MaxPaymentHeaderBytes)
	}

	if mode == ModeTransactionHash {
		hash := strings.TrimSpace(header)
		if !txHashPattern.MatchString(hash) {
			return nil, NewError(ClassInvalidFormat, "payment must be a 0x-prefixed 32-byte transaction hash")
		}
		return &Payment{TransactionHash: hash}, nil
	}

	body, ok := decodeHeaderBody(header)
	if !ok {
		return nil, NewError(ClassInvalidFormat, "payment header is neither base64 nor JSON")
	}
	if err := ValidatePaymentJSON(body); err != nil {
		return nil, err
	}
	var signed SignedAuthorization
	if err := json.Unmarshal(body, &signed); err != nil {
		return nil, WrapError(ClassInvalidFormat, "payment payload does not parse", err)
	}
	return &Payment{Signed: &signed}, nil
}

// decodeHeaderBody tries base64 first, then falls back to raw JSON.
func decodeHeaderBody(header string) ([]byte, bool) {
	if base64Pattern.MatchString(header) {
		if decoded, err := base64.StdEncoding.DecodeString(header); err == nil {
			return decoded, true
		}
	}
	trimmed := strings.TrimSpace(header)
	if strings.HasPrefix(trimmed, "{") {
		return []byte(trimmed), true
	}
	return nil, false
}

// EncodePayment encodes a signed authorization for the X-PAYMENT header
// using the default base64(JSON) wire form.
func EncodePayment(signed *SignedAuthorization) (string, error) {
	data, err := json.Marshal(signed)
	if err != nil {
		return "", fmt.Errorf("encode payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// EncodeSettlementHeader builds the X-PAYMENT-RESPONSE value for a
// settled payment.
func EncodeSettlementHeader(receipt *PaymentReceipt) (string, error) {
	data, err := json.Marshal(SettlementHeader{
		Success:         true,
		TransactionHash: receipt.TransactionHash,
		Network:         receipt.Network,
		Payer:           receipt.Payer,
	})
	if err != nil {
		return "", fmt.Errorf("encode settlement header: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSettlementHeader parses an X-PAYMENT-RESPONSE value.
func DecodeSettlementHeader(value string) (*SettlementHeader, error) {
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode settlement header: %w", err)
	}
	var settlement SettlementHeader
	if err := json.Unmarshal(decoded, &settlement); err != nil {
		return nil, fmt.Errorf("decode settlement header: %w", err)
	}
	return &settlement, nil
}

// ParseAmount parses an unsigned decimal token amount into a big integer,
// rejecting anything that does not fit uint256.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if n.BitLen() > 256 {
		return nil, fmt.Errorf("amount %q exceeds uint256", s)
	}
	return n, nil
}

// EqualAddress compares two hex addresses case-insensitively.
func EqualAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// ValidAddress reports whether s is a 0x-prefixed 20-byte hex address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ExtractTransactionHash pulls a transaction hash out of decoded JSON,
// accepting the transactionHash, txHash and tx aliases.
func ExtractTransactionHash(body map[string]any) string {
	for _, key := range []string{"transactionHash", "txHash", "tx"} {
		if v, ok := body[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
