// Package signer creates and signs EIP-3009 transfer authorizations for the
// exact payment scheme.
//
// A Signer wraps an ECDSA private key. Sign builds a fresh authorization for
// a payment method (random nonce, validity window derived from the method
// timeout) and signs its EIP-712 digest under the asset contract's signing
// domain. RecoverSigner is the verification counterpart.
package signer

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	x402 "github.com/paidroute/x402"
)

// DefaultValiditySeconds bounds the authorization window when the payment
// method carries no timeout.
const DefaultValiditySeconds = 300

// transferWithAuthTypes is the EIP-712 type set for ERC-3009
// TransferWithAuthorization.
var transferWithAuthTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"TransferWithAuthorization": {
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "validAfter", Type: "uint256"},
		{Name: "validBefore", Type: "uint256"},
		{Name: "nonce", Type: "bytes32"},
	},
}

// Signer signs transfer authorizations with a single ECDSA key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address

	now func() time.Time
}

// New creates a Signer from a hex-encoded private key. A "0x" prefix is
// accepted and ignored.
func New(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		now:     time.Now,
	}, nil
}

// Address returns the wallet address derived from the signing key.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign builds an authorization for method and signs it. The authorization
// transfers the method's maximum amount from the signer's wallet to the
// method recipient, becomes valid immediately, expires when the method
// timeout elapses (DefaultValiditySeconds if the method has none), and
// carries a fresh random 32-byte nonce.
func (s *Signer) Sign(method x402.PaymentMethod) (*x402.SignedAuthorization, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}

	validity := int64(DefaultValiditySeconds)
	if method.TimeoutMS > 0 {
		validity = method.TimeoutMS / 1000
	}
	now := s.now().Unix()

	auth := x402.Authorization{
		From:        s.address.Hex(),
		To:          method.Recipient,
		Value:       method.MaximumAmount,
		ValidAfter:  big.NewInt(now).String(),
		ValidBefore: big.NewInt(now + validity).String(),
		Nonce:       nonce,
	}
	return s.SignAuthorization(auth, method)
}

// SignAuthorization signs a caller-supplied authorization for method. The
// signature is deterministic for a fixed authorization.
func (s *Signer) SignAuthorization(auth x402.Authorization, method x402.PaymentMethod) (*x402.SignedAuthorization, error) {
	digest, err := authorizationDigest(auth, method)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}
	// Recovery ID 0/1 -> 27/28.
	if signature[64] < 27 {
		signature[64] += 27
	}

	scheme := method.Scheme
	if scheme == "" {
		scheme = x402.SchemeExact
	}
	return &x402.SignedAuthorization{
		X402Version: x402.Version,
		Scheme:      scheme,
		Network:     method.Network,
		Payload: x402.ExactPayload{
			Signature:     "0x" + hex.EncodeToString(signature),
			Authorization: auth,
		},
	}, nil
}

// RecoverSigner returns the address that produced the signature carried by
// signed. The method supplies the signing domain the authorization was
// hashed under.
func RecoverSigner(signed *x402.SignedAuthorization, method x402.PaymentMethod) (common.Address, error) {
	sig, err := decodeSignature(signed.Payload.Signature)
	if err != nil {
		return common.Address{}, err
	}

	digest, err := authorizationDigest(signed.Payload.Authorization, method)
	if err != nil {
		return common.Address{}, err
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// authorizationDigest computes the EIP-712 digest for auth:
// keccak256("\x19\x01" || domainSeparator || structHash) with the method's
// asset contract as the verifying contract.
func authorizationDigest(auth x402.Authorization, method x402.PaymentMethod) ([]byte, error) {
	chainID, ok := x402.ChainID(method.Network)
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", method.Network)
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid authorization value: %s", auth.Value)
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validAfter: %s", auth.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validBefore: %s", auth.ValidBefore)
	}
	nonce, err := decodeNonce(auth.Nonce)
	if err != nil {
		return nil, err
	}

	name, version := x402.EIP712DomainFor(method)
	typedData := apitypes.TypedData{
		Types:       transferWithAuthTypes,
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: method.Asset,
		},
		Message: map[string]interface{}{
			"from":        common.HexToAddress(auth.From).Hex(),
			"to":          common.HexToAddress(auth.To).Hex(),
			"value":       value,
			"validAfter":  validAfter,
			"validBefore": validBefore,
			"nonce":       nonce,
		},
	}

	structHash, err := typedData.HashStruct("TransferWithAuthorization", typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash authorization: %w", err)
	}
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	// EIP-712 digest: 0x19 0x01 <domainSeparator> <structHash>
	raw := []byte{0x19, 0x01}
	raw = append(raw, domainSeparator...)
	raw = append(raw, structHash...)
	return crypto.Keccak256(raw), nil
}

// newNonce returns a random 32-byte nonce as a 0x-prefixed hex string.
func newNonce() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return "0x" + hex.EncodeToString(b[:]), nil
}

// decodeNonce parses a 0x-prefixed 32-byte hex nonce.
func decodeNonce(nonce string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(nonce, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid nonce encoding: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid nonce length: %d bytes", len(raw))
	}
	return raw, nil
}

// decodeSignature parses a 65-byte r||s||v signature and normalizes v back
// to a 0/1 recovery ID for public-key recovery.
func decodeSignature(signature string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(raw) != 65 {
		return nil, fmt.Errorf("invalid signature length: %d bytes", len(raw))
	}
	sig := make([]byte, 65)
	copy(sig, raw)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	return sig, nil
}
