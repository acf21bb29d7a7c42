package validator

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	x402 "github.com/paidroute/x402"
)

// DefaultConfirmations is the minimum chain depth before a transaction
// counts as settled.
const DefaultConfirmations = 1

// transferEventSig is keccak256("Transfer(address,address,uint256)"), the
// topic every ERC-20 Transfer log carries.
var transferEventSig = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// ChainReader is the slice of an Ethereum RPC client the chain backend
// needs. *ethclient.Client satisfies it.
type ChainReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Chain verifies settled payments directly against an RPC endpoint: the
// transaction must exist, have succeeded, be confirmed, and carry an ERC-20
// Transfer of at least the required amount to the configured recipient.
type Chain struct {
	reader        ChainReader
	confirmations uint64
	now           func() time.Time
}

// ChainOption configures a Chain backend.
type ChainOption func(*Chain)

// WithConfirmations overrides the minimum confirmation depth.
func WithConfirmations(n uint64) ChainOption {
	return func(c *Chain) {
		c.confirmations = n
	}
}

// NewChain creates a chain backend over an existing reader.
func NewChain(reader ChainReader, opts ...ChainOption) *Chain {
	c := &Chain{
		reader:        reader,
		confirmations: DefaultConfirmations,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DialChain connects to an RPC endpoint and wraps it in a chain backend.
func DialChain(rpcURL string, opts ...ChainOption) (*Chain, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, x402.WrapError(x402.ClassChainUnavailable, "failed to connect to RPC endpoint", err)
	}
	return NewChain(client, opts...), nil
}

// Name implements Backend.
func (c *Chain) Name() string {
	return NameChain
}

// Validate inspects the transaction named by the payment.
func (c *Chain) Validate(ctx context.Context, payment *x402.Payment, method x402.PaymentMethod) (*x402.PaymentReceipt, error) {
	hash := payment.TransactionHash
	if hash == "" {
		// An unsettled authorization has no transaction to inspect.
		return nil, ErrNotApplicable
	}

	receipt, err := c.reader.TransactionReceipt(ctx, common.HexToHash(hash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, x402.NewError(x402.ClassUnknownTransaction, "transaction not found on chain")
		}
		return nil, x402.WrapError(x402.ClassChainUnavailable, "failed to fetch transaction receipt", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, x402.NewError(x402.ClassRejected, "transaction reverted")
	}

	payer, err := findTransfer(receipt, method)
	if err != nil {
		return nil, err
	}

	if err := c.checkConfirmations(ctx, receipt); err != nil {
		return nil, err
	}

	return &x402.PaymentReceipt{
		TransactionHash: hash,
		Network:         method.Network,
		Payer:           payer.Hex(),
		BlockNumber:     receipt.BlockNumber,
		Timestamp:       c.now().Unix(),
	}, nil
}

// findTransfer scans the receipt logs for an ERC-20 Transfer emitted by the
// payment asset that pays the recipient at least the required amount, and
// returns the sending address.
func findTransfer(receipt *types.Receipt, method x402.PaymentMethod) (common.Address, error) {
	minAmount := method.MinimumAmount
	if minAmount == "" {
		minAmount = method.MaximumAmount
	}
	minimum, err := x402.ParseAmount(minAmount)
	if err != nil {
		return common.Address{}, x402.WrapError(x402.ClassInternal, "invalid required amount", err)
	}

	for _, log := range receipt.Logs {
		if !x402.EqualAddress(log.Address.Hex(), method.Asset) {
			continue
		}
		if len(log.Topics) != 3 || log.Topics[0] != transferEventSig {
			continue
		}
		to := common.BytesToAddress(log.Topics[2].Bytes())
		if !x402.EqualAddress(to.Hex(), method.Recipient) {
			continue
		}
		value := new(big.Int).SetBytes(log.Data)
		if value.Cmp(minimum) < 0 {
			continue
		}
		return common.BytesToAddress(log.Topics[1].Bytes()), nil
	}
	return common.Address{}, x402.NewError(x402.ClassAmountMismatch, "no transfer to the recipient meets the required amount")
}

// checkConfirmations requires the receipt's block to be at least the
// configured depth below the chain head.
func (c *Chain) checkConfirmations(ctx context.Context, receipt *types.Receipt) error {
	if c.confirmations == 0 || receipt.BlockNumber == nil {
		return nil
	}

	head, err := c.reader.BlockNumber(ctx)
	if err != nil {
		return x402.WrapError(x402.ClassChainUnavailable, "failed to fetch chain head", err)
	}

	block := receipt.BlockNumber.Uint64()
	if head < block {
		return x402.NewError(x402.ClassUnknownTransaction, "transaction block is ahead of the chain head")
	}
	if head-block+1 < c.confirmations {
		return x402.NewError(x402.ClassUnknownTransaction, "transaction is not yet confirmed")
	}
	return nil
}
