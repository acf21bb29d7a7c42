package x402

import "sort"

// networkChainIDs is the closed set of networks the module recognizes.
var networkChainIDs = map[string]int64{
	"ethereum":     1,
	"sepolia":      11155111,
	"base":         8453,
	"base-sepolia": 84532,
	"polygon":      137,
	"arbitrum":     42161,
	"optimism":     10,
}

// explorerHosts maps networks to their transaction explorers.
var explorerHosts = map[string]string{
	"ethereum":     "etherscan.io",
	"sepolia":      "sepolia.etherscan.io",
	"base":         "basescan.org",
	"base-sepolia": "sepolia.basescan.org",
	"polygon":      "polygonscan.com",
	"arbitrum":     "arbiscan.io",
	"optimism":     "optimistic.etherscan.io",
}

// ChainID resolves a network name to its EVM chain id.
func ChainID(network string) (int64, bool) {
	id, ok := networkChainIDs[network]
	return id, ok
}

// NetworkForChainID resolves an EVM chain id back to its network name.
func NetworkForChainID(id int64) (string, bool) {
	for name, chainID := range networkChainIDs {
		if chainID == id {
			return name, true
		}
	}
	return "", false
}

// SupportedNetworks returns the recognized network names, sorted.
func SupportedNetworks() []string {
	names := make([]string, 0, len(networkChainIDs))
	for name := range networkChainIDs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExplorerTxURL returns the block-explorer link for a transaction.
func ExplorerTxURL(network, txHash string) (string, bool) {
	host, ok := explorerHosts[network]
	if !ok {
		return "", false
	}
	return "https://" + host + "/tx/" + txHash, true
}

// KnownToken describes a stablecoin deployment the module knows out of
// the box: the contract address and its EIP-712 domain parameters.
type KnownToken struct {
	Address  string
	Name     string
	Version  string
	Decimals int32
}

// knownTokens maps each network to its canonical USDC deployment.
var knownTokens = map[string]KnownToken{
	"ethereum":     {Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Name: "USD Coin", Version: "2", Decimals: 6},
	"sepolia":      {Address: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238", Name: "USDC", Version: "2", Decimals: 6},
	"base":         {Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Name: "USD Coin", Version: "2", Decimals: 6},
	"base-sepolia": {Address: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", Name: "USDC", Version: "2", Decimals: 6},
	"polygon":      {Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Name: "USD Coin", Version: "2", Decimals: 6},
	"arbitrum":     {Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Name: "USD Coin", Version: "2", Decimals: 6},
	"optimism":     {Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", Name: "USD Coin", Version: "2", Decimals: 6},
}

// KnownTokenFor returns the known stablecoin deployment for a network.
func KnownTokenFor(network string) (KnownToken, bool) {
	tok, ok := knownTokens[network]
	return tok, ok
}

// EIP712DomainFor resolves the signing domain for a payment method. The
// method's extra hints win; otherwise the known-token table supplies the
// contract's registered name; unknown assets fall back to "USDC" / "2".
func EIP712DomainFor(method PaymentMethod) (name, version string) {
	name, version = "USDC", "2"
	if tok, ok := knownTokens[method.Network]; ok && EqualAddress(tok.Address, method.Asset) {
		name, version = tok.Name, tok.Version
	}
	if method.Extra != nil {
		if method.Extra.Name != "" {
			name = method.Extra.Name
		}
		if method.Extra.Version != "" {
			version = method.Extra.Version
		}
	}
	return name, version
}
