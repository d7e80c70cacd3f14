package utils

import "fmt"

var networkNames = map[int64]string{
	1:        "Ethereum Mainnet",
	10:       "Optimism",
	137:      "Polygon",
	8453:     "Base",
	42161:    "Arbitrum One",
	84532:    "Base Sepolia",
	80002:    "Polygon Amoy",
	421614:   "Arbitrum Sepolia",
	11155111: "Sepolia",
	11155420: "Optimism Sepolia",
}

// DefaultFaucets lists public faucets per testnet chain id
var DefaultFaucets = map[int64][]string{
	11155111: {
		"https://sepoliafaucet.com",
		"https://www.alchemy.com/faucets/ethereum-sepolia",
	},
	84532: {
		"https://www.alchemy.com/faucets/base-sepolia",
	},
	421614: {
		"https://www.alchemy.com/faucets/arbitrum-sepolia",
	},
	11155420: {
		"https://www.alchemy.com/faucets/optimism-sepolia",
	},
	80002: {
		"https://faucet.polygon.technology",
	},
}

// NetworkName returns a human-readable name for a chain id
func NetworkName(chainID int64) string {
	if name, ok := networkNames[chainID]; ok {
		return name
	}
	return fmt.Sprintf("chain %d", chainID)
}

// FaucetsFor returns the configured faucets, falling back to the defaults
func FaucetsFor(chainID int64, configured []string) []string {
	if len(configured) > 0 {
		return configured
	}
	return DefaultFaucets[chainID]
}
