package utils

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// WeiToEther renders a wei amount in ether with 6 decimals
func WeiToEther(wei *big.Int) string {
	if wei == nil {
		return "0.000000"
	}
	return decimal.NewFromBigInt(wei, -18).StringFixed(6)
}

// GweiToWei converts a whole gwei amount to wei
func GweiToWei(gwei int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(gwei), big.NewInt(1_000_000_000))
}
