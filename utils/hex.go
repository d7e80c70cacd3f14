package utils

import (
	"fmt"
	"math/big"
	"strings"
)

// HexToBig parses a 0x-prefixed quantity. Leading zeros are accepted since
// bundlers do not always return canonical quantities.
func HexToBig(s string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if trimmed == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return n, nil
}

// HexToUint64 parses a 0x-prefixed quantity into a uint64
func HexToUint64(s string) (uint64, error) {
	n, err := HexToBig(s)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("hex quantity %q overflows uint64", s)
	}
	return n.Uint64(), nil
}

// BigToHex renders a quantity as 0x-prefixed hex
func BigToHex(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}
