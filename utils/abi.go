package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const lightAccountABI = `[
	{"type":"function","name":"execute","inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}],"outputs":[]}
]`

const accountFactoryABI = `[
	{"type":"function","name":"createAccount","inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"outputs":[{"name":"ret","type":"address"}]},
	{"type":"function","name":"getAddress","inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"}
]`

const entryPointABI = `[
	{"type":"function","name":"getNonce","inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"outputs":[{"name":"nonce","type":"uint256"}],"stateMutability":"view"}
]`

const mintABI = `[
	{"type":"function","name":"mintWithMetadata","inputs":[{"name":"tokenURI","type":"string"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	lightAccount   = mustParseABI(lightAccountABI)
	accountFactory = mustParseABI(accountFactoryABI)
	entryPoint     = mustParseABI(entryPointABI)
	mintContract   = mustParseABI(mintABI)
)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI definition: %v", err))
	}
	return parsed
}

// EncodeExecute encodes LightAccount execute(address,uint256,bytes)
func EncodeExecute(dest common.Address, value *big.Int, data []byte) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	return lightAccount.Pack("execute", dest, value, data)
}

// EncodeCreateAccount encodes the factory createAccount(address,uint256) call
func EncodeCreateAccount(owner common.Address, salt *big.Int) ([]byte, error) {
	return accountFactory.Pack("createAccount", owner, salt)
}

// EncodeGetAddress encodes the factory getAddress(address,uint256) call
func EncodeGetAddress(owner common.Address, salt *big.Int) ([]byte, error) {
	return accountFactory.Pack("getAddress", owner, salt)
}

// DecodeGetAddress unpacks the counterfactual address returned by the factory
func DecodeGetAddress(result []byte) (common.Address, error) {
	values, err := accountFactory.Unpack("getAddress", result)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode getAddress result: %w", err)
	}
	address, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected getAddress result type %T", values[0])
	}
	return address, nil
}

// EncodeGetNonce encodes the EntryPoint getNonce(address,uint192) call
func EncodeGetNonce(sender common.Address, key *big.Int) ([]byte, error) {
	if key == nil {
		key = new(big.Int)
	}
	return entryPoint.Pack("getNonce", sender, key)
}

// DecodeGetNonce unpacks the nonce returned by the EntryPoint
func DecodeGetNonce(result []byte) (*big.Int, error) {
	values, err := entryPoint.Unpack("getNonce", result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode getNonce result: %w", err)
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getNonce result type %T", values[0])
	}
	return nonce, nil
}

// EncodeMintWithMetadata encodes mintWithMetadata(string)
func EncodeMintWithMetadata(tokenURI string) ([]byte, error) {
	return mintContract.Pack("mintWithMetadata", tokenURI)
}
