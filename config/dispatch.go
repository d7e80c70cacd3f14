package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EntryPoint v0.6, the version understood by the bundler client
	DefaultEntryPointAddress = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"

	// Light Account Factory v1.1.0
	DefaultAccountFactoryAddress = "0x00004EC70002a32400f8ae005A26081065620D20"

	DefaultWalletFallbackGasLimit = 2_000_000
)

// DispatchConfiguration holds the process-wide configuration of the dispatch engine
type DispatchConfiguration struct {
	RPCURL          string `validate:"required,url"`
	BundlerURL      string `validate:"required,url"`
	PaymasterURL    string `validate:"omitempty,url"`
	RelayerAPIKey   string
	GasPolicyID     string // Optional - for gas sponsorship
	ChainID         int64  `validate:"gt=0"`
	ContractAddress string `validate:"required,eth_addr"`

	EntryPointAddress     string `validate:"required,eth_addr"`
	AccountFactoryAddress string `validate:"required,eth_addr"`
	AccountSalt           int64  `validate:"gte=0"`
	OwnerPrivateKey       string `validate:"required"`

	// Wallet-funded fallback; both empty disables the last strategy
	WalletPrivateKey       string
	WalletMnemonic         string
	WalletFallbackGasLimit uint64 `validate:"gt=0"`

	FaucetURLs          []string
	IdempotencyTTL      time.Duration
	ConfirmationPollMin time.Duration
	ConfirmationPollMax time.Duration
}

// DispatchConfig returns the dispatch engine configuration
func DispatchConfig() *DispatchConfiguration {
	viper.SetDefault("ENTRYPOINT_ADDRESS", DefaultEntryPointAddress)
	viper.SetDefault("ACCOUNT_FACTORY_ADDRESS", DefaultAccountFactoryAddress)
	viper.SetDefault("WALLET_FALLBACK_GAS_LIMIT", DefaultWalletFallbackGasLimit)
	viper.SetDefault("IDEMPOTENCY_TTL", 24*time.Hour)
	viper.SetDefault("CONFIRMATION_POLL_MIN", time.Second)
	viper.SetDefault("CONFIRMATION_POLL_MAX", 15*time.Second)

	paymasterURL := viper.GetString("PAYMASTER_URL")
	if paymasterURL == "" {
		paymasterURL = viper.GetString("BUNDLER_URL")
	}

	return &DispatchConfiguration{
		RPCURL:                 viper.GetString("RPC_URL"),
		BundlerURL:             viper.GetString("BUNDLER_URL"),
		PaymasterURL:           paymasterURL,
		RelayerAPIKey:          viper.GetString("RELAYER_API_KEY"),
		GasPolicyID:            viper.GetString("GAS_POLICY_ID"),
		ChainID:                viper.GetInt64("CHAIN_ID"),
		ContractAddress:        viper.GetString("CONTRACT_ADDRESS"),
		EntryPointAddress:      viper.GetString("ENTRYPOINT_ADDRESS"),
		AccountFactoryAddress:  viper.GetString("ACCOUNT_FACTORY_ADDRESS"),
		AccountSalt:            viper.GetInt64("ACCOUNT_SALT"),
		OwnerPrivateKey:        viper.GetString("SMART_ACCOUNT_OWNER_PRIVATE_KEY"),
		WalletPrivateKey:       viper.GetString("WALLET_PRIVATE_KEY"),
		WalletMnemonic:         viper.GetString("WALLET_MNEMONIC"),
		WalletFallbackGasLimit: viper.GetUint64("WALLET_FALLBACK_GAS_LIMIT"),
		FaucetURLs:             splitList(viper.GetString("FAUCET_URLS")),
		IdempotencyTTL:         viper.GetDuration("IDEMPOTENCY_TTL"),
		ConfirmationPollMin:    viper.GetDuration("CONFIRMATION_POLL_MIN"),
		ConfirmationPollMax:    viper.GetDuration("CONFIRMATION_POLL_MAX"),
	}
}

// Validate checks the configuration before the engine is wired
func (c *DispatchConfiguration) Validate() error {
	return validateStruct("dispatch", c)
}

// WalletFallbackEnabled reports whether a wallet key is configured
func (c *DispatchConfiguration) WalletFallbackEnabled() bool {
	return c.WalletPrivateKey != "" || c.WalletMnemonic != ""
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
