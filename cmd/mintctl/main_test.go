package main

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConsentRequest() types.ConsentRequest {
	return types.ConsentRequest{
		Signer:      common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		Destination: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		Value:       big.NewInt(0),
		GasLimit:    2_000_000,
		ChainID:     11155111,
	}
}

func TestConsentFuncPreApproved(t *testing.T) {
	consent := consentFunc(true, func(label string) (bool, error) {
		t.Fatal("prompt must not run when pre-approved")
		return false, nil
	})

	approved, err := consent(context.Background(), testConsentRequest())
	require.NoError(t, err)
	assert.True(t, approved)
}

func TestConsentFuncPrompts(t *testing.T) {
	var asked int
	consent := consentFunc(false, func(label string) (bool, error) {
		asked++
		return false, nil
	})

	approved, err := consent(context.Background(), testConsentRequest())
	require.NoError(t, err)
	assert.False(t, approved)
	assert.Equal(t, 1, asked)

	consent = consentFunc(false, func(label string) (bool, error) {
		return false, errors.New("no tty")
	})
	_, err = consent(context.Background(), testConsentRequest())
	assert.EqualError(t, err, "no tty")
}

func TestConsentSummary(t *testing.T) {
	summary := consentSummary(testConsentRequest())

	assert.Contains(t, summary, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	assert.Contains(t, summary, "Sepolia")
	assert.Contains(t, summary, "gas limit: 2000000")
}
