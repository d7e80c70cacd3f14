package services

import (
	"context"
	"fmt"

	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/NEDA-LABS/mintrelay/utils/logger"
)

// AccountDiagnostics produces an advisory snapshot of the smart account
type AccountDiagnostics struct{}

// NewAccountDiagnostics creates a diagnostics runner
func NewAccountDiagnostics() *AccountDiagnostics {
	return &AccountDiagnostics{}
}

// Diagnose never fails; problems are reported in the returned Issues
func (d *AccountDiagnostics) Diagnose(ctx context.Context, account types.SmartAccount) (report types.DiagnosticReport) {
	defer func() {
		if r := recover(); r != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("diagnostics panicked: %v", r))
			logger.Errorf("Account diagnostics panicked: %v", r)
		}
	}()

	if account == nil {
		report.Issues = append(report.Issues, "no smart account configured")
		return report
	}

	address, err := account.Address(ctx)
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("address resolution failed: %v", err))
		logger.Warnf("Smart account address resolution failed: %v", err)
	} else {
		report.Account = address
		report.AccountResolved = true
	}

	deployed, err := account.IsDeployed(ctx)
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("deployment check failed: %v", err))
		logger.Warnf("Smart account deployment check failed: %v", err)
	} else {
		report.Deployed = &deployed
		if !deployed {
			logger.WithFields(logger.Fields{
				"Account": report.Account.Hex(),
			}).Infof("Smart account not deployed yet, the first transaction deploys it")
		}
	}

	if err := account.Ping(ctx); err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("bundler unreachable: %v", err))
		logger.Warnf("Bundler connectivity check failed: %v", err)
	} else {
		report.BackendReachable = true
	}

	logger.WithFields(logger.Fields{
		"Account":          report.Account.Hex(),
		"AccountResolved":  report.AccountResolved,
		"Deployed":         report.Deployed != nil && *report.Deployed,
		"BackendReachable": report.BackendReachable,
		"Issues":           len(report.Issues),
	}).Infof("Account diagnostics")

	return report
}
