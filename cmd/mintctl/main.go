package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NEDA-LABS/mintrelay/config"
	"github.com/NEDA-LABS/mintrelay/services"
	"github.com/NEDA-LABS/mintrelay/storage"
	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/NEDA-LABS/mintrelay/utils"
	"github.com/NEDA-LABS/mintrelay/utils/logger"
	"github.com/manifoldco/promptui"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "mintctl",
		Usage: "Mint NFTs through the resilient dispatch cascade",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config-dir",
				Usage: "directory holding the .env configuration file",
				Value: ".",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level",
				Value:   "warn",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(cctx *cli.Context) error {
			if err := config.SetupConfig(cctx.String("config-dir")); err != nil {
				return err
			}
			return logger.Setup(logger.Options{Level: cctx.String("log-level")})
		},
		Commands: []*cli.Command{
			mintCmd,
			preflightCmd,
			diagnoseCmd,
			waitCmd,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		if msg := services.UserMessage(err); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(1)
	}
}

var mintCmd = &cli.Command{
	Name:      "mint",
	Usage:     "Mint one NFT with inline metadata",
	ArgsUsage: "<name>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "description", Usage: "token description"},
		&cli.StringFlag{Name: "image", Usage: "token image URL"},
		&cli.StringFlag{Name: "value", Usage: "wei sent with the mint call", Value: "0"},
		&cli.StringFlag{Name: "key", Usage: "idempotency key, generated when empty"},
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "approve the wallet-funded fallback without prompting"},
		&cli.BoolFlag{Name: "wait", Usage: "wait for the confirmation"},
		&cli.DurationFlag{Name: "timeout", Usage: "confirmation wait bound", Value: 2 * time.Minute},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return cli.ShowSubcommandHelp(cctx)
		}

		value, ok := new(big.Int).SetString(cctx.String("value"), 10)
		if !ok {
			return fmt.Errorf("invalid value %q", cctx.String("value"))
		}

		return withEngine(cctx, func(ctx context.Context, engine *services.Engine) error {
			outcome, err := engine.Mint(ctx, services.MintRequest{
				Name:           cctx.Args().First(),
				Description:    cctx.String("description"),
				Image:          cctx.String("image"),
				Value:          value,
				IdempotencyKey: cctx.String("key"),
				Consent:        consentFunc(cctx.Bool("yes"), promptConfirm),
			})
			if err != nil {
				var preflightErr *services.PreflightError
				if errors.As(err, &preflightErr) && preflightErr.Funding != nil {
					_ = printJSON(preflightErr.Funding)
				}
				return err
			}
			if err := printJSON(outcome); err != nil {
				return err
			}

			if !cctx.Bool("wait") {
				return nil
			}
			waitCtx, cancel := context.WithTimeout(ctx, cctx.Duration("timeout"))
			defer cancel()

			receipt, err := outcome.AwaitConfirmation(waitCtx)
			if err != nil {
				return err
			}
			return printJSON(receipt)
		})
	},
}

var preflightCmd = &cli.Command{
	Name:  "preflight",
	Usage: "Check the contract, network and account balance",
	Action: func(cctx *cli.Context) error {
		return withEngine(cctx, func(ctx context.Context, engine *services.Engine) error {
			report, err := engine.Preflight(ctx)
			if err != nil {
				var preflightErr *services.PreflightError
				if errors.As(err, &preflightErr) && preflightErr.Funding != nil {
					_ = printJSON(preflightErr.Funding)
				}
				return err
			}

			fmt.Printf("Account:  %s\n", report.Account.Hex())
			fmt.Printf("Network:  %s (%d)\n", utils.NetworkName(report.ChainID), report.ChainID)
			fmt.Printf("Balance:  %s ETH\n", utils.WeiToEther(report.Balance))
			fmt.Printf("Contract: deployed\n")
			return nil
		})
	},
}

var diagnoseCmd = &cli.Command{
	Name:  "diagnose",
	Usage: "Report smart account and bundler health",
	Action: func(cctx *cli.Context) error {
		return withEngine(cctx, func(ctx context.Context, engine *services.Engine) error {
			return printJSON(engine.Diagnose(ctx))
		})
	},
}

var waitCmd = &cli.Command{
	Name:      "wait",
	Usage:     "Wait for the confirmation of a recorded dispatch",
	ArgsUsage: "<idempotency-key>",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "timeout", Usage: "confirmation wait bound", Value: 2 * time.Minute},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return cli.ShowSubcommandHelp(cctx)
		}

		return withEngine(cctx, func(ctx context.Context, engine *services.Engine) error {
			waitCtx, cancel := context.WithTimeout(ctx, cctx.Duration("timeout"))
			defer cancel()

			receipt, err := engine.Receipt(waitCtx, cctx.Args().First())
			if err != nil {
				return err
			}
			return printJSON(receipt)
		})
	},
}

func withEngine(cctx *cli.Context, fn func(ctx context.Context, engine *services.Engine) error) error {
	ctx := cctx.Context

	if err := storage.InitializeRedis(ctx); err != nil {
		return err
	}
	defer storage.CloseRedis()

	engine, err := services.NewEngine(ctx, config.DispatchConfig())
	if err != nil {
		return err
	}
	defer engine.Close()

	return fn(ctx, engine)
}

// confirmer asks a yes/no question
type confirmer func(label string) (bool, error)

func promptConfirm(label string) (bool, error) {
	_, err := (&promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}).Run()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, promptui.ErrAbort), errors.Is(err, promptui.ErrInterrupt):
		return false, nil
	}
	return false, err
}

// consentFunc gates the wallet-funded fallback behind an interactive prompt
func consentFunc(yes bool, confirm confirmer) types.ConsentFunc {
	return func(ctx context.Context, req types.ConsentRequest) (bool, error) {
		fmt.Println(consentSummary(req))
		if yes {
			return true, nil
		}
		return confirm("Send this transaction from your wallet")
	}
}

func consentSummary(req types.ConsentRequest) string {
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	return fmt.Sprintf(
		"Sponsored and smart account submission failed.\nWallet %s will pay gas to call %s on %s.\nValue: %s ETH, gas limit: %d",
		req.Signer.Hex(), req.Destination.Hex(), utils.NetworkName(req.ChainID), utils.WeiToEther(value), req.GasLimit,
	)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
