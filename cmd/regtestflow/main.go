// regtestflow drives a regtest bitcoind through a miner to trader payment and
// writes the details of the payment to a file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/btcsuite/btcd/chaincfg"
	regtest "github.com/neverDefined/go-regtest-flow"
	"github.com/neverDefined/go-regtest-flow/internal/flow"
	"github.com/neverDefined/go-regtest-flow/internal/node"
	"github.com/neverDefined/go-regtest-flow/internal/report"
)

const version = "0.1.0"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// run executes the program with the command line args. A failure is returned,
// not logged, so main reports it once.
func run(args []string) error {
	cfg, stop, err := configure(args)
	if err != nil {
		return fmt.Errorf("unable to configure: %w", err)
	}
	if stop {
		return nil
	}

	if cfg.LogDir != "" {
		if err := initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename)); err != nil {
			return err
		}
		defer closeFileLogger()
	}
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.StartNode {
		rt, err := regtest.New(&regtest.Config{
			Host:       cfg.RPCAddr,
			User:       cfg.RPCUser,
			Pass:       cfg.RPCPass,
			DataDir:    cfg.DataDir,
			ScriptPath: cfg.ScriptPath,
		})
		if err != nil {
			return err
		}
		if err := rt.Start(); err != nil {
			return fmt.Errorf("error starting regtest node: %w", err)
		}
		defer func() {
			if err := rt.Stop(); err != nil {
				log.Errorf("Error stopping regtest node: %v", err)
			}
		}()
	}

	res, err := runFlow(ctx, cfg)
	if err != nil {
		return fmt.Errorf("flow failed: %w", err)
	}

	fmt.Printf("Miner balance: %s BTC\n", report.FormatAmount(res.MinerBalance))

	if err := res.Report.WriteFile(cfg.OutFile); err != nil {
		return err
	}
	fmt.Printf("Transaction details written to %s successfully\n", cfg.OutFile)
	return nil
}

// runFlow dials the base and wallet endpoints and runs the payment flow. All
// clients are shut down before it returns.
func runFlow(ctx context.Context, cfg *config) (*flow.Result, error) {
	params := &chaincfg.RegressionNetParams
	nodeCfg := &node.Config{
		Host: cfg.RPCAddr,
		User: cfg.RPCUser,
		Pass: cfg.RPCPass,
	}

	base, err := node.Dial(nodeCfg, "", params)
	if err != nil {
		return nil, err
	}
	defer base.Shutdown()

	var wallets []*node.Client
	defer func() {
		for _, wc := range wallets {
			wc.Shutdown()
		}
	}()
	openWallet := func(name string) (flow.Wallet, error) {
		wc, err := node.Dial(nodeCfg, name, params)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, wc)
		return wc, nil
	}

	log.Infof("Running payment flow against %s", cfg.RPCAddr)
	return flow.NewRunner(base, openWallet, params).Run(ctx)
}
