// Package flow drives a regtest node through the payment demonstration: it
// provisions a miner and a trader wallet, matures a coinbase, pays the trader
// from the miner, confirms the payment and extracts the values that go into
// the report.
//
// Every step is one or more blocking round trips to the node. Nothing is
// retried; the first error ends the run.
package flow

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/neverDefined/go-regtest-flow/internal/node"
	"github.com/neverDefined/go-regtest-flow/internal/report"
)

const (
	MinerWallet  = "Miner"
	TraderWallet = "Trader"

	// MiningLabel and ReceiveLabel label the generated addresses in the
	// node's wallets.
	MiningLabel  = "Mining Reward"
	ReceiveLabel = "Received"

	// MaturityBlocks is mined to the miner so that the first coinbase has the
	// 100 confirmations the node requires before it can be spent.
	MaturityBlocks = 101

	// SendAmount is paid from the miner to the trader.
	SendAmount = btcutil.Amount(20 * btcutil.SatoshiPerBitcoin)
)

// Node is the base, wallet-less endpoint of the node.
type Node interface {
	node.WalletManager
	GetBlockchainInfo(ctx context.Context) (*node.BlockchainInfo, error)
	GenerateToAddress(ctx context.Context, numBlocks int64, addr btcutil.Address) ([]*chainhash.Hash, error)
	GetBlockCount(ctx context.Context) (int64, error)
}

// Wallet is an endpoint scoped to one of the node's wallets.
type Wallet interface {
	GetNewAddress(ctx context.Context, label string) (btcutil.Address, error)
	GetBalance(ctx context.Context) (btcutil.Amount, error)
	SendToAddress(ctx context.Context, addr btcutil.Address, amt btcutil.Amount) (*chainhash.Hash, error)
	GetTransaction(ctx context.Context, txHash *chainhash.Hash) (*node.WalletTransaction, error)
	GetRawTransaction(ctx context.Context, txHash, blockHash *chainhash.Hash) (*wire.MsgTx, error)
}

var (
	_ Node   = (*node.Client)(nil)
	_ Wallet = (*node.Client)(nil)
)

// WalletOpener returns an endpoint for the named wallet. It is called once per
// wallet, after the wallets have been provisioned.
type WalletOpener func(name string) (Wallet, error)

// Result is the outcome of a successful run.
type Result struct {
	Report       *report.Report
	MinerBalance btcutil.Amount
	// Provisions is what was done to the miner and trader wallets, in that
	// order.
	Provisions []node.Provision
}

// Runner runs the payment flow against one node.
type Runner struct {
	node        Node
	openWallet  WalletOpener
	chainParams *chaincfg.Params
}

// NewRunner is the constructor for a Runner.
func NewRunner(n Node, openWallet WalletOpener, chainParams *chaincfg.Params) *Runner {
	return &Runner{
		node:        n,
		openWallet:  openWallet,
		chainParams: chainParams,
	}
}

// Run executes the flow once.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if err := r.checkChain(ctx); err != nil {
		return nil, err
	}

	provisions, err := node.EnsureWallets(ctx, r.node, MinerWallet, TraderWallet)
	if err != nil {
		return nil, fmt.Errorf("error provisioning wallets: %w", err)
	}
	for i, name := range []string{MinerWallet, TraderWallet} {
		log.Infof("Wallet %s %s", name, provisions[i])
	}

	miner, err := r.openWallet(MinerWallet)
	if err != nil {
		return nil, fmt.Errorf("error opening %s wallet: %w", MinerWallet, err)
	}
	trader, err := r.openWallet(TraderWallet)
	if err != nil {
		return nil, fmt.Errorf("error opening %s wallet: %w", TraderWallet, err)
	}

	miningAddr, balance, err := r.matureCoinbase(ctx, miner)
	if err != nil {
		return nil, err
	}

	traderAddr, txHash, err := r.pay(ctx, miner, trader)
	if err != nil {
		return nil, err
	}

	blockHash, height, err := r.confirm(ctx, miningAddr)
	if err != nil {
		return nil, err
	}

	change, fee, err := r.extract(ctx, miner, txHash, traderAddr)
	if err != nil {
		return nil, err
	}

	return &Result{
		Report: &report.Report{
			TxID:             txHash.String(),
			MiningAddress:    miningAddr.EncodeAddress(),
			InputAmount:      report.InputAmount,
			RecipientAddress: traderAddr.EncodeAddress(),
			SentAmount:       report.SentAmount,
			ChangeAddress:    change.Address.EncodeAddress(),
			ChangeAmount:     change.Value,
			Fee:              fee,
			BlockHeight:      height,
			BlockHash:        blockHash.String(),
		},
		MinerBalance: balance,
		Provisions:   provisions,
	}, nil
}

func (r *Runner) checkChain(ctx context.Context) error {
	info, err := r.node.GetBlockchainInfo(ctx)
	if err != nil {
		return fmt.Errorf("error connecting to node: %w", err)
	}
	if info.Chain != r.chainParams.Name {
		return newError(ErrWrongChain, "node reports chain %q, expected %q", info.Chain, r.chainParams.Name)
	}
	log.Debugf("Connected to %s node at height %d", info.Chain, info.Blocks)
	return nil
}

// matureCoinbase mines MaturityBlocks to a new miner address and returns the
// address and the miner's resulting balance.
func (r *Runner) matureCoinbase(ctx context.Context, miner Wallet) (btcutil.Address, btcutil.Amount, error) {
	addr, err := miner.GetNewAddress(ctx, MiningLabel)
	if err != nil {
		return nil, 0, fmt.Errorf("error generating mining address: %w", err)
	}
	if _, err := r.node.GenerateToAddress(ctx, MaturityBlocks, addr); err != nil {
		return nil, 0, fmt.Errorf("error mining %d blocks: %w", MaturityBlocks, err)
	}
	balance, err := miner.GetBalance(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("error getting %s balance: %w", MinerWallet, err)
	}
	log.Infof("Mined %d blocks to %s, miner balance %v", MaturityBlocks, addr, balance)
	return addr, balance, nil
}

// pay sends SendAmount from miner to a new trader address.
func (r *Runner) pay(ctx context.Context, miner, trader Wallet) (btcutil.Address, *chainhash.Hash, error) {
	addr, err := trader.GetNewAddress(ctx, ReceiveLabel)
	if err != nil {
		return nil, nil, fmt.Errorf("error generating receiving address: %w", err)
	}
	txHash, err := miner.SendToAddress(ctx, addr, SendAmount)
	if err != nil {
		return nil, nil, fmt.Errorf("error sending %v to %s: %w", SendAmount, addr, err)
	}
	log.Infof("Sent %v to %s in %s", SendAmount, addr, txHash)
	return addr, txHash, nil
}

// confirm mines one block to miningAddr and returns its hash with the chain
// height after it.
func (r *Runner) confirm(ctx context.Context, miningAddr btcutil.Address) (*chainhash.Hash, int64, error) {
	hashes, err := r.node.GenerateToAddress(ctx, 1, miningAddr)
	if err != nil {
		return nil, 0, fmt.Errorf("error mining confirmation block: %w", err)
	}
	if len(hashes) != 1 {
		return nil, 0, fmt.Errorf("expected 1 block hash, node returned %d", len(hashes))
	}
	height, err := r.node.GetBlockCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("error getting block count: %w", err)
	}
	log.Infof("Mined confirmation block %s at height %d", hashes[0], height)
	return hashes[0], height, nil
}

// extract finds the change output and fee of the payment.
func (r *Runner) extract(ctx context.Context, miner Wallet, txHash *chainhash.Hash, recipient btcutil.Address) (*Output, btcutil.Amount, error) {
	wtx, err := miner.GetTransaction(ctx, txHash)
	if err != nil {
		return nil, 0, fmt.Errorf("error getting wallet transaction %s: %w", txHash, err)
	}

	// Without -txindex the node only finds a mined transaction when told which
	// block holds it.
	var blockHash *chainhash.Hash
	if wtx.BlockHash != "" {
		if blockHash, err = chainhash.NewHashFromStr(wtx.BlockHash); err != nil {
			return nil, 0, fmt.Errorf("bad block hash %q for %s: %w", wtx.BlockHash, txHash, err)
		}
	}
	msgTx, err := miner.GetRawTransaction(ctx, txHash, blockHash)
	if err != nil {
		return nil, 0, fmt.Errorf("error getting raw transaction %s: %w", txHash, err)
	}

	_, change, err := SplitOutputs(msgTx, recipient, r.chainParams)
	if err != nil {
		return nil, 0, err
	}
	fee, err := AbsFee(wtx)
	if err != nil {
		return nil, 0, err
	}
	log.Debugf("Change %v to %s, fee %v", change.Value, change.Address, fee)
	return change, fee, nil
}
