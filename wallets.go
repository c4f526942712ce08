package regtest

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/neverDefined/go-regtest-flow/internal/node"
)

// ---------------------------------------------------------------
//  Wallet and chain helpers
// ---------------------------------------------------------------

// baseClient returns the base node client or an error before Start.
func (rt *Regtest) baseClient() (*node.Client, error) {
	base := rt.Node()
	if base == nil {
		return nil, fmt.Errorf("regtest node at %s is not started", rt.cfg.Host)
	}
	return base, nil
}

// EnsureWallet makes the named wallet loaded, loading it from the wallet
// directory or creating it as needed.
func (rt *Regtest) EnsureWallet(name string) error {
	base, err := rt.baseClient()
	if err != nil {
		return err
	}
	provisions, err := node.EnsureWallets(context.Background(), base, name)
	if err != nil {
		return err
	}
	log.Debugf("Wallet %s %s", name, provisions[0])
	return nil
}

// UnloadWallet unloads the named wallet and drops its cached client.
func (rt *Regtest) UnloadWallet(name string) error {
	base, err := rt.baseClient()
	if err != nil {
		return err
	}
	if err := base.UnloadWallet(context.Background(), name); err != nil {
		return err
	}

	rt.mu.Lock()
	if wc, found := rt.wallets[name]; found {
		wc.Shutdown()
		delete(rt.wallets, name)
	}
	rt.mu.Unlock()
	return nil
}

// GenerateBech32 returns a new bech32 address of the named wallet.
func (rt *Regtest) GenerateBech32(wallet string) (string, error) {
	wc, err := rt.WalletClient(wallet)
	if err != nil {
		return "", err
	}
	addr, err := wc.GetNewAddress(context.Background(), "")
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// Warp mines blocks to address and returns the new block hashes. Mining 101
// blocks to a fresh address makes its first coinbase spendable.
func (rt *Regtest) Warp(blocks int64, address string) ([]*chainhash.Hash, error) {
	addr, err := node.DecodeAddress(address, &chaincfg.RegressionNetParams)
	if err != nil {
		return nil, err
	}
	base, err := rt.baseClient()
	if err != nil {
		return nil, err
	}
	return base.GenerateToAddress(context.Background(), blocks, addr)
}

// SendToAddress sends sats from the named wallet to address.
func (rt *Regtest) SendToAddress(from, address string, sats int64) (*chainhash.Hash, error) {
	wc, err := rt.WalletClient(from)
	if err != nil {
		return nil, err
	}
	addr, err := node.DecodeAddress(address, wc.ChainParams())
	if err != nil {
		return nil, err
	}
	return wc.SendToAddress(context.Background(), addr, btcutil.Amount(sats))
}

// GetBlockCount returns the height of the node's best chain.
func (rt *Regtest) GetBlockCount() (int64, error) {
	base, err := rt.baseClient()
	if err != nil {
		return 0, err
	}
	return base.GetBlockCount(context.Background())
}

// GetTxOut returns the unspent output txid:index, or nil if it is spent or
// unknown. Mempool outputs are included when mempool is true.
func (rt *Regtest) GetTxOut(txid *chainhash.Hash, index uint32, mempool bool) (*btcjson.GetTxOutResult, error) {
	client := rt.Client()
	if client == nil {
		return nil, fmt.Errorf("regtest node at %s is not started", rt.cfg.Host)
	}
	return client.GetTxOut(txid, index, mempool)
}
