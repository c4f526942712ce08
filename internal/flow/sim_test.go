package flow

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/neverDefined/go-regtest-flow/internal/node"
)

const (
	tBlockReward = btcutil.Amount(50 * btcutil.SatoshiPerBitcoin)
	tFee         = btcutil.Amount(1410)
)

type tCoinbase struct {
	outPoint wire.OutPoint
	height   int64
	value    btcutil.Amount
	spent    bool
}

type tWalletTx struct {
	msgTx     *wire.MsgTx
	fee       btcutil.Amount
	blockHash *chainhash.Hash
}

type tWallet struct {
	name      string
	coinbases []*tCoinbase
	txs       map[chainhash.Hash]*tWalletTx
}

// tNode simulates the parts of a regtest bitcoind the flow touches. Coinbase
// maturity follows the node's rule of 101 confirmations (depth) before a
// block reward is spendable.
type tNode struct {
	chain      string
	height     int64
	blocks     []chainhash.Hash
	loaded     []string
	onDisk     []string
	wallets    map[string]*tWallet
	owners     map[string]string
	mempool    []*wire.MsgTx
	addrSeq    uint32
	creations  map[string]int
	calls      []string
	failMethod string
	reward     btcutil.Amount

	// mutateTx, when set, alters the payment transaction before it enters
	// the mempool.
	mutateTx func(*wire.MsgTx)
	// omitFee makes gettransaction leave out the fee.
	omitFee bool
}

func newTNode() *tNode {
	return &tNode{
		chain:     chaincfg.RegressionNetParams.Name,
		wallets:   make(map[string]*tWallet),
		owners:    make(map[string]string),
		creations: make(map[string]int),
		reward:    tBlockReward,
	}
}

func (n *tNode) record(method string) error {
	n.calls = append(n.calls, method)
	if method == n.failMethod {
		return fmt.Errorf("%s: simulated failure", method)
	}
	return nil
}

func (n *tNode) newAddress(wallet string) btcutil.Address {
	n.addrSeq++
	var hash [20]byte
	binary.BigEndian.PutUint32(hash[:], n.addrSeq)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash[:], &chaincfg.RegressionNetParams)
	if err != nil {
		panic(err)
	}
	n.owners[addr.EncodeAddress()] = wallet
	return addr
}

func (n *tNode) ListWallets(context.Context) ([]string, error) {
	if err := n.record("listwallets"); err != nil {
		return nil, err
	}
	return slices.Clone(n.loaded), nil
}

func (n *tNode) ListWalletDir(context.Context) ([]string, error) {
	if err := n.record("listwalletdir"); err != nil {
		return nil, err
	}
	return slices.Clone(n.onDisk), nil
}

func (n *tNode) CreateWallet(_ context.Context, name string) error {
	if err := n.record("createwallet"); err != nil {
		return err
	}
	if slices.Contains(n.onDisk, name) {
		return errors.New("Wallet file verification failed. Database already exists.")
	}
	n.creations[name]++
	n.onDisk = append(n.onDisk, name)
	n.loaded = append(n.loaded, name)
	n.wallets[name] = &tWallet{name: name, txs: make(map[chainhash.Hash]*tWalletTx)}
	return nil
}

func (n *tNode) LoadWallet(_ context.Context, name string) error {
	if err := n.record("loadwallet"); err != nil {
		return err
	}
	if slices.Contains(n.loaded, name) {
		return errors.New("Wallet is already loaded")
	}
	n.loaded = append(n.loaded, name)
	return nil
}

// unload drops a wallet from the loaded set, as if the node restarted.
func (n *tNode) unload(name string) {
	n.loaded = slices.DeleteFunc(n.loaded, func(s string) bool { return s == name })
}

func (n *tNode) GetBlockchainInfo(context.Context) (*node.BlockchainInfo, error) {
	if err := n.record("getblockchaininfo"); err != nil {
		return nil, err
	}
	return &node.BlockchainInfo{Chain: n.chain, Blocks: n.height}, nil
}

func (n *tNode) GenerateToAddress(_ context.Context, numBlocks int64, addr btcutil.Address) ([]*chainhash.Hash, error) {
	if err := n.record("generatetoaddress"); err != nil {
		return nil, err
	}
	hashes := make([]*chainhash.Hash, 0, numBlocks)
	for i := int64(0); i < numBlocks; i++ {
		n.height++
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(n.height))
		blockHash := chainhash.DoubleHashH(b[:])
		n.blocks = append(n.blocks, blockHash)
		hashes = append(hashes, &blockHash)

		for _, tx := range n.mempool {
			for _, w := range n.wallets {
				if wtx, found := w.txs[tx.TxHash()]; found {
					wtx.blockHash = &blockHash
				}
			}
		}
		n.mempool = nil

		if owner, found := n.owners[addr.EncodeAddress()]; found {
			coinbaseHash := chainhash.DoubleHashH(append([]byte("coinbase"), b[:]...))
			n.wallets[owner].coinbases = append(n.wallets[owner].coinbases, &tCoinbase{
				outPoint: *wire.NewOutPoint(&coinbaseHash, 0),
				height:   n.height,
				value:    n.reward,
			})
		}
	}
	return hashes, nil
}

func (n *tNode) GetBlockCount(context.Context) (int64, error) {
	if err := n.record("getblockcount"); err != nil {
		return 0, err
	}
	return n.height, nil
}

func (n *tNode) mature(cb *tCoinbase) bool {
	return n.height-cb.height+1 >= 101
}

func (n *tNode) openWallet(name string) (Wallet, error) {
	w, found := n.wallets[name]
	if !found || !slices.Contains(n.loaded, name) {
		return nil, fmt.Errorf("wallet %q not loaded", name)
	}
	return &tWalletClient{node: n, wallet: w}, nil
}

// tWalletClient is a wallet-scoped endpoint of a tNode.
type tWalletClient struct {
	node   *tNode
	wallet *tWallet
}

func (c *tWalletClient) GetNewAddress(_ context.Context, _ string) (btcutil.Address, error) {
	if err := c.node.record("getnewaddress"); err != nil {
		return nil, err
	}
	return c.node.newAddress(c.wallet.name), nil
}

func (c *tWalletClient) GetBalance(context.Context) (btcutil.Amount, error) {
	if err := c.node.record("getbalance"); err != nil {
		return 0, err
	}
	var bal btcutil.Amount
	for _, cb := range c.wallet.coinbases {
		if !cb.spent && c.node.mature(cb) {
			bal += cb.value
		}
	}
	return bal, nil
}

func (c *tWalletClient) SendToAddress(_ context.Context, addr btcutil.Address, amt btcutil.Amount) (*chainhash.Hash, error) {
	if err := c.node.record("sendtoaddress"); err != nil {
		return nil, err
	}
	var input *tCoinbase
	for _, cb := range c.wallet.coinbases {
		if !cb.spent && c.node.mature(cb) && cb.value >= amt+tFee {
			input = cb
			break
		}
	}
	if input == nil {
		return nil, errors.New("Insufficient funds")
	}
	input.spent = true

	payScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}
	changeScript, err := txscript.PayToAddrScript(c.node.newAddress(c.wallet.name))
	if err != nil {
		return nil, err
	}
	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.AddTxIn(wire.NewTxIn(&input.outPoint, nil, nil))
	msgTx.AddTxOut(wire.NewTxOut(int64(input.value-amt-tFee), changeScript))
	msgTx.AddTxOut(wire.NewTxOut(int64(amt), payScript))
	if c.node.mutateTx != nil {
		c.node.mutateTx(msgTx)
	}

	c.node.mempool = append(c.node.mempool, msgTx)
	txHash := msgTx.TxHash()
	c.wallet.txs[txHash] = &tWalletTx{msgTx: msgTx, fee: tFee}
	return &txHash, nil
}

func (c *tWalletClient) GetTransaction(_ context.Context, txHash *chainhash.Hash) (*node.WalletTransaction, error) {
	if err := c.node.record("gettransaction"); err != nil {
		return nil, err
	}
	wtx, found := c.wallet.txs[*txHash]
	if !found {
		return nil, errors.New("Invalid or non-wallet transaction id")
	}
	res := &node.WalletTransaction{TxID: txHash.String()}
	if !c.node.omitFee {
		fee := -wtx.fee.ToBTC()
		res.Fee = &fee
	}
	if wtx.blockHash != nil {
		res.BlockHash = wtx.blockHash.String()
		res.Confirmations = 1
	}
	return res, nil
}

func (c *tWalletClient) GetRawTransaction(_ context.Context, txHash, blockHash *chainhash.Hash) (*wire.MsgTx, error) {
	if err := c.node.record("getrawtransaction"); err != nil {
		return nil, err
	}
	for _, w := range c.node.wallets {
		wtx, found := w.txs[*txHash]
		if !found {
			continue
		}
		if blockHash == nil && wtx.blockHash != nil {
			return nil, errors.New("No such mempool transaction. Use -txindex or provide a block hash")
		}
		if blockHash != nil && (wtx.blockHash == nil || *wtx.blockHash != *blockHash) {
			return nil, errors.New("No such transaction found in the provided block")
		}
		return wtx.msgTx.Copy(), nil
	}
	return nil, errors.New("No such mempool or blockchain transaction")
}
