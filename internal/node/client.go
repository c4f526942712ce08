// Package node is a Bitcoin Core JSON-RPC client for the node and wallet calls
// used by the payment flow. Requests go through RawRequest so the transport
// can be an *rpcclient.Client or a test stub.
package node

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/tidwall/gjson"
)

const (
	methodListWallets       = "listwallets"
	methodListWalletDir     = "listwalletdir"
	methodCreateWallet      = "createwallet"
	methodLoadWallet        = "loadwallet"
	methodUnloadWallet      = "unloadwallet"
	methodNewAddress        = "getnewaddress"
	methodGenerateToAddress = "generatetoaddress"
	methodGetBalance        = "getbalance"
	methodSendToAddress     = "sendtoaddress"
	methodGetBlockCount     = "getblockcount"
	methodGetTransaction    = "gettransaction"
	methodGetRawTransaction = "getrawtransaction"
	methodGetBlockchainInfo = "getblockchaininfo"
	methodGetAddressInfo    = "getaddressinfo"
)

const (
	addressTypeBech32 = "bech32"

	// walletDirNames selects the wallet names from a listwalletdir result.
	walletDirNames = "wallets.#.name"
)

// RawRequester sends a JSON-RPC request and returns the raw result. It is
// satisfied by *rpcclient.Client.
type RawRequester interface {
	RawRequest(method string, params []json.RawMessage) (json.RawMessage, error)
}

// Client issues typed requests against one RPC endpoint, either the node's
// base endpoint or a /wallet/<name> endpoint.
type Client struct {
	requester   RawRequester
	chainParams *chaincfg.Params
	wallet      string
	shutdown    func()
}

// New wraps requester. wallet is the name of the wallet the endpoint is scoped
// to, or empty for the base endpoint. It is only used for logging.
func New(requester RawRequester, wallet string, chainParams *chaincfg.Params) *Client {
	return &Client{
		requester:   requester,
		chainParams: chainParams,
		wallet:      wallet,
	}
}

// Wallet is the wallet name the client is scoped to.
func (c *Client) Wallet() string {
	return c.wallet
}

// ChainParams are the network parameters used to decode addresses.
func (c *Client) ChainParams() *chaincfg.Params {
	return c.chainParams
}

// Shutdown releases the underlying connection, if the client owns one.
func (c *Client) Shutdown() {
	if c.shutdown != nil {
		c.shutdown()
	}
}

// anylist is a list of RPC parameters to be converted to []json.RawMessage and
// sent via RawRequest.
type anylist []any

// call marshals args, sends the request and, if thing is non-nil, unmarshals
// the result into thing.
func (c *Client) call(ctx context.Context, method string, args anylist, thing any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := make([]json.RawMessage, 0, len(args))
	for i := range args {
		p, err := json.Marshal(args[i])
		if err != nil {
			return err
		}
		params = append(params, p)
	}
	log.Tracef("%s: %s %s", c.endpointName(), method, params)
	b, err := c.requester.RawRequest(method, params)
	if err != nil {
		return fmt.Errorf("%s error: %w", method, err)
	}
	if thing != nil {
		if err := json.Unmarshal(b, thing); err != nil {
			return fmt.Errorf("error decoding %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) endpointName() string {
	if c.wallet == "" {
		return "node"
	}
	return "wallet " + c.wallet
}

func (c *Client) callHashGetter(ctx context.Context, method string, args anylist) (*chainhash.Hash, error) {
	var s string
	if err := c.call(ctx, method, args, &s); err != nil {
		return nil, err
	}
	return chainhash.NewHashFromStr(s)
}

// ListWallets returns the names of the loaded wallets.
func (c *Client) ListWallets(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.call(ctx, methodListWallets, nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// ListWalletDir returns the names of the wallets present in the node's wallet
// directory, loaded or not.
func (c *Client) ListWalletDir(ctx context.Context) ([]string, error) {
	var raw json.RawMessage
	if err := c.call(ctx, methodListWalletDir, nil, &raw); err != nil {
		return nil, err
	}
	res := gjson.GetBytes(raw, walletDirNames)
	names := make([]string, 0, len(res.Array()))
	for _, name := range res.Array() {
		names = append(names, name.String())
	}
	return names, nil
}

// CreateWallet creates and loads a new descriptor wallet with default options.
func (c *Client) CreateWallet(ctx context.Context, name string) error {
	return c.call(ctx, methodCreateWallet, anylist{name}, nil)
}

// LoadWallet loads a wallet from the node's wallet directory.
func (c *Client) LoadWallet(ctx context.Context, name string) error {
	return c.call(ctx, methodLoadWallet, anylist{name}, nil)
}

// UnloadWallet unloads the named wallet.
func (c *Client) UnloadWallet(ctx context.Context, name string) error {
	return c.call(ctx, methodUnloadWallet, anylist{name}, nil)
}

// GetNewAddress generates a bech32 receiving address with the given label.
func (c *Client) GetNewAddress(ctx context.Context, label string) (btcutil.Address, error) {
	var addrStr string
	if err := c.call(ctx, methodNewAddress, anylist{label, addressTypeBech32}, &addrStr); err != nil {
		return nil, err
	}
	return DecodeAddress(addrStr, c.chainParams)
}

// DecodeAddress decodes addrStr and checks that it belongs to the network of
// chainParams. btcutil.DecodeAddress alone accepts a segwit address of any
// network, since the bech32 prefix carries its own network.
func DecodeAddress(addrStr string, chainParams *chaincfg.Params) (btcutil.Address, error) {
	addr, err := btcutil.DecodeAddress(addrStr, chainParams)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addrStr, err)
	}
	if !addr.IsForNet(chainParams) {
		return nil, fmt.Errorf("address %s is not for %s", addrStr, chainParams.Name)
	}
	return addr, nil
}

// GenerateToAddress mines numBlocks blocks paying the coinbase to addr and
// returns their hashes.
func (c *Client) GenerateToAddress(ctx context.Context, numBlocks int64, addr btcutil.Address) ([]*chainhash.Hash, error) {
	var hashStrs []string
	if err := c.call(ctx, methodGenerateToAddress, anylist{numBlocks, addr.EncodeAddress()}, &hashStrs); err != nil {
		return nil, err
	}
	hashes := make([]*chainhash.Hash, 0, len(hashStrs))
	for _, s := range hashStrs {
		h, err := chainhash.NewHashFromStr(s)
		if err != nil {
			return nil, fmt.Errorf("bad block hash %q: %w", s, err)
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}

// GetBalance returns the wallet's trusted spendable balance.
func (c *Client) GetBalance(ctx context.Context) (btcutil.Amount, error) {
	var bal float64
	if err := c.call(ctx, methodGetBalance, nil, &bal); err != nil {
		return 0, err
	}
	return btcutil.NewAmount(bal)
}

// SendToAddress sends amt to addr, leaving coin selection, change and fee to
// the node's wallet.
func (c *Client) SendToAddress(ctx context.Context, addr btcutil.Address, amt btcutil.Amount) (*chainhash.Hash, error) {
	return c.callHashGetter(ctx, methodSendToAddress, anylist{addr.EncodeAddress(), amt.ToBTC()})
}

// GetBlockCount returns the height of the node's best chain.
func (c *Client) GetBlockCount(ctx context.Context) (int64, error) {
	var height int64
	if err := c.call(ctx, methodGetBlockCount, nil, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// BlockchainInfo is the subset of getblockchaininfo used here.
type BlockchainInfo struct {
	Chain         string `json:"chain"`
	Blocks        int64  `json:"blocks"`
	BestBlockHash string `json:"bestblockhash"`
}

// GetBlockchainInfo returns the node's chain name and tip.
func (c *Client) GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	info := new(BlockchainInfo)
	return info, c.call(ctx, methodGetBlockchainInfo, nil, info)
}

// WalletTransaction is the wallet's view of a transaction. Fee is nil when the
// node omits it, which it does for transactions the wallet did not send.
type WalletTransaction struct {
	TxID          string   `json:"txid"`
	Amount        float64  `json:"amount"`
	Fee           *float64 `json:"fee,omitempty"`
	Confirmations int64    `json:"confirmations"`
	BlockHash     string   `json:"blockhash,omitempty"`
	BlockHeight   int64    `json:"blockheight,omitempty"`
	Hex           string   `json:"hex"`
}

// GetTransaction returns the wallet's record of txHash.
func (c *Client) GetTransaction(ctx context.Context, txHash *chainhash.Hash) (*WalletTransaction, error) {
	tx := new(WalletTransaction)
	return tx, c.call(ctx, methodGetTransaction, anylist{txHash.String()}, tx)
}

// GetRawTransaction fetches and decodes txHash. blockHash may be nil for
// mempool transactions or nodes running with -txindex; otherwise it names the
// block containing the transaction.
func (c *Client) GetRawTransaction(ctx context.Context, txHash, blockHash *chainhash.Hash) (*wire.MsgTx, error) {
	args := anylist{txHash.String(), false}
	if blockHash != nil {
		args = append(args, blockHash.String())
	}
	var txHex string
	if err := c.call(ctx, methodGetRawTransaction, args, &txHex); err != nil {
		return nil, err
	}
	msgTx, err := msgTxFromHex(txHex)
	if err != nil {
		return nil, fmt.Errorf("error decoding transaction %s: %w", txHash, err)
	}
	return msgTx, nil
}

// AddressInfo is the subset of getaddressinfo used here.
type AddressInfo struct {
	Address string   `json:"address"`
	IsMine  bool     `json:"ismine"`
	Labels  []string `json:"labels"`
}

// GetAddressInfo reports whether the wallet owns addr.
func (c *Client) GetAddressInfo(ctx context.Context, addr string) (*AddressInfo, error) {
	ai := new(AddressInfo)
	return ai, c.call(ctx, methodGetAddressInfo, anylist{addr}, ai)
}

// msgTxFromHex creates a wire.MsgTx by deserializing the hex-encoded
// transaction.
func msgTxFromHex(txHex string) (*wire.MsgTx, error) {
	b, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, err
	}
	msgTx := wire.NewMsgTx(wire.TxVersion)
	if err := msgTx.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return msgTx, nil
}
