package flow

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/neverDefined/go-regtest-flow/internal/node"
)

// Output is a decoded transaction output.
type Output struct {
	Index   int
	Address btcutil.Address
	Value   btcutil.Amount
}

// outputAddress resolves a locking script to the single address it pays.
func outputAddress(pkScript []byte, chainParams *chaincfg.Params) (btcutil.Address, error) {
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, chainParams)
	if err != nil {
		return nil, err
	}
	if len(addrs) != 1 {
		return nil, fmt.Errorf("%s script pays %d addresses", class, len(addrs))
	}
	return addrs[0], nil
}

// SplitOutputs separates a two-output payment into the output paying
// recipient and the change output. The change output is recognized only by
// not paying recipient, so any other output count is refused.
func SplitOutputs(msgTx *wire.MsgTx, recipient btcutil.Address, chainParams *chaincfg.Params) (payment, change *Output, err error) {
	if len(msgTx.TxOut) != 2 {
		return nil, nil, newError(ErrUnexpectedOutputCount, "transaction %s has %d outputs, expected 2",
			msgTx.TxHash(), len(msgTx.TxOut))
	}

	for i, txOut := range msgTx.TxOut {
		addr, err := outputAddress(txOut.PkScript, chainParams)
		if err != nil {
			return nil, nil, newError(ErrScriptDecode, "output %d of %s: %v", i, msgTx.TxHash(), err)
		}
		out := &Output{
			Index:   i,
			Address: addr,
			Value:   btcutil.Amount(txOut.Value),
		}
		switch {
		case payment == nil && addr.EncodeAddress() == recipient.EncodeAddress():
			payment = out
		case change == nil && addr.EncodeAddress() != recipient.EncodeAddress():
			change = out
		}
	}

	if change == nil {
		return nil, nil, newError(ErrChangeNotFound, "every output of %s pays %s", msgTx.TxHash(), recipient)
	}
	if payment == nil {
		return nil, nil, newError(ErrPaymentNotFound, "no output of %s pays %s", msgTx.TxHash(), recipient)
	}
	return payment, change, nil
}

// AbsFee returns the magnitude of the fee the wallet reports for a
// transaction it sent. Wallets report sent fees as negative values.
func AbsFee(wtx *node.WalletTransaction) (btcutil.Amount, error) {
	if wtx.Fee == nil {
		return 0, newError(ErrFeeMissing, "wallet transaction %s", wtx.TxID)
	}
	return btcutil.NewAmount(math.Abs(*wtx.Fee))
}
