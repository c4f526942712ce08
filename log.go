package regtest

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger sets the logger used by the harness.
func UseLogger(logger btclog.Logger) {
	log = logger
}
