package node

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/rpcclient"
)

// Config is the node's RPC endpoint and credentials.
type Config struct {
	// Host is host:port of the node's RPC server. An http:// prefix is
	// tolerated.
	Host string
	User string
	Pass string
}

// ConnConfig builds the rpcclient configuration for the base endpoint, or for
// the endpoint of the named wallet when wallet is not empty.
func (cfg *Config) ConnConfig(wallet string) *rpcclient.ConnConfig {
	host := strings.TrimSuffix(strings.TrimPrefix(cfg.Host, "http://"), "/")
	if wallet != "" {
		host += "/wallet/" + url.PathEscape(wallet)
	}
	return &rpcclient.ConnConfig{
		Host:         host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
}

// Dial creates a Client for the base endpoint (wallet == "") or a wallet
// endpoint. In HTTP POST mode no connection is made until the first request.
func Dial(cfg *Config, wallet string, chainParams *chaincfg.Params) (*Client, error) {
	cl, err := rpcclient.New(cfg.ConnConfig(wallet), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating RPC client for %q: %w", cfg.Host, err)
	}
	c := New(cl, wallet, chainParams)
	c.shutdown = cl.Shutdown
	log.Debugf("Created RPC client for %s at %s", c.endpointName(), cfg.Host)
	return c, nil
}
