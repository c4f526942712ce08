package regtest

import (
	"slices"
	"sync"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/neverDefined/go-regtest-flow/internal/node"
)

// Config describes a regtest node: where its RPC server listens, its
// credentials and how to launch it.
type Config struct {
	// Host is the RPC host:port.
	Host string
	// User and Pass are the RPC credentials.
	User string
	Pass string
	// DataDir is the bitcoind data directory used by the manager script.
	DataDir string
	// ExtraArgs are appended to the bitcoind command line.
	ExtraArgs []string
	// Image is the docker image run by StartContainer.
	Image string
	// ScriptPath overrides the discovered scripts/bitcoind_manager.sh.
	ScriptPath string
}

var (
	configMtx sync.RWMutex
	config    *Config
)

// DefaultConfig returns the settings of a stock local regtest node.
func DefaultConfig() *Config {
	return &Config{
		Host:    "127.0.0.1:18443",
		User:    "user",
		Pass:    "pass",
		DataDir: "./bitcoind_regtest",
		Image:   DefaultImage,
	}
}

// copy returns a deep copy of cfg.
func (cfg *Config) copy() *Config {
	c := *cfg
	c.ExtraArgs = slices.Clone(cfg.ExtraArgs)
	return &c
}

// GetConfig returns a copy of the package configuration, which is the default
// configuration unless SetConfig was called.
func GetConfig() *Config {
	configMtx.RLock()
	defer configMtx.RUnlock()
	if config == nil {
		return DefaultConfig()
	}
	return config.copy()
}

// SetConfig replaces the package configuration.
func SetConfig(cfg *Config) {
	configMtx.Lock()
	config = cfg.copy()
	configMtx.Unlock()
}

// ResetConfig restores the default package configuration.
func ResetConfig() {
	configMtx.Lock()
	config = nil
	configMtx.Unlock()
}

// nodeConfig is the endpoint and credentials for the node package.
func (cfg *Config) nodeConfig() *node.Config {
	return &node.Config{
		Host: cfg.Host,
		User: cfg.User,
		Pass: cfg.Pass,
	}
}

// DefaultRegtestConfig returns the RPC connection config for the node
// described by the package configuration: HTTP POST mode, no TLS.
func DefaultRegtestConfig() *rpcclient.ConnConfig {
	return GetConfig().nodeConfig().ConnConfig("")
}
