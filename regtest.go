package regtest

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/neverDefined/go-regtest-flow/internal/node"
	"github.com/testcontainers/testcontainers-go"
)

// ---------------------------------------------------------------
//  Bitcoin Core Node Management
// ---------------------------------------------------------------

const (
	readyAttempts = 60
	readyDelay    = 500 * time.Millisecond
)

var (
	// bitcoindMutex serializes runs of the manager script so concurrent
	// start/stop calls cannot interleave.
	bitcoindMutex sync.Mutex

	// scriptPath is scripts/bitcoind_manager.sh under the module root, found
	// by walking up from the working directory to go.mod.
	scriptPath string
)

func init() {
	workDir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(workDir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(workDir)
		if parent == workDir {
			// Reached root, fallback to current directory
			break
		}
		workDir = parent
	}
	scriptPath = filepath.Join(workDir, "scripts", "bitcoind_manager.sh")
}

// runScript runs the manager script with command, passing the node settings
// in the environment.
func runScript(cfg *Config, command string) (string, error) {
	bitcoindMutex.Lock()
	defer bitcoindMutex.Unlock()

	script := scriptPath
	if cfg.ScriptPath != "" {
		script = cfg.ScriptPath
	}
	if _, err := os.Stat(script); os.IsNotExist(err) {
		return "", fmt.Errorf("bitcoind manager script not found at: %s", script)
	}

	host, port, err := net.SplitHostPort(cfg.Host)
	if err != nil {
		return "", fmt.Errorf("invalid RPC host %q: %w", cfg.Host, err)
	}

	cmd := exec.Command("bash", script, command)
	cmd.Env = append(os.Environ(),
		"REGTEST_RPC_HOST="+host,
		"REGTEST_RPC_PORT="+port,
		"REGTEST_RPC_USER="+cfg.User,
		"REGTEST_RPC_PASS="+cfg.Pass,
		"REGTEST_DATADIR="+cfg.DataDir,
		"REGTEST_EXTRA_ARGS="+strings.Join(cfg.ExtraArgs, " "),
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("failed to %s bitcoind (script: %s): %s", command, script, string(output))
	}
	return string(output), nil
}

// StartBitcoinRegtest starts a regtest node with the package configuration
// using the bitcoind manager script. It does not wait for the RPC server.
//
// Example:
//
//	err := StartBitcoinRegtest()
//	if err != nil {
//	    log.Fatalf("Failed to start Bitcoin node: %v", err)
//	}
//	defer StopBitcoinRegtest() // Always clean up
func StartBitcoinRegtest() error {
	_, err := runScript(GetConfig(), "start")
	return err
}

// StopBitcoinRegtest stops the node started by StartBitcoinRegtest and
// removes its data directory.
func StopBitcoinRegtest() error {
	_, err := runScript(GetConfig(), "stop")
	return err
}

// IsBitcoindRunning reports whether the node of the package configuration is
// running.
func IsBitcoindRunning() (bool, error) {
	return isRunning(GetConfig())
}

func isRunning(cfg *Config) (bool, error) {
	output, err := runScript(cfg, "status")
	if err != nil {
		return false, fmt.Errorf("failed to check bitcoind status: %s", output)
	}
	return strings.Contains(output, "is running"), nil
}

// ---------------------------------------------------------------
//  Regtest instances
// ---------------------------------------------------------------

// Regtest manages one regtest node and the RPC clients connected to it. All
// methods are safe for concurrent use.
type Regtest struct {
	mu        sync.Mutex
	cfg       *Config
	client    *rpcclient.Client
	base      *node.Client
	wallets   map[string]*node.Client
	container testcontainers.Container
	running   bool
}

// New creates an instance for cfg, or for the package configuration when cfg
// is nil. The node is not started.
func New(cfg *Config) (*Regtest, error) {
	if cfg == nil {
		cfg = GetConfig()
	} else {
		cfg = cfg.copy()
	}
	if _, _, err := net.SplitHostPort(cfg.Host); err != nil {
		return nil, fmt.Errorf("invalid RPC host %q: %w", cfg.Host, err)
	}
	return &Regtest{
		cfg:     cfg,
		wallets: make(map[string]*node.Client),
	}, nil
}

// Config returns a copy of the instance configuration.
func (rt *Regtest) Config() *Config {
	return rt.cfg.copy()
}

// Start launches the node with the manager script and waits until its RPC
// server answers.
func (rt *Regtest) Start() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.running {
		return nil
	}

	if _, err := runScript(rt.cfg, "start"); err != nil {
		return err
	}
	if err := rt.connect(context.Background()); err != nil {
		runScript(rt.cfg, "stop")
		return err
	}
	rt.running = true
	log.Infof("Regtest node running at %s", rt.cfg.Host)
	return nil
}

// connect creates the RPC client and waits for the node to answer.
func (rt *Regtest) connect(ctx context.Context) error {
	client, err := rpcclient.New(rt.cfg.nodeConfig().ConnConfig(""), nil)
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}

	err = retry.Do(func() error {
		_, err := client.GetBlockCount()
		return err
	},
		retry.Context(ctx),
		retry.Attempts(readyAttempts),
		retry.Delay(readyDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Tracef("Waiting for RPC at %s (attempt %d): %v", rt.cfg.Host, n+1, err)
		}),
	)
	if err != nil {
		client.Shutdown()
		return fmt.Errorf("node at %s did not become ready: %w", rt.cfg.Host, err)
	}

	rt.client = client
	rt.base = node.New(client, "", &chaincfg.RegressionNetParams)
	return nil
}

// Stop shuts down the RPC clients and stops the node. Nodes started by the
// manager script have their data directory removed.
func (rt *Regtest) Stop() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for name, wc := range rt.wallets {
		wc.Shutdown()
		delete(rt.wallets, name)
	}
	if rt.client != nil {
		rt.client.Shutdown()
		rt.client = nil
		rt.base = nil
	}
	if !rt.running {
		return nil
	}
	rt.running = false

	if rt.container != nil {
		err := rt.container.Terminate(context.Background())
		rt.container = nil
		return err
	}
	_, err := runScript(rt.cfg, "stop")
	return err
}

// IsRunning reports whether the instance's node is up.
func (rt *Regtest) IsRunning() (bool, error) {
	rt.mu.Lock()
	container := rt.container
	running := rt.running
	rt.mu.Unlock()

	if container != nil {
		state, err := container.State(context.Background())
		if err != nil {
			return false, err
		}
		return state.Running, nil
	}
	if !running {
		return false, nil
	}
	return isRunning(rt.cfg)
}

// Client returns the RPC client of the base endpoint, or nil before Start.
func (rt *Regtest) Client() *rpcclient.Client {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.client
}

// Node returns the node client of the base endpoint, or nil before Start.
func (rt *Regtest) Node() *node.Client {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.base
}

// WalletClient returns a client scoped to the named wallet. Clients are cached
// until the wallet is unloaded or the instance stopped.
func (rt *Regtest) WalletClient(name string) (*node.Client, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if wc, found := rt.wallets[name]; found {
		return wc, nil
	}
	wc, err := node.Dial(rt.cfg.nodeConfig(), name, &chaincfg.RegressionNetParams)
	if err != nil {
		return nil, err
	}
	rt.wallets[name] = wc
	return wc, nil
}

// HealthCheck verifies that the node answers RPC requests.
func (rt *Regtest) HealthCheck() error {
	client := rt.Client()
	if client == nil {
		return fmt.Errorf("regtest node at %s is not started", rt.cfg.Host)
	}
	if _, err := client.GetBlockCount(); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
