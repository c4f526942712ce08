package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultRPCAddr        = "127.0.0.1:18443"
	defaultRPCUser        = "alice"
	defaultRPCPass        = "password"
	defaultOutFile        = "out.txt"
	defaultConfigFilename = "regtestflow.conf"
	defaultLogFilename    = "regtestflow.log"
	defaultDebugLevel     = "info"
	defaultDataDir        = "./bitcoind_regtest"
	maxLogRolls           = 8
)

var (
	appDir            = btcutil.AppDataDir("regtestflow", false)
	defaultConfigPath = filepath.Join(appDir, defaultConfigFilename)
)

// config defines the configuration options for regtestflow.
type config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	Config      string `short:"C" long:"config" description:"Path to configuration file"`
	RPCAddr     string `short:"a" long:"rpcaddr" description:"Node RPC server host:port"`
	RPCUser     string `short:"u" long:"rpcuser" description:"Node RPC username"`
	RPCPass     string `short:"P" long:"rpcpass" default-mask:"-" description:"Node RPC password"`
	OutFile     string `short:"o" long:"out" description:"File the transaction details are written to"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical, off}, or <subsystem>=<level>,<subsystem2>=<level>,..."`
	LogDir      string `long:"logdir" description:"Also write rotated logs to this directory"`
	StartNode   bool   `long:"startnode" description:"Start a local regtest bitcoind for the run and stop it afterwards"`
	DataDir     string `long:"datadir" description:"Data directory of the node started by --startnode"`
	ScriptPath  string `long:"scriptpath" description:"Path to bitcoind_manager.sh for --startnode (default: scripts/ under the enclosing module)"`
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// configure parses the command line options and a config file if present.
// Options given on the command line take precedence over the file. The bool is
// true if there is nothing further to do (help or version was printed).
func configure(args []string) (*config, bool, error) {
	cfg := &config{
		Config:     defaultConfigPath,
		RPCAddr:    defaultRPCAddr,
		RPCUser:    defaultRPCUser,
		RPCPass:    defaultRPCPass,
		OutFile:    defaultOutFile,
		DebugLevel: defaultDebugLevel,
		DataDir:    defaultDataDir,
	}

	// Pre-parse for the config file path, help and version.
	preCfg := *cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			fmt.Println(err)
			return nil, true, nil
		}
		return nil, false, err
	}

	if preCfg.ShowVersion {
		fmt.Printf("regtestflow version %s (Go version %s %s/%s)\n",
			version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return nil, true, nil
	}

	parser := flags.NewParser(cfg, flags.Default)

	configPath := cleanAndExpandPath(preCfg.Config)
	if fileExists(configPath) {
		// Load additional config from file.
		err = flags.NewIniParser(parser).ParseFile(configPath)
		if err != nil {
			return nil, false, fmt.Errorf("error parsing config file %s: %w", configPath, err)
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		return nil, false, err
	}
	if len(remainingArgs) > 0 {
		return nil, false, fmt.Errorf("unexpected arguments: %v", remainingArgs)
	}

	if _, _, err := net.SplitHostPort(cfg.RPCAddr); err != nil {
		return nil, false, fmt.Errorf("invalid rpcaddr %q: %w", cfg.RPCAddr, err)
	}
	if cfg.OutFile == "" {
		return nil, false, errors.New("no output file specified")
	}

	cfg.Config = configPath
	cfg.OutFile = cleanAndExpandPath(cfg.OutFile)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.ScriptPath = cleanAndExpandPath(cfg.ScriptPath)

	return cfg, false, nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when no path is given.
	if path == "" {
		return path
	}

	path = os.ExpandEnv(path)

	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser
	// to otheruser's home directory.
	path = path[1:]

	userName := ""
	if i := strings.IndexRune(path, os.PathSeparator); i != -1 {
		userName = path[:i]
		path = path[i:]
	}

	homeDir := ""
	var u *user.User
	var err error
	if userName == "" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(userName)
	}
	if err == nil {
		homeDir = u.HomeDir
	}
	// Fallback to CWD if user lookup fails or user has no home directory.
	if homeDir == "" {
		homeDir = "."
	}

	return filepath.Join(homeDir, path)
}
