package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"
)

func TestConfigureDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.conf")
	cfg, stop, err := configure([]string{"--config", missing})
	require.NoError(t, err)
	require.False(t, stop)

	require.Equal(t, "127.0.0.1:18443", cfg.RPCAddr)
	require.Equal(t, "alice", cfg.RPCUser)
	require.Equal(t, "password", cfg.RPCPass)
	require.Equal(t, "out.txt", cfg.OutFile)
	require.Equal(t, "info", cfg.DebugLevel)
	require.Empty(t, cfg.LogDir)
	require.False(t, cfg.StartNode)
}

func TestConfigureFileAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "regtestflow.conf")
	conf := "[Application Options]\nrpcaddr=127.0.0.1:19000\nrpcuser=bob\nout=" + filepath.Join(dir, "report.txt") + "\n"
	require.NoError(t, os.WriteFile(confPath, []byte(conf), 0600))

	cfg, _, err := configure([]string{"-C", confPath})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:19000", cfg.RPCAddr)
	require.Equal(t, "bob", cfg.RPCUser)
	require.Equal(t, "password", cfg.RPCPass)
	require.Equal(t, filepath.Join(dir, "report.txt"), cfg.OutFile)

	// Command line options win over the file.
	cfg, _, err = configure([]string{"-C", confPath, "--rpcuser", "carol", "--startnode"})
	require.NoError(t, err)
	require.Equal(t, "carol", cfg.RPCUser)
	require.Equal(t, "127.0.0.1:19000", cfg.RPCAddr)
	require.True(t, cfg.StartNode)
}

func TestConfigureScriptPath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.conf")
	cfg, _, err := configure([]string{"--config", missing})
	require.NoError(t, err)
	require.Empty(t, cfg.ScriptPath)

	t.Setenv("REGTESTFLOW_TEST_DIR", "/opt/rtf")
	cfg, _, err = configure([]string{"--config", missing, "--startnode", "--scriptpath", "$REGTESTFLOW_TEST_DIR/scripts/bitcoind_manager.sh"})
	require.NoError(t, err)
	require.True(t, cfg.StartNode)
	require.Equal(t, "/opt/rtf/scripts/bitcoind_manager.sh", cfg.ScriptPath)
}

func TestConfigureErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.conf")
	for _, args := range [][]string{
		{"--config", missing, "--rpcaddr", "localhost"},
		{"--config", missing, "--out", ""},
		{"--config", missing, "--nosuchflag"},
		{"--config", missing, "extra"},
	} {
		_, _, err := configure(args)
		require.Error(t, err, args)
	}
}

func TestConfigureHelp(t *testing.T) {
	cfg, stop, err := configure([]string{"-h"})
	require.NoError(t, err)
	require.True(t, stop)
	require.Nil(t, cfg)
}

func TestCleanAndExpandPath(t *testing.T) {
	t.Setenv("REGTESTFLOW_TEST_DIR", "/tmp/rtf")
	require.Equal(t, "/tmp/rtf/b", cleanAndExpandPath("$REGTESTFLOW_TEST_DIR/a/../b"))
	require.Equal(t, "out.txt", cleanAndExpandPath("./out.txt"))
	require.Empty(t, cleanAndExpandPath(""))
}

func TestParseAndSetDebugLevels(t *testing.T) {
	defer setLogLevels(defaultDebugLevel)

	require.NoError(t, parseAndSetDebugLevels("debug"))
	for _, logger := range subsystemLoggers {
		require.Equal(t, btclog.LevelDebug, logger.Level())
	}

	require.NoError(t, parseAndSetDebugLevels("FLOW=trace,RPCC=off"))
	require.Equal(t, btclog.LevelTrace, flowLog.Level())
	require.Equal(t, btclog.LevelOff, rpccLog.Level())
	require.Equal(t, btclog.LevelDebug, nodeLog.Level())

	require.Error(t, parseAndSetDebugLevels("loud"))
	require.Error(t, parseAndSetDebugLevels("NOPE=info"))
	require.Error(t, parseAndSetDebugLevels("FLOW=loud"))
	require.Error(t, parseAndSetDebugLevels("FLOW,info"))
}
