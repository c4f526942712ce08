/*
Package regtest controls local Bitcoin Core regtest nodes for tests and for the
regtestflow demonstration.

A node is either launched on the host by scripts/bitcoind_manager.sh, which needs
bitcoind in PATH, or run in docker through testcontainers. In both cases the
returned Regtest holds an RPC client for the base endpoint and caches clients
for wallet endpoints (<host>/wallet/<name>).

Quick Start

	rt, err := regtest.New(nil)
	if err != nil {
		log.Fatal(err)
	}
	if err := rt.Start(); err != nil {
		log.Fatal(err)
	}
	defer rt.Stop()

	rt.EnsureWallet("Miner")
	addr, _ := rt.GenerateBech32("Miner")
	rt.Warp(101, addr) // first coinbase is now spendable

	height, _ := rt.GetBlockCount()
	fmt.Printf("Block height: %d\n", height)

# Configuration

The package configuration defaults to:
  - RPC host: 127.0.0.1:18443
  - RPC user: user
  - RPC pass: pass
  - Data directory: ./bitcoind_regtest

SetConfig and ResetConfig change it for StartBitcoinRegtest, StopBitcoinRegtest,
IsBitcoindRunning, DefaultRegtestConfig and New(nil). Instances created with an
explicit Config ignore it.

# Docker

	rt, err := regtest.StartContainer(ctx, nil)
	if err != nil {
		return err
	}
	defer rt.Stop()

The container's RPC port is mapped to a free host port, so any number of
containers can run side by side.

# Multiple Instances

Script-managed nodes need distinct RPC ports and data directories. bitcoind also
binds a P2P port, so leave room between the RPC ports:

	rt1, _ := regtest.New(&regtest.Config{Host: "127.0.0.1:19000", User: "user", Pass: "pass", DataDir: "./regtest_1"})
	rt2, _ := regtest.New(&regtest.Config{Host: "127.0.0.1:19100", User: "user", Pass: "pass", DataDir: "./regtest_2"})

# Thread Safety

All Regtest methods are safe for concurrent use. Runs of the manager script are
serialized across the package.
*/
package regtest
