//go:build docker

package regtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartContainer(t *testing.T) {
	ctx := context.Background()

	rt, err := StartContainer(ctx, nil)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, rt.Stop())
	}()

	require.NotEqual(t, DefaultConfig().Host, rt.Config().Host)
	require.NoError(t, rt.HealthCheck())

	running, err := rt.IsRunning()
	require.NoError(t, err)
	require.True(t, running)

	require.NoError(t, rt.EnsureWallet("Miner"))
	addr, err := rt.GenerateBech32("Miner")
	require.NoError(t, err)

	_, err = rt.Warp(101, addr)
	require.NoError(t, err)

	height, err := rt.GetBlockCount()
	require.NoError(t, err)
	require.EqualValues(t, 101, height)
}
