package regtest

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultImage is the Bitcoin Core image StartContainer runs unless the
	// config names another.
	DefaultImage = "bitcoin/bitcoin:28.1"

	containerRPCPort = "18443/tcp"
	containerStartup = 2 * time.Minute
)

// StartContainer runs a regtest bitcoind in a docker container and returns a
// started instance connected to it. The config's Host is replaced by the
// container's mapped RPC address; DataDir and ScriptPath are unused. Stop
// terminates the container.
func StartContainer(ctx context.Context, cfg *Config) (*Regtest, error) {
	if cfg == nil {
		cfg = GetConfig()
	} else {
		cfg = cfg.copy()
	}
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}

	cmd := append([]string{
		"-regtest",
		"-server",
		"-printtoconsole",
		"-rpcbind=0.0.0.0",
		"-rpcallowip=0.0.0.0/0",
		"-rpcuser=" + cfg.User,
		"-rpcpassword=" + cfg.Pass,
		"-fallbackfee=0.0002",
	}, cfg.ExtraArgs...)

	req := testcontainers.ContainerRequest{
		Image:        cfg.Image,
		Entrypoint:   []string{"bitcoind"},
		Cmd:          cmd,
		ExposedPorts: []string{containerRPCPort},
		WaitingFor:   wait.ForLog("init message: Done loading").WithStartupTimeout(containerStartup),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start %s container: %w", cfg.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, err
	}
	port, err := container.MappedPort(ctx, containerRPCPort)
	if err != nil {
		container.Terminate(ctx)
		return nil, err
	}
	cfg.Host = net.JoinHostPort(host, port.Port())

	rt, err := New(cfg)
	if err != nil {
		container.Terminate(ctx)
		return nil, err
	}
	if err := rt.connect(ctx); err != nil {
		container.Terminate(ctx)
		return nil, err
	}
	rt.container = container
	rt.running = true
	log.Infof("Regtest container %s running at %s", cfg.Image, cfg.Host)
	return rt, nil
}
