package node

import (
	"context"
	"slices"
)

// WalletManager lists, creates and loads wallets on a node's base endpoint.
type WalletManager interface {
	ListWallets(ctx context.Context) ([]string, error)
	ListWalletDir(ctx context.Context) ([]string, error)
	CreateWallet(ctx context.Context, name string) error
	LoadWallet(ctx context.Context, name string) error
}

// Provision describes what EnsureWallets did for one wallet.
type Provision int

const (
	// WalletReady means the wallet was already loaded.
	WalletReady Provision = iota
	// WalletLoaded means the wallet existed on disk and was loaded.
	WalletLoaded
	// WalletCreated means the wallet did not exist and was created.
	WalletCreated
)

func (p Provision) String() string {
	switch p {
	case WalletReady:
		return "already loaded"
	case WalletLoaded:
		return "loaded"
	case WalletCreated:
		return "created"
	}
	return "unknown"
}

// EnsureWallets makes every named wallet available, creating only those the
// node has never seen. The returned slice is parallel to names.
func EnsureWallets(ctx context.Context, wm WalletManager, names ...string) ([]Provision, error) {
	loaded, err := wm.ListWallets(ctx)
	if err != nil {
		return nil, err
	}

	var onDisk []string
	var listedDir bool
	provisions := make([]Provision, len(names))
	for i, name := range names {
		if slices.Contains(loaded, name) {
			provisions[i] = WalletReady
			continue
		}
		if !listedDir {
			if onDisk, err = wm.ListWalletDir(ctx); err != nil {
				return nil, err
			}
			listedDir = true
		}
		if slices.Contains(onDisk, name) {
			if err := wm.LoadWallet(ctx, name); err != nil {
				return nil, err
			}
			provisions[i] = WalletLoaded
		} else {
			if err := wm.CreateWallet(ctx, name); err != nil {
				return nil, err
			}
			provisions[i] = WalletCreated
		}
		loaded = append(loaded, name)
		log.Debugf("Wallet %q %s", name, provisions[i])
	}
	return provisions, nil
}
