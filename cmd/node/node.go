package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"Covenant/internal/api"
	"Covenant/internal/ledger"
	"Covenant/internal/logger"
	"Covenant/internal/metrics"
	"Covenant/internal/network"
	"Covenant/internal/podvm"
	"Covenant/internal/storage"
	"Covenant/internal/vault"
	"Covenant/internal/verify"
	"Covenant/internal/wire"
)

// Node represents a running Covenant node.
type Node struct {
	cfg         *Config
	metrics     *metrics.Metrics
	storage     *storage.Storage
	attachments *vault.Attachments
	states      *vault.States
	codec       *wire.Codec
	sandbox     *podvm.Pool
	pool        *verify.Pool
	service     *network.Server
	fetchers    []*network.Fetcher
	api         *api.Server
}

// NewNode creates and initializes a new node.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg, metrics: metrics.New()}

	steps := []func() error{
		n.initStorage,
		n.initSandbox,
		n.initVerifier,
		n.initNetwork,
	}

	for _, step := range steps {
		if err := step(); err != nil {
			n.Close()
			return nil, err
		}
	}

	return n, nil
}

// initStorage opens the Pebble store and the vaults on top of it.
func (n *Node) initStorage() error {
	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.Open(filepath.Join(n.cfg.DataPath, "db"), storage.Options{})
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}
	n.storage = db

	n.attachments, err = vault.NewAttachments(db, n.cfg.CacheMB, n.metrics)
	if err != nil {
		return fmt.Errorf("init attachments:\n%w", err)
	}

	// Payloads are carried opaquely to sandboxed contracts.
	n.codec = &wire.Codec{Registry: wire.NewRegistry(), Lenient: true}
	n.states = vault.NewStates(db, n.codec)

	return nil
}

// initSandbox creates the wasm runtime for packaged contracts.
func (n *Node) initSandbox() error {
	pool, err := podvm.New(context.Background(), podvm.Config{GasLimit: n.cfg.GasLimit}, n.codec)
	if err != nil {
		return fmt.Errorf("init sandbox:\n%w", err)
	}

	n.sandbox = pool

	return nil
}

// initVerifier builds the verification pipeline and its worker pool.
func (n *Node) initVerifier() error {
	policy := verify.Policy{AllowAlwaysAccept: n.cfg.AllowAlwaysAccept}

	if n.cfg.WhitelistPath != "" {
		w, err := verify.LoadWhitelist(n.cfg.WhitelistPath)
		if err != nil {
			return fmt.Errorf("load whitelist:\n%w", err)
		}
		policy.Whitelist = w

		logger.Info("whitelist loaded", "contracts", len(w))
	}

	n.pool = verify.NewPool(verify.New(policy, n.sandbox, n.metrics), n.cfg.Workers)

	return nil
}

// initNetwork creates the attachment service and remote fetchers.
func (n *Node) initNetwork() error {
	netCfg := network.Config{
		PrivateKey: n.cfg.PrivateKey,
		ListenAddr: n.cfg.QUICAddress,
		Trusted:    n.cfg.Trusted,
	}

	if n.cfg.QUICAddress != "" {
		srv, err := network.NewServer(netCfg, n.attachments, n.metrics)
		if err != nil {
			return fmt.Errorf("init attachment service:\n%w", err)
		}
		n.service = srv
	}

	for _, p := range n.cfg.Peers {
		f, err := network.NewFetcher(netCfg, p.Addr, p.Key)
		if err != nil {
			return fmt.Errorf("init fetcher for %s:\n%w", p.Addr, err)
		}
		n.fetchers = append(n.fetchers, f)
	}

	return nil
}

// fetcher returns the attachment lookup used during resolution.
func (n *Node) fetcher() ledger.AttachmentFetcher {
	if len(n.fetchers) == 0 {
		return n.attachments
	}

	remotes := make([]ledger.AttachmentFetcher, len(n.fetchers))
	for i, f := range n.fetchers {
		remotes[i] = f
	}

	return &network.Cascade{Local: n.attachments, Store: n.attachments, Remotes: remotes, Spread: true}
}

// Run starts the services and blocks until shutdown.
func (n *Node) Run() error {
	if n.service != nil {
		if err := n.service.Start(); err != nil {
			n.Close()
			return fmt.Errorf("start attachment service:\n%w", err)
		}
	}

	n.api = api.New(n.cfg.HTTPAddress, api.Deps{
		Codec:       n.codec,
		Verifier:    n.pool,
		Attachments: n.attachments,
		Fetcher:     n.fetcher(),
		States:      n.states,
		Metrics:     n.metrics,

		RequireSignatures: n.cfg.RequireSignatures,
	})

	if err := n.api.Start(); err != nil {
		n.Close()
		return fmt.Errorf("start api:\n%w", err)
	}

	return n.waitForShutdown()
}

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return n.Close()
}

// Close shuts down all node components gracefully.
func (n *Node) Close() error {
	if n.api != nil {
		n.api.Stop()
	}

	if n.service != nil {
		n.service.Close()
	}

	for _, f := range n.fetchers {
		f.Close()
	}

	if n.pool != nil {
		n.pool.Close()
	}

	if n.sandbox != nil {
		n.sandbox.Close(context.Background())
	}

	if n.attachments != nil {
		n.attachments.Close()
	}

	if n.storage != nil {
		n.storage.Close()
	}

	return nil
}
