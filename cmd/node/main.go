package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"Covenant/internal/logger"
	"Covenant/internal/wire"
)

func main() {
	logger.Init()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	cfg, err := parseFlags()
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	if cfg.DumpPath != "" {
		return dump(os.Stdout, cfg.DumpPath)
	}

	cfg.PrivateKey, err = loadOrGenerateKey(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	node, err := NewNode(cfg)
	if err != nil {
		return fmt.Errorf("create node:\n%w", err)
	}

	printStartupInfo(cfg)

	return node.Run()
}

// dump prints an encoded transaction as a tree. Payload type names come from
// the name table of a signed envelope; bare transactions show descriptors.
func dump(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s:\n%w", path, err)
	}

	out, err := wire.Dump(data, nil)
	if err != nil {
		return fmt.Errorf("dump:\n%w", err)
	}

	_, err = io.WriteString(w, out)

	return err
}

// printStartupInfo displays node configuration at startup.
func printStartupInfo(cfg *Config) {
	pubKey := cfg.PrivateKey.Public().(ed25519.PublicKey)

	logger.Info("starting Covenant node",
		"pubkey", hex.EncodeToString(pubKey),
		"http", cfg.HTTPAddress,
		"quic", cfg.QUICAddress,
		"data", cfg.DataPath,
		"workers", cfg.Workers,
		"peers", len(cfg.Peers),
	)

	if cfg.AllowAlwaysAccept {
		logger.Warn("always-accept constraints are enabled")
	}

	if !cfg.RequireSignatures {
		logger.Warn("unsigned transactions are accepted")
	}
}
