package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"Covenant/internal/podvm"
	"Covenant/internal/vault"
)

// Config holds the node configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string

	// QUICAddress is the attachment service listen address. Empty disables it.
	QUICAddress string

	// KeyPath is the path to the Ed25519 private key file.
	KeyPath string

	// PrivateKey is the node's Ed25519 network identity.
	PrivateKey ed25519.PrivateKey

	// LogLevel is the minimum log level.
	LogLevel string

	// Workers is the number of concurrent verifications.
	Workers int

	// GasLimit is the sandbox gas budget per contract call.
	GasLimit uint64

	// CacheMB is the attachment cache size in megabytes.
	CacheMB int

	// AllowAlwaysAccept permits AlwaysAcceptConstraint.
	AllowAlwaysAccept bool

	// RequireSignatures rejects bare transactions whose commands name signers.
	RequireSignatures bool

	// WhitelistPath is a JSON file of trusted package hashes per contract.
	WhitelistPath string

	// Peers are remote nodes asked for missing packages, as addr or addr@hexkey.
	Peers []Peer

	// Trusted restricts which nodes may fetch from this one. Empty allows any.
	Trusted []ed25519.PublicKey

	// DumpPath, when set, prints the encoded transaction in the file and exits.
	DumpPath string
}

// Peer is a remote attachment service.
type Peer struct {
	Addr string            // Addr is the QUIC address
	Key  ed25519.PublicKey // Key pins the remote identity; nil accepts any
}

// parseFlags parses command-line flags into Config.
func parseFlags() (*Config, error) {
	cfg := &Config{}

	var peers, trusted string

	flag.StringVar(&cfg.DataPath, "data", "./data", "Data directory path")
	flag.StringVar(&cfg.HTTPAddress, "http", ":8080", "HTTP API address")
	flag.StringVar(&cfg.QUICAddress, "quic", ":9400", "QUIC attachment service address (empty to disable)")
	flag.StringVar(&cfg.KeyPath, "key", "", "Ed25519 private key path (generates new if missing)")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.IntVar(&cfg.Workers, "workers", runtime.NumCPU(), "Concurrent verifications")
	flag.Uint64Var(&cfg.GasLimit, "gas-limit", podvm.DefaultGasLimit, "Gas budget per contract call")
	flag.IntVar(&cfg.CacheMB, "cache-mb", vault.DefaultCacheSize, "Attachment cache size in MB")
	flag.BoolVar(&cfg.AllowAlwaysAccept, "allow-always-accept", false, "Accept AlwaysAcceptConstraint (tests and bootstrap only)")
	flag.BoolVar(&cfg.RequireSignatures, "require-signatures", true, "Reject unsigned transactions whose commands name signers")
	flag.StringVar(&cfg.WhitelistPath, "whitelist", "", "JSON whitelist of package hashes per contract")
	flag.StringVar(&peers, "peers", "", "Comma-separated remote attachment services (addr or addr@hexkey)")
	flag.StringVar(&trusted, "trusted", "", "Comma-separated hex keys allowed to fetch from this node")
	flag.StringVar(&cfg.DumpPath, "dump", "", "Print the encoded transaction in this file and exit")
	flag.Parse()

	var err error

	if cfg.Peers, err = parsePeers(peers); err != nil {
		return nil, err
	}

	if cfg.Trusted, err = parseKeys(trusted); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parsePeers parses "addr[@hexkey],..." entries.
func parsePeers(s string) ([]Peer, error) {
	var peers []Peer

	for _, entry := range splitList(s) {
		addr, keyHex, pinned := strings.Cut(entry, "@")

		p := Peer{Addr: addr}
		if pinned {
			key, err := parseKey(keyHex)
			if err != nil {
				return nil, fmt.Errorf("peer %s:\n%w", addr, err)
			}
			p.Key = key
		}

		peers = append(peers, p)
	}

	return peers, nil
}

// parseKeys parses a comma-separated list of hex public keys.
func parseKeys(s string) ([]ed25519.PublicKey, error) {
	var keys []ed25519.PublicKey

	for _, entry := range splitList(s) {
		key, err := parseKey(entry)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, nil
}

func parseKey(s string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 public key %q", s)
	}

	return ed25519.PublicKey(b), nil
}

func splitList(s string) []string {
	var out []string

	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

// loadOrGenerateKey loads the private key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (ed25519.PrivateKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// generateNewKey creates a new Ed25519 private key.
func generateNewKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return priv, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := generateNewKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return priv, nil
}
