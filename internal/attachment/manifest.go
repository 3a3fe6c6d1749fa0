package attachment

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"Covenant/internal/ledger"
)

const (
	// ManifestName is the entry holding the package manifest.
	ManifestName = "META-INF/MANIFEST.MF"

	// DefaultEntryPoint is used when the manifest names no entry point.
	DefaultEntryPoint = "contract.wasm"

	keyVersion    = "Package-Version"
	keyContracts  = "Contracts"
	keyEntryPoint = "Entry-Point"
)

// Manifest is the metadata declared by a package.
type Manifest struct {
	Version    string              // Version is informational and never used for trust decisions
	Contracts  []ledger.ContractID // Contracts are the contract ids the package implements
	EntryPoint string              // EntryPoint names the entry holding the wasm module
}

// ParseManifest parses "Key: Value" lines. Unknown keys are ignored.
func ParseManifest(data []byte) (Manifest, error) {
	m := Manifest{EntryPoint: DefaultEntryPoint}
	seen := make(map[string]bool)

	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0

	for sc.Scan() {
		line++

		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}

		key, value, ok := strings.Cut(text, ":")
		if !ok {
			return Manifest{}, fmt.Errorf("manifest line %d: missing ':'", line)
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if seen[key] {
			return Manifest{}, fmt.Errorf("manifest line %d: duplicate key %q", line, key)
		}
		seen[key] = true

		switch key {
		case keyVersion:
			m.Version = value
		case keyEntryPoint:
			if value == "" {
				return Manifest{}, fmt.Errorf("manifest line %d: empty entry point", line)
			}
			m.EntryPoint = value
		case keyContracts:
			contracts, err := parseContracts(value)
			if err != nil {
				return Manifest{}, fmt.Errorf("manifest line %d:\n%w", line, err)
			}
			m.Contracts = contracts
		}
	}

	if err := sc.Err(); err != nil {
		return Manifest{}, fmt.Errorf("scan manifest:\n%w", err)
	}

	return m, nil
}

func parseContracts(value string) ([]ledger.ContractID, error) {
	var out []ledger.ContractID
	seen := make(map[ledger.ContractID]bool)

	for part := range strings.SplitSeq(value, ",") {
		id := ledger.ContractID(strings.TrimSpace(part))
		if id == "" {
			return nil, fmt.Errorf("empty contract id")
		}

		if seen[id] {
			return nil, fmt.Errorf("contract %s listed twice", id)
		}
		seen[id] = true

		out = append(out, id)
	}

	return out, nil
}

// Bytes renders the manifest in the format ParseManifest reads.
func (m Manifest) Bytes() []byte {
	var b strings.Builder

	if m.Version != "" {
		fmt.Fprintf(&b, "%s: %s\n", keyVersion, m.Version)
	}

	if len(m.Contracts) > 0 {
		ids := make([]string, len(m.Contracts))
		for i, c := range m.Contracts {
			ids[i] = string(c)
		}
		fmt.Fprintf(&b, "%s: %s\n", keyContracts, strings.Join(ids, ", "))
	}

	if m.EntryPoint != "" {
		fmt.Fprintf(&b, "%s: %s\n", keyEntryPoint, m.EntryPoint)
	}

	return []byte(b.String())
}
