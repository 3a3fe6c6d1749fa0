package verify

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"Covenant/internal/ledger"
)

// Whitelist lists trusted package hashes per contract.
type Whitelist map[ledger.ContractID][]ledger.SecureHash

// Allows reports whether hash is trusted for contract.
func (w Whitelist) Allows(contract ledger.ContractID, hash ledger.SecureHash) bool {
	return slices.Contains(w[contract], hash)
}

// LoadWhitelist reads a JSON object mapping contract ids to hex hashes.
func LoadWhitelist(path string) (Whitelist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read whitelist:\n%w", err)
	}

	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse whitelist:\n%w", err)
	}

	w := make(Whitelist, len(raw))
	for contract, hashes := range raw {
		for _, s := range hashes {
			h, err := ledger.ParseSecureHash(s)
			if err != nil {
				return nil, fmt.Errorf("whitelist entry for %s:\n%w", contract, err)
			}

			w[ledger.ContractID(contract)] = append(w[ledger.ContractID(contract)], h)
		}
	}

	return w, nil
}

// Policy configures constraint evaluation.
type Policy struct {
	// AllowAlwaysAccept permits AlwaysAcceptConstraint. Off by default: the
	// constraint removes the integrity guarantee and is only for tests and bootstrap.
	AllowAlwaysAccept bool

	// Whitelist backs WhitelistConstraint. A nil whitelist trusts nothing.
	Whitelist Whitelist
}
