package ledger

import (
	"fmt"
	"slices"
	"strings"
)

// ConstraintKind enumerates the attachment constraint variants.
// Kinds are ordered by strength: a larger value is a stronger guarantee.
type ConstraintKind uint8

const (
	// KindAlwaysAccept places no restriction on the code package.
	KindAlwaysAccept ConstraintKind = iota

	// KindWhitelist accepts packages on the zone whitelist for the contract.
	KindWhitelist

	// KindHash accepts exactly one package content hash.
	KindHash

	// KindSigners accepts packages signed by a required key set.
	KindSigners
)

// String returns the kind name.
func (k ConstraintKind) String() string {
	switch k {
	case KindAlwaysAccept:
		return "always-accept"
	case KindWhitelist:
		return "whitelist"
	case KindHash:
		return "hash"
	case KindSigners:
		return "signers"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// AttachmentConstraint binds a state to acceptable code packages.
// The set of implementations is closed to this package.
type AttachmentConstraint interface {
	Kind() ConstraintKind
	String() string
	isAttachmentConstraint()
}

// HashConstraint requires the package content hash to equal Expected.
type HashConstraint struct {
	Expected SecureHash
}

// SignersConstraint requires valid package signatures from every key in Signers.
type SignersConstraint struct {
	Signers []PublicKey
}

// WhitelistConstraint requires the package hash to be on the zone whitelist.
type WhitelistConstraint struct{}

// AlwaysAcceptConstraint accepts any package. Only for tests and bootstrap.
type AlwaysAcceptConstraint struct{}

func (HashConstraint) Kind() ConstraintKind         { return KindHash }
func (SignersConstraint) Kind() ConstraintKind      { return KindSigners }
func (WhitelistConstraint) Kind() ConstraintKind    { return KindWhitelist }
func (AlwaysAcceptConstraint) Kind() ConstraintKind { return KindAlwaysAccept }

func (HashConstraint) isAttachmentConstraint()         {}
func (SignersConstraint) isAttachmentConstraint()      {}
func (WhitelistConstraint) isAttachmentConstraint()    {}
func (AlwaysAcceptConstraint) isAttachmentConstraint() {}

func (c HashConstraint) String() string { return "hash(" + c.Expected.Short() + ")" }

func (c SignersConstraint) String() string {
	names := make([]string, len(c.Signers))
	for i, k := range c.Signers {
		names[i] = k.String()
	}

	return "signers(" + strings.Join(names, ",") + ")"
}

func (WhitelistConstraint) String() string    { return "whitelist" }
func (AlwaysAcceptConstraint) String() string { return "always-accept" }

// Requires reports whether key is one of the required signers.
func (c SignersConstraint) Requires(key PublicKey) bool {
	return slices.Contains(c.Signers, key)
}
