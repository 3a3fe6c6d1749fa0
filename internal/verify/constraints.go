package verify

import (
	"Covenant/internal/attachment"
	"Covenant/internal/ledger"
	"Covenant/internal/logger"
	"Covenant/internal/metrics"
)

// Checker proves that each touched state's contract is backed by exactly one
// package satisfying the state's constraint. It holds no per-transaction
// state and is safe for concurrent use.
type Checker struct {
	policy  Policy
	metrics *metrics.Metrics
}

// NewChecker creates a checker for policy. m may be nil.
func NewChecker(policy Policy, m *metrics.Metrics) *Checker {
	return &Checker{policy: policy, metrics: m}
}

// candidate is the single package bound to a contract within one transaction.
type candidate struct {
	att     ledger.Attachment
	hash    ledger.SecureHash
	signers map[ledger.PublicKey]bool // signers is nil until first needed
}

// Check evaluates every consumed input and every output of tx, then the
// input-to-output propagation rule. It returns the approved package per
// contract. Reference inputs are read only and are not checked.
func (c *Checker) Check(tx *ledger.LedgerTransaction) (map[ledger.ContractID]ledger.Attachment, error) {
	groups, err := groupAttachments(tx.Attachments())
	if err != nil {
		return nil, err
	}

	inputs := tx.Inputs()
	for i, in := range inputs {
		if err := c.checkState(groups, in, seqInput, i); err != nil {
			return nil, err
		}
	}

	outputs := make([]ledger.StateAndRef, tx.OutputCount())
	for i := range outputs {
		outputs[i], _ = tx.OutRef(i)

		if err := c.checkState(groups, outputs[i], seqOutput, i); err != nil {
			return nil, err
		}
	}

	if err := checkPropagation(inputs, outputs); err != nil {
		return nil, err
	}

	approved := make(map[ledger.ContractID]ledger.Attachment, len(groups))
	for id, cand := range groups {
		approved[id] = cand.att
	}

	return approved, nil
}

const (
	seqInput  = "input"
	seqOutput = "output"
)

// groupAttachments binds each declared contract to one package. Every package
// is reopened from its own bytes, so the contracts it declares and the entries
// that later execute are exactly the ones covered by its hash and signatures.
// Byte-identical packages collapse; two different packages for one contract
// are rejected.
func groupAttachments(atts []ledger.Attachment) (map[ledger.ContractID]*candidate, error) {
	groups := make(map[ledger.ContractID]*candidate)

	for i, att := range atts {
		opened, err := attachment.Open(att.Data, att.Signatures)
		if err != nil {
			return nil, &InvalidAttachmentError{Position: i, Attachment: att.ContentHash(), Err: err}
		}

		for _, id := range opened.Contracts {
			existing, ok := groups[id]
			if !ok {
				groups[id] = &candidate{att: opened, hash: opened.ID}
				continue
			}

			if existing.hash != opened.ID {
				return nil, &AmbiguousAttachmentsError{Contract: id, First: existing.hash, Second: opened.ID}
			}
		}
	}

	return groups, nil
}

// checkState evaluates one state's constraint against its contract's package.
func (c *Checker) checkState(groups map[ledger.ContractID]*candidate, sr ledger.StateAndRef, seq string, pos int) error {
	id := sr.State.Contract

	cand, ok := groups[id]
	if !ok {
		return &ledger.MissingAttachmentError{Contract: id, Sequence: seq, Position: pos}
	}

	violation := func(reason string) error {
		return &ConstraintViolationError{
			Contract:   id,
			Sequence:   seq,
			Position:   pos,
			Ref:        sr.Ref,
			Constraint: sr.State.Constraint,
			Attachment: cand.hash,
			Reason:     reason,
		}
	}

	switch cons := sr.State.Constraint.(type) {
	case ledger.HashConstraint:
		if cand.hash != cons.Expected {
			return violation("content hash " + cand.hash.String() + " does not match " + cons.Expected.String())
		}

	case ledger.SignersConstraint:
		if len(cons.Signers) == 0 {
			return violation("constraint names no signers")
		}

		signed := cand.validSigners()
		for _, key := range cons.Signers {
			if !signed[key] {
				return violation("missing valid signature from " + key.String())
			}
		}

	case ledger.WhitelistConstraint:
		if !c.policy.Whitelist.Allows(id, cand.hash) {
			return violation("package is not whitelisted for the contract")
		}

	case ledger.AlwaysAcceptConstraint:
		if !c.policy.AllowAlwaysAccept {
			return violation("always-accept constraint is not permitted on this node")
		}

		logger.Warn("state accepted without package integrity check",
			"constraint", "always-accept",
			"contract", id,
			"sequence", seq,
			"position", pos,
			"ref", sr.Ref,
		)
		c.metrics.AlwaysAcceptUsed(string(id))

	case nil:
		return violation("state has no constraint")

	default:
		return violation("unsupported constraint kind " + cons.Kind().String())
	}

	return nil
}

// validSigners verifies every detached signature once against the package
// bytes and returns the keys with a valid signature.
func (cand *candidate) validSigners() map[ledger.PublicKey]bool {
	if cand.signers != nil {
		return cand.signers
	}

	cand.signers = make(map[ledger.PublicKey]bool, len(cand.att.Signatures))
	for _, sig := range cand.att.Signatures {
		if attachment.VerifySignature(cand.att.Data, sig) {
			cand.signers[sig.Signer] = true
		}
	}

	return cand.signers
}

// checkPropagation rejects an output that carries a weaker constraint than a
// state consumed under the same contract.
func checkPropagation(inputs, outputs []ledger.StateAndRef) error {
	for i, in := range inputs {
		for o, out := range outputs {
			if in.State.Contract != out.State.Contract {
				continue
			}

			if !atLeastAsStrong(out.State.Constraint, in.State.Constraint) {
				return &ConstraintPropagationError{
					Contract: in.State.Contract,
					Input:    i,
					InputRef: in.Ref,
					Output:   o,
					From:     in.State.Constraint,
					To:       out.State.Constraint,
				}
			}
		}
	}

	return nil
}

// atLeastAsStrong orders constraints AlwaysAccept < Whitelist < Hash < Signers.
// Within Signers the new key set must contain every previously required key.
func atLeastAsStrong(next, prev ledger.AttachmentConstraint) bool {
	if next.Kind() != prev.Kind() {
		return next.Kind() > prev.Kind()
	}

	p, ok := prev.(ledger.SignersConstraint)
	if !ok {
		return true
	}

	n := next.(ledger.SignersConstraint)
	for _, key := range p.Signers {
		if !n.Requires(key) {
			return false
		}
	}

	return true
}
