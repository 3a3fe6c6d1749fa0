package podvm

import (
	flatbuffers "github.com/google/flatbuffers/go"

	"Covenant/internal/ledger"
	"Covenant/internal/types"
)

// buildRequest encodes the guest input as a VerifyRequest table.
func buildRequest(id ledger.ContractID, txID ledger.SecureHash, tx []byte, pkg ledger.SecureHash, gasLimit uint64) []byte {
	builder := flatbuffers.NewBuilder(len(tx) + 256)

	contractOff := builder.CreateString(string(id))
	txIDOff := builder.CreateByteVector(txID[:])
	txOff := builder.CreateByteVector(tx)
	pkgOff := builder.CreateByteVector(pkg[:])

	types.VerifyRequestStart(builder)
	types.VerifyRequestAddContract(builder, contractOff)
	types.VerifyRequestAddTxId(builder, txIDOff)
	types.VerifyRequestAddTransaction(builder, txOff)
	types.VerifyRequestAddAttachment(builder, pkgOff)
	types.VerifyRequestAddGasLimit(builder, gasLimit)
	root := types.VerifyRequestEnd(builder)

	builder.Finish(root)

	return builder.FinishedBytes()
}
