package podvm

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// execKey carries the per-call execState through the context handed to wazero.
type execKey struct{}

// execState holds the execution state for a single verify call.
type execState struct {
	input        []byte // input is the FlatBuffers-encoded VerifyRequest
	output       []byte // output is the rejection message written by the guest
	gasLimit     uint64 // gasLimit is the maximum gas allowed
	gasUsed      uint64 // gasUsed tracks consumed gas
	gasExhausted bool   // gasExhausted is true if gas limit was exceeded
}

func withState(ctx context.Context, st *execState) context.Context {
	return context.WithValue(ctx, execKey{}, st)
}

func stateFrom(ctx context.Context) *execState {
	st, _ := ctx.Value(execKey{}).(*execState)
	if st == nil {
		panic("host function called outside a verify call")
	}

	return st
}

// instantiateHost registers the "env" module once per runtime. Host
// functions find their call's state in the context, so one host instance
// serves concurrent guests.
func instantiateHost(ctx context.Context, rt wazero.Runtime) (api.Module, error) {
	return rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(hostGas).
		Export("gas").
		NewFunctionBuilder().
		WithFunc(hostInputLen).
		Export("input_len").
		NewFunctionBuilder().
		WithFunc(hostReadInput).
		Export("read_input").
		NewFunctionBuilder().
		WithFunc(hostWriteOutput).
		Export("write_output").
		Instantiate(ctx)
}

// hostGas handles gas metering.
// Panics if gas limit is exceeded to abort execution.
func hostGas(ctx context.Context, cost uint32) {
	st := stateFrom(ctx)
	st.gasUsed += uint64(cost)

	if st.gasUsed > st.gasLimit {
		st.gasExhausted = true
		panic("gas exhausted")
	}
}

// hostInputLen returns the length of the input buffer.
func hostInputLen(ctx context.Context) uint32 {
	return uint32(len(stateFrom(ctx).input))
}

// hostReadInput copies the input buffer into guest memory at ptr.
func hostReadInput(ctx context.Context, m api.Module, ptr uint32) {
	st := stateFrom(ctx)
	if len(st.input) == 0 {
		return
	}

	mem := m.Memory()
	if mem == nil || !mem.Write(ptr, st.input) {
		panic("read_input: out of bounds")
	}
}

// hostWriteOutput copies the guest's rejection message out of its memory.
func hostWriteOutput(ctx context.Context, m api.Module, ptr, length uint32) {
	st := stateFrom(ctx)
	if length == 0 {
		return
	}

	mem := m.Memory()
	if mem == nil {
		panic("write_output: module has no memory")
	}

	data, ok := mem.Read(ptr, length)
	if !ok {
		panic("write_output: out of bounds")
	}

	st.output = make([]byte, length)
	copy(st.output, data)
}
