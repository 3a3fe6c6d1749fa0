// Package podvm runs contract packages compiled to WebAssembly inside a
// wazero sandbox. Guests see only the host functions of the "env" module:
// no WASI, no filesystem, no clock, no network.
package podvm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"Covenant/internal/contract"
	"Covenant/internal/ledger"
	"Covenant/internal/logger"
	"Covenant/internal/wire"
)

const (
	// entryFunction is the export every contract module must provide: verify() -> i32.
	entryFunction = "verify"

	// DefaultGasLimit is the gas budget of one verify call.
	DefaultGasLimit = 10_000_000

	// DefaultMemoryPages caps guest memory at 16 MiB.
	DefaultMemoryPages = 256
)

var (
	// ErrGasExhausted is returned when execution runs out of gas.
	ErrGasExhausted = errors.New("gas exhausted")

	// ErrBadModule is returned for a module without a valid verify export.
	ErrBadModule = errors.New("invalid contract module")
)

// Config holds sandbox limits.
type Config struct {
	GasLimit    uint64 // GasLimit is the gas budget per verify call
	MemoryPages uint32 // MemoryPages caps guest linear memory in 64 KiB pages
}

// Pool manages compiled contract modules.
// Modules are compiled once per package and kept hot for fast instantiation.
type Pool struct {
	runtime wazero.Runtime                                // runtime is the wazero runtime instance
	codec   *wire.Codec                                   // codec encodes transactions for guests
	cfg     Config                                        // cfg holds sandbox limits
	modules map[ledger.SecureHash]wazero.CompiledModule // modules maps package hash to compiled module
	mu      sync.RWMutex                                  // mu protects modules map
}

// New creates a Pool with its own runtime and host module.
func New(ctx context.Context, cfg Config, codec *wire.Codec) (*Pool, error) {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}

	if cfg.MemoryPages == 0 {
		cfg.MemoryPages = DefaultMemoryPages
	}

	if codec == nil {
		codec = &wire.Codec{Registry: wire.NewRegistry(), Lenient: true}
	}

	rcfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(cfg.MemoryPages).
		WithCloseOnContextDone(true)

	rt := wazero.NewRuntimeWithConfig(ctx, rcfg)

	if _, err := instantiateHost(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate host module:\n%w", err)
	}

	return &Pool{
		runtime: rt,
		codec:   codec,
		cfg:     cfg,
		modules: make(map[ledger.SecureHash]wazero.CompiledModule),
	}, nil
}

// Load compiles the package's entry point. Packages without one report
// contract.ErrNoImplementation so a loader chain can fall through.
func (p *Pool) Load(ctx context.Context, id ledger.ContractID, att ledger.Attachment) (contract.Contract, error) {
	if !att.Declares(id) {
		return nil, fmt.Errorf("package %s does not declare %s", att.ID.Short(), id)
	}

	code, ok := att.Entry(att.EntryPoint)
	if !ok {
		return nil, fmt.Errorf("%w: package %s has no entry %q", contract.ErrNoImplementation, att.ID.Short(), att.EntryPoint)
	}

	hash := att.ContentHash()

	compiled, err := p.compile(ctx, hash, code)
	if err != nil {
		return nil, err
	}

	return &wasmContract{pool: p, module: compiled, contract: id, pkg: hash}, nil
}

// compile returns the cached module for hash, compiling code on first use.
func (p *Pool) compile(ctx context.Context, hash ledger.SecureHash, code []byte) (wazero.CompiledModule, error) {
	p.mu.RLock()
	compiled, exists := p.modules[hash]
	p.mu.RUnlock()

	if exists {
		return compiled, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if compiled, exists := p.modules[hash]; exists {
		return compiled, nil
	}

	compiled, err := p.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %s:\n%w", ErrBadModule, hash.Short(), err)
	}

	if err := checkEntry(compiled); err != nil {
		compiled.Close(ctx)
		return nil, fmt.Errorf("%w: %s: %v", ErrBadModule, hash.Short(), err)
	}

	p.modules[hash] = compiled
	logger.Debug("compiled contract module", "package", hash.Short(), "size", len(code))

	return compiled, nil
}

// checkEntry requires an exported verify() -> i32.
func checkEntry(compiled wazero.CompiledModule) error {
	def, ok := compiled.ExportedFunctions()[entryFunction]
	if !ok {
		return fmt.Errorf("no %s export", entryFunction)
	}

	results := def.ResultTypes()
	if len(def.ParamTypes()) != 0 || len(results) != 1 || results[0] != api.ValueTypeI32 {
		return fmt.Errorf("%s must have signature () -> i32", entryFunction)
	}

	return nil
}

// Len returns the number of compiled modules held.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.modules)
}

// Unload removes a package's module from the pool.
func (p *Pool) Unload(ctx context.Context, hash ledger.SecureHash) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if compiled, exists := p.modules[hash]; exists {
		compiled.Close(ctx)
		delete(p.modules, hash)
	}
}

// Close releases all resources held by the pool.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for hash, compiled := range p.modules {
		compiled.Close(ctx)
		delete(p.modules, hash)
	}

	return p.runtime.Close(ctx)
}

// =============================================================================
// Execution
// =============================================================================

// wasmContract is one contract id bound to a compiled package module.
type wasmContract struct {
	pool     *Pool
	module   wazero.CompiledModule
	contract ledger.ContractID
	pkg      ledger.SecureHash
}

// Verify runs the guest's verify export against tx.
// A nonzero return is a rejection carrying the message from write_output.
func (c *wasmContract) Verify(ctx context.Context, tx *ledger.LedgerTransaction) error {
	txBytes, err := c.pool.codec.EncodeLedger(tx)
	if err != nil {
		return fmt.Errorf("encode transaction for guest:\n%w", err)
	}

	st := &execState{
		input:    buildRequest(c.contract, tx.ID(), txBytes, c.pkg, c.pool.cfg.GasLimit),
		gasLimit: c.pool.cfg.GasLimit,
	}

	code, err := c.call(withState(ctx, st), st)
	if err != nil {
		return err
	}

	logger.Debug("contract executed",
		"contract", c.contract,
		"package", c.pkg.Short(),
		"result", code,
		"gas", st.gasUsed,
	)

	if code == 0 {
		return nil
	}

	if len(st.output) > 0 {
		return contract.Rejectf("%s", st.output)
	}

	return contract.Rejectf("verify returned %d", code)
}

// call instantiates a fresh anonymous instance and calls verify.
func (c *wasmContract) call(ctx context.Context, st *execState) (uint32, error) {
	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()

	instance, err := c.pool.runtime.InstantiateModule(ctx, c.module, cfg)
	if err != nil {
		return 0, fmt.Errorf("instantiate module:\n%w", err)
	}
	defer instance.Close(context.WithoutCancel(ctx))

	results, err := instance.ExportedFunction(entryFunction).Call(ctx)
	if err != nil {
		if st.gasExhausted {
			return 0, fmt.Errorf("%w after %d units", ErrGasExhausted, st.gasUsed)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}

		return 0, fmt.Errorf("trap:\n%w", err)
	}

	return api.DecodeU32(results[0]), nil
}
