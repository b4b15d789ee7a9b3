package autoaction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"golang.org/x/time/rate"
)

// WasmModuleSource resolves an action's config["module"] reference to
// compiled WASM bytes; the engine does not fetch or cache modules itself.
type WasmModuleSource interface {
	Resolve(ctx context.Context, moduleRef string) ([]byte, error)
}

// WasmAdapter runs a tenant-supplied WASM module as a sandboxed custom
// action body, deny-by-default (no filesystem, no network, no ambient
// authority) — adapted from this codebase's
// pkg/runtime/sandbox.WASISandbox to the auto-action dispatch contract:
// the alert JSON goes in on stdin, the adapter's result comes out on
// stdout, giving a tenant custom logic without the engine trusting
// arbitrary native code.
type WasmAdapter struct {
	runtime wazero.Runtime
	modCfg  wazero.ModuleConfig
	source  WasmModuleSource
	limiter *rate.Limiter
}

// defaultWasmRate bounds module compiles+instantiations across every
// tenant sharing this adapter: compiling untrusted WASM is the most
// CPU-expensive step in the dispatch path, so it gets a token bucket
// independent of any single action's own reliability.ResourceLimit.
const defaultWasmRate = 20

// NewWasmAdapter builds a WasmAdapter with the given module source.
func NewWasmAdapter(ctx context.Context, source WasmModuleSource) (*WasmAdapter, error) {
	r := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return nil, fmt.Errorf("autoaction: instantiate wasi: %w", err)
	}
	modCfg := wazero.NewModuleConfig().
		WithName("autoaction-sandbox").
		WithStartFunctions("_start")
	return &WasmAdapter{
		runtime: r,
		modCfg:  modCfg,
		source:  source,
		limiter: rate.NewLimiter(rate.Limit(defaultWasmRate), defaultWasmRate),
	}, nil
}

// WithExecutionRate overrides the global compile/instantiate token bucket
// (executions per second, with a burst of int(perSecond)+1).
func (a *WasmAdapter) WithExecutionRate(perSecond float64) *WasmAdapter {
	a.limiter = rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)
	return a
}

// Close releases the wazero runtime.
func (a *WasmAdapter) Close(ctx context.Context) error {
	return a.runtime.Close(ctx)
}

func (a *WasmAdapter) Dispatch(ctx context.Context, action Action, alert *Alert) (string, error) {
	moduleRef, _ := action.Config["module"].(string)
	if moduleRef == "" {
		return "", fmt.Errorf("autoaction: wasm action %s missing config.module", action.ID)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("autoaction: wasm execution throttled: %w", err)
	}

	wasmBytes, err := a.source.Resolve(ctx, moduleRef)
	if err != nil {
		return "", fmt.Errorf("autoaction: resolve wasm module %s: %w", moduleRef, err)
	}

	input, err := json.Marshal(map[string]any{"action": action.ID, "alert": alert})
	if err != nil {
		return "", fmt.Errorf("autoaction: marshal wasm input: %w", err)
	}

	compiled, err := a.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return "", fmt.Errorf("autoaction: compile wasm module: %w", err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	var stdout, stderr bytes.Buffer
	modCfg := a.modCfg.
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := a.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("autoaction: wasm execution timed out: %w", ctx.Err())
		}
		return "", fmt.Errorf("autoaction: instantiate wasm module: %w", err)
	}
	defer func() { _ = mod.Close(ctx) }()

	if stderr.Len() > 0 {
		return stdout.String(), fmt.Errorf("autoaction: wasm module wrote to stderr: %s", stderr.String())
	}
	return stdout.String(), nil
}
