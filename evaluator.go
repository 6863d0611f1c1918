package smarthandles

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
	apolloCbor "github.com/Salvionied/cbor/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

var ErrNoEvaluatorModule = errors.New("no evaluator WASM module configured")

// Evaluator runs phase-two validation of built transactions in a WASM
// build of the ledger's script evaluator, so over-budget routes are caught
// before submission.
type Evaluator struct {
	runtime           wazero.Runtime
	module            api.Module
	evalPhaseTwoRaw   api.Function
	alloc             api.Function
	dealloc           api.Function
	utxoToInputBytes  api.Function
	utxoToOutputBytes api.Function
	config            EvaluatorConfig
	logger            *slog.Logger
}

func NewEvaluator(ctx context.Context, config EvaluatorConfig, opts ...Option) (*Evaluator, error) {
	o := applyOptions(opts)

	var wasmBytes []byte
	switch {
	case config.WasmFile != nil:
		var err error
		wasmBytes, err = os.ReadFile(*config.WasmFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read evaluator WASM file: %w", err)
		}
	case len(config.WasmBytes) > 0:
		wasmBytes = config.WasmBytes
	default:
		return nil, ErrNoEvaluatorModule
	}

	runtime := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, err
	}

	modConfig := wazero.NewModuleConfig().
		WithStdout(io.Discard).
		WithStderr(io.Discard)

	module, err := runtime.InstantiateWithConfig(ctx, wasmBytes, modConfig)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate evaluator module: %w", err)
	}

	e := &Evaluator{
		runtime:           runtime,
		module:            module,
		evalPhaseTwoRaw:   module.ExportedFunction("eval_phase_two_raw"),
		alloc:             module.ExportedFunction("alloc"),
		dealloc:           module.ExportedFunction("dealloc"),
		utxoToInputBytes:  module.ExportedFunction("utxo_to_input_bytes"),
		utxoToOutputBytes: module.ExportedFunction("utxo_to_output_bytes"),
		config:            config,
		logger:            o.logger,
	}
	for name, fn := range map[string]api.Function{
		"eval_phase_two_raw":   e.evalPhaseTwoRaw,
		"alloc":                e.alloc,
		"dealloc":              e.dealloc,
		"utxo_to_input_bytes":  e.utxoToInputBytes,
		"utxo_to_output_bytes": e.utxoToOutputBytes,
	} {
		if fn == nil {
			e.Close(ctx)
			return nil, fmt.Errorf("evaluator module does not export %s", name)
		}
	}

	return e, nil
}

// Close terminates the WASM runtime and releases resources.
func (e *Evaluator) Close(ctx context.Context) {
	e.module.Close(ctx)
	e.runtime.Close(ctx)
}

// Check evaluates every script of tx. Failures match ErrBuildFailure.
func (e *Evaluator) Check(ctx context.Context, tx *SignableTx, utxos []apolloUTxO.UTxO) error {
	if _, err := e.Evaluate(ctx, tx.CBOR, utxos); err != nil {
		return buildFailure(err)
	}
	return nil
}

// Evaluate processes the transaction bytes and returns redeemers as bytes.
func (e *Evaluator) Evaluate(ctx context.Context, txBytes []byte, utxos []apolloUTxO.UTxO) ([][]byte, error) {
	tx, err := GetTxFromBytes(txBytes)
	if err != nil {
		return nil, err
	}

	utxoMap := make(map[OutRef]apolloUTxO.UTxO, len(utxos))
	for _, utxo := range utxos {
		utxoMap[OutRefOf(utxo).normalized()] = utxo
	}

	var inputBytes [][]byte
	var outputBytes [][]byte

	for _, input := range tx.TransactionBody.Inputs {
		ref := OutRef{TxHash: hex.EncodeToString(input.TransactionId), Index: input.Index}
		utxo, exists := utxoMap[ref]
		if !exists {
			return nil, fmt.Errorf("%w: no resolved utxo for input %s", ErrNotFound, ref)
		}

		utxoCbor, err := apolloCbor.Marshal(prepareUTxO(&utxo))
		if err != nil {
			return nil, err
		}

		utxoPtr, utxoLen, err := e.writeToMemory(ctx, utxoCbor)
		if err != nil {
			return nil, err
		}

		in, err := e.callFunction(ctx, e.utxoToInputBytes, utxoPtr, utxoLen)
		if err != nil {
			e.deallocMemory(ctx, utxoPtr, utxoLen)
			return nil, err
		}
		out, err := e.callFunction(ctx, e.utxoToOutputBytes, utxoPtr, utxoLen)
		e.deallocMemory(ctx, utxoPtr, utxoLen)
		if err != nil {
			return nil, err
		}
		inputBytes = append(inputBytes, in)
		outputBytes = append(outputBytes, out)
	}

	serializedUtxos := serializeUTxOs(inputBytes, outputBytes)

	var ptrs [3][2]uint64
	for i, buf := range [][]byte{txBytes, serializedUtxos, e.config.CostModels} {
		ptr, size, err := e.writeToMemory(ctx, buf)
		if err != nil {
			return nil, err
		}
		defer e.deallocMemory(ctx, ptr, size)
		ptrs[i] = [2]uint64{ptr, size}
	}

	results, err := e.evalPhaseTwoRaw.Call(ctx,
		ptrs[0][0], ptrs[0][1],
		ptrs[1][0], ptrs[1][1],
		ptrs[2][0], ptrs[2][1],
		e.config.MaxTxExSteps, e.config.MaxTxExMem,
		e.config.ZeroTime, e.config.ZeroSlot, e.config.SlotLength,
	)
	if err != nil {
		return nil, err
	}
	resultBytes, err := e.readResult(ctx, results)
	if err != nil {
		return nil, err
	}

	if len(resultBytes) == 0 {
		return nil, errors.New("empty result from WASM evaluation")
	}

	if resultBytes[0] == 0 {
		var redeemers [][]byte
		decoder := apolloCbor.NewDecoder(bytes.NewReader(resultBytes[1:]))
		if err := decoder.Decode(&redeemers); err != nil {
			return nil, err
		}
		return redeemers, nil
	}

	var evalError EvalError
	if err := apolloCbor.Unmarshal(resultBytes[1:], &evalError); err != nil {
		return nil, err
	}
	e.logger.Debug(
		"script evaluation failed",
		"error", evalError.ErrorType,
		"mem", evalError.Budget.Mem,
		"cpu", evalError.Budget.CPU,
	)
	return nil, &EvaluationError{EvalError: evalError}
}

// writeToMemory allocates memory in WASM and writes data to it.
func (e *Evaluator) writeToMemory(ctx context.Context, data []byte) (uint64, uint64, error) {
	results, err := e.alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to allocate memory: %w", err)
	}
	ptr := results[0]
	if !e.module.Memory().Write(uint32(ptr), data) {
		e.deallocMemory(ctx, ptr, uint64(len(data)))
		return 0, 0, errors.New("failed to write data to WASM memory")
	}
	return ptr, uint64(len(data)), nil
}

// deallocMemory deallocates memory in WASM.
func (e *Evaluator) deallocMemory(ctx context.Context, ptr, size uint64) {
	if _, err := e.dealloc.Call(ctx, ptr, size); err != nil {
		e.logger.Warn("failed to deallocate evaluator memory", "error", err)
	}
}

// callFunction invokes a WASM function and retrieves the result bytes.
func (e *Evaluator) callFunction(ctx context.Context, fn api.Function, args ...uint64) ([]byte, error) {
	results, err := fn.Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	return e.readResult(ctx, results)
}

// readResult copies out a buffer returned as a packed (ptr<<32 | len) and
// frees it in the guest.
func (e *Evaluator) readResult(ctx context.Context, results []uint64) ([]byte, error) {
	if len(results) < 1 {
		return nil, errors.New("no results from function call")
	}
	ptr, size := uint32(results[0]>>32), uint32(results[0])
	buf, ok := e.module.Memory().Read(ptr, size)
	if !ok {
		return nil, errors.New("failed to read result memory")
	}
	ret := bytes.Clone(buf)
	e.deallocMemory(ctx, uint64(ptr), uint64(size))
	return ret, nil
}
