package core

// Syscall host functions wired into the wasmer-go sandbox, one Go function
// per syscall of the minimum set: type-assert/close over the execution
// environment, bounds-check the pointer/length pair against live WASM
// linear memory, charge cycles through the bridge's reconciliation
// protocol (cee_bridge.go), perform the effect, write the result back into
// guest memory or return it as a value.
//
// wasmer-go exposes no deterministic per-instruction metering, so
// "vm_cycles" here is a monotonic per-syscall step counter rather than a
// true guest instruction count; see DESIGN.md "Open Question: VM
// substrate" for why this still preserves the delta-reconciliation
// invariant the bridge relies on.

import (
	"encoding/json"

	"github.com/wasmerio/wasmer-go/wasmer"
)

const vmStepCost = 1

// runEnv is the per-call execution environment closed over by every host
// function registered for one run() invocation.
type runEnv struct {
	bridge    ChainBridge
	addr      Address
	args      []byte
	isInit    bool
	vmCycles  uint64
	returnBuf []byte
	mem       *wasmer.Memory
}

func (r *runEnv) step() {
	r.vmCycles += vmStepCost
}

func (r *runEnv) charge(doWork func() error) error {
	newBaseline, err := chargeOnBridge(r.bridge, r.vmCycles, doWork)
	_ = newBaseline
	return err
}

// chargeOnBridge dispatches to the concrete bridge's serveCycles so both
// Readonly and Writeable variants share the exact same reconciliation
// arithmetic (cee_bridge.go's baseBridge.serveCycles).
func chargeOnBridge(bridge ChainBridge, vmCycles uint64, doWork func() error) (uint64, error) {
	switch b := bridge.(type) {
	case *ReadonlyBridge:
		return b.serveCycles(vmCycles, doWork)
	case *WriteableBridge:
		return b.serveCycles(vmCycles, doWork)
	default:
		return vmCycles, ErrVmError("unknown bridge implementation")
	}
}

func reconcileHalt(bridge ChainBridge, vmCycles uint64) error {
	switch b := bridge.(type) {
	case *ReadonlyBridge:
		return b.ReconcileHalt(vmCycles)
	case *WriteableBridge:
		return b.ReconcileHalt(vmCycles)
	default:
		return ErrVmError("unknown bridge implementation")
	}
}

func (r *runEnv) readMem(ptr, length int32) []byte {
	data := r.mem.Data()
	if ptr < 0 || length < 0 || int(ptr)+int(length) > len(data) {
		return nil
	}
	out := make([]byte, length)
	copy(out, data[ptr:int(ptr)+int(length)])
	return out
}

func (r *runEnv) writeMem(ptr int32, value []byte) bool {
	data := r.mem.Data()
	if ptr < 0 || int(ptr)+len(value) > len(data) {
		return false
	}
	copy(data[ptr:], value)
	return true
}

// run instantiates the module selected by record.InterpreterKind, registers
// the syscall surface under the "env" import namespace, calls its `run`
// export (Binary) or hands the deployed code to the module in
// duktapeInterpreterBlob (Duktape), and performs the halt-time cycle
// reconciliation.
func (e *ContractExecutionEngine) run(bridge ChainBridge, addr Address, record ContractRecord, code, args []byte, isInit bool) ([]byte, error) {
	var moduleBytes []byte
	switch record.InterpreterKind {
	case InterpreterBinary:
		moduleBytes = code
	case InterpreterDuktape:
		moduleBytes = duktapeInterpreterBlob
	default:
		return nil, ErrVmError("unknown interpreter kind")
	}

	store := wasmer.NewStore(e.wasmEngine)
	mod, err := wasmer.NewModule(store, moduleBytes)
	if err != nil {
		return nil, ErrVmError(err.Error())
	}

	env := &runEnv{bridge: bridge, addr: addr, args: args, isInit: isInit}
	if record.InterpreterKind == InterpreterDuktape {
		// The Duktape built-in receives the deployed code as an extra
		// argument rather than args themselves being the program.
		env.args = append(append([]byte{}, code...), args...)
	}

	imports := e.registerHostFunctions(store, env)

	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return nil, ErrVmError(err.Error())
	}
	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, ErrVmError("wasm module does not export linear memory")
	}
	env.mem = mem

	runFn, err := instance.Exports.GetFunction("run")
	if err != nil {
		return nil, ErrVmError("wasm module does not export a run function")
	}
	if _, err := runFn(); err != nil {
		// Cycles already charged up to this point remain consumed; still
		// reconcile the halt.
		_ = reconcileHalt(bridge, env.vmCycles)
		return nil, ErrNonZeroExitCode(-1, err.Error())
	}

	if err := reconcileHalt(bridge, env.vmCycles); err != nil {
		return nil, err
	}
	return env.returnBuf, nil
}

// i32Kinds builds n repeated I32 parameter kinds, spread into
// wasmer.NewValueTypes for each host function's signature.
func i32Kinds(n int) []wasmer.ValueKind {
	out := make([]wasmer.ValueKind, n)
	for i := range out {
		out[i] = wasmer.ValueKind(wasmer.I32)
	}
	return out
}

func i32Params(n int) []*wasmer.ValueType {
	return wasmer.NewValueTypes(i32Kinds(n)...)
}

func (e *ContractExecutionEngine) registerHostFunctions(store *wasmer.Store, env *runEnv) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	debugFn := wasmer.NewFunction(store, wasmer.NewFunctionType(i32Params(2), i32Params(0)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			msg := env.readMem(args[0].I32(), args[1].I32())
			e.logger.WithField("contract", env.addr.String()).Debug(string(msg))
			return nil, nil
		},
	)

	assertFn := wasmer.NewFunction(store, wasmer.NewFunctionType(i32Params(3), i32Params(1)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			cond := args[0].I32()
			if cond == 0 {
				msg := env.readMem(args[1].I32(), args[2].I32())
				return nil, ErrVmError("assert failed: " + string(msg))
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	envCaller := wasmer.NewFunction(store, wasmer.NewFunctionType(i32Params(1), i32Params(1)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			caller := env.bridge.Context().Caller
			if !env.writeMem(args[0].I32(), caller[:]) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(int32(len(caller)))}, nil
		},
	)

	envAddress := wasmer.NewFunction(store, wasmer.NewFunctionType(i32Params(1), i32Params(1)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			if !env.writeMem(args[0].I32(), env.addr[:]) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(int32(len(env.addr)))}, nil
		},
	)

	envTxHash := wasmer.NewFunction(store, wasmer.NewFunctionType(i32Params(1), i32Params(1)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			txHash := env.bridge.Context().TxHash
			if txHash == nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			if !env.writeMem(args[0].I32(), txHash[:]) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(int32(len(txHash)))}, nil
		},
	)

	envHeight := wasmer.NewFunction(store, wasmer.NewFunctionType(wasmer.NewValueTypes(), wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I64))),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			return []wasmer.Value{wasmer.NewI64(int64(env.bridge.Context().Height))}, nil
		},
	)

	envCyclesLimit := wasmer.NewFunction(store, wasmer.NewFunctionType(wasmer.NewValueTypes(), wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I64))),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			return []wasmer.Value{wasmer.NewI64(int64(env.bridge.Context().CyclesLimit()))}, nil
		},
	)

	envCyclesUsed := wasmer.NewFunction(store, wasmer.NewFunctionType(wasmer.NewValueTypes(), wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I64))),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			return []wasmer.Value{wasmer.NewI64(int64(env.bridge.Context().CyclesUsed()))}, nil
		},
	)

	envIsInit := wasmer.NewFunction(store, wasmer.NewFunctionType(wasmer.NewValueTypes(), i32Params(1)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			v := int32(0)
			if env.isInit {
				v = 1
			}
			return []wasmer.Value{wasmer.NewI32(v)}, nil
		},
	)

	envArgsLength := wasmer.NewFunction(store, wasmer.NewFunctionType(wasmer.NewValueTypes(), i32Params(1)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			return []wasmer.Value{wasmer.NewI32(int32(len(env.args)))}, nil
		},
	)

	envArgs := wasmer.NewFunction(store, wasmer.NewFunctionType(i32Params(1), i32Params(1)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			if !env.writeMem(args[0].I32(), env.args) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(int32(len(env.args)))}, nil
		},
	)

	ioRet := wasmer.NewFunction(store, wasmer.NewFunctionType(i32Params(2), i32Params(0)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			chunk := env.readMem(args[0].I32(), args[1].I32())
			env.returnBuf = append(env.returnBuf, chunk...)
			return nil, nil
		},
	)

	getStorage := wasmer.NewFunction(store, wasmer.NewFunctionType(i32Params(4), i32Params(1)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			keyPtr, keyLen, outPtr, outCap := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
			key := env.readMem(keyPtr, keyLen)
			var val []byte
			err := env.charge(func() error {
				v, e := env.bridge.GetStorage(env.addr, key)
				val = v
				return e
			})
			if err != nil {
				return nil, err
			}
			if val == nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			n := int32(len(val))
			if n > outCap {
				n = outCap
			}
			env.writeMem(outPtr, val[:n])
			return []wasmer.Value{wasmer.NewI32(int32(len(val)))}, nil
		},
	)

	setStorage := wasmer.NewFunction(store, wasmer.NewFunctionType(i32Params(4), i32Params(1)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			keyPtr, keyLen, valPtr, valLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
			key := env.readMem(keyPtr, keyLen)
			val := env.readMem(valPtr, valLen)
			err := env.charge(func() error {
				return env.bridge.SetStorage(env.addr, key, val)
			})
			if err != nil {
				return nil, err
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	contractCall := wasmer.NewFunction(store, wasmer.NewFunctionType(i32Params(6), i32Params(1)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			addrPtr, argsPtr, argsLen, readonlyFlag, outPtr, outCap :=
				args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32(), args[4].I32(), args[5].I32()
			addrBytes := env.readMem(addrPtr, 20)
			var target Address
			copy(target[:], addrBytes)
			callArgs := env.readMem(argsPtr, argsLen)
			var ret []byte
			err := env.charge(func() error {
				r, e := env.bridge.ContractCall(target, callArgs, readonlyFlag != 0)
				ret = r
				return e
			})
			if err != nil {
				return nil, err
			}
			n := int32(len(ret))
			if n > outCap {
				n = outCap
			}
			env.writeMem(outPtr, ret[:n])
			return []wasmer.Value{wasmer.NewI32(int32(len(ret)))}, nil
		},
	)

	serviceRead := e.makeServiceSyscall(store, env, false)
	serviceWrite := e.makeServiceSyscall(store, env, true)

	imports.Register("env", map[string]wasmer.IntoExtern{
		"debug":             debugFn,
		"assert":            assertFn,
		"env_caller":        envCaller,
		"env_address":       envAddress,
		"env_tx_hash":       envTxHash,
		"env_height":        envHeight,
		"env_cycles_limit":  envCyclesLimit,
		"env_cycles_used":   envCyclesUsed,
		"env_is_init":       envIsInit,
		"env_args_length":   envArgsLength,
		"env_args":          envArgs,
		"io_ret":            ioRet,
		"get_storage":       getStorage,
		"set_storage":       setStorage,
		"contract_call":     contractCall,
		"service_read":      serviceRead,
		"service_write":     serviceWrite,
	})

	return imports
}

// makeServiceSyscall builds SERVICE_READ/SERVICE_WRITE: both take
// (servicePtr,serviceLen,methodPtr,methodLen,payloadPtr,payloadLen,outPtr,
// outCap) and differ only in which bridge method they call.
func (e *ContractExecutionEngine) makeServiceSyscall(store *wasmer.Store, env *runEnv, write bool) *wasmer.Function {
	return wasmer.NewFunction(store, wasmer.NewFunctionType(i32Params(8), i32Params(1)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			env.step()
			servicePtr, serviceLen := args[0].I32(), args[1].I32()
			methodPtr, methodLen := args[2].I32(), args[3].I32()
			payloadPtr, payloadLen := args[4].I32(), args[5].I32()
			outPtr, outCap := args[6].I32(), args[7].I32()

			service := string(env.readMem(servicePtr, serviceLen))
			method := string(env.readMem(methodPtr, methodLen))
			payload := env.readMem(payloadPtr, payloadLen)

			var ret []byte
			err := env.charge(func() error {
				var e2 error
				if write {
					ret, e2 = env.bridge.ServiceWrite(service, method, payload)
				} else {
					ret, e2 = env.bridge.ServiceRead(service, method, payload)
				}
				return e2
			})
			if err != nil {
				return nil, err
			}
			n := int32(len(ret))
			if n > outCap {
				n = outCap
			}
			env.writeMem(outPtr, ret[:n])
			return []wasmer.Value{wasmer.NewI32(int32(len(ret)))}, nil
		},
	)
}

// decodeServiceJSON decodes a SERVICE_READ/SERVICE_WRITE JSON payload into
// a Go value, reporting a decode failure as JsonParse.
func decodeServiceJSON(payload []byte, out interface{}) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return ErrJsonParse(err)
	}
	return nil
}
