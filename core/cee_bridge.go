package core

// ChainBridge is the host-side adapter the contract execution engine hands
// to a running VM instance: it exposes contract-namespaced storage,
// recursive contract calls, and generic service read/write, while
// enforcing the readonly/writeable write-discipline and the VM<->host
// cycle-reconciliation protocol.
//
// Grounded on original_source/services/riscv/src/vm/chain_interface.rs
// (ChainInterface trait, CycleContext, ReadonlyChain/WriteableChain, the
// `serve` reconciliation method, and the fixed service/method dispatch
// tables).

import (
	"encoding/json"
)

// ChainBridge is implemented by both the readonly and writeable adapters;
// the CEE picks one based on whether the call is call() (read) or
// deploy()/exec() (write).
type ChainBridge interface {
	Readonly() bool
	GetStorage(contract Address, key []byte) ([]byte, error)
	SetStorage(contract Address, key, value []byte) error
	ContractCall(addr Address, args []byte, readonly bool) ([]byte, error)
	ServiceRead(service, method string, payload []byte) ([]byte, error)
	ServiceWrite(service, method string, payload []byte) ([]byte, error)
	Context() *ServiceContext
}

// baseBridge carries the shared state both variants need: the service
// context (and its shared cycle meter), the contract execution engine for
// storage/recursive-call access, and the cycle-reconciliation baseline.
//
// allCyclesUsed tracks ctx.CyclesUsed() as of the last time the VM handed
// control to the host; see serveCycles.
type baseBridge struct {
	ctx           *ServiceContext
	engine        *ContractExecutionEngine
	allCyclesUsed uint64
}

// serveCycles is the cycle-reconciliation protocol, carried over from
// original_source's `serve`: given the VM's own instruction
// counter at the moment of the syscall, charge the delta since the last
// reconciliation point against ctx, run the host work (which itself may
// charge ctx further), then re-baseline against the post-work ctx meter.
func (b *baseBridge) serveCycles(currentVMCycles uint64, doHostWork func() error) (newBaseline uint64, err error) {
	delta := uint64(0)
	if currentVMCycles > b.allCyclesUsed {
		delta = currentVMCycles - b.allCyclesUsed
	}
	if err := b.ctx.SubCycles(delta); err != nil {
		return b.allCyclesUsed, err
	}
	if err := doHostWork(); err != nil {
		return b.ctx.CyclesUsed(), err
	}
	b.allCyclesUsed = b.ctx.CyclesUsed()
	return b.allCyclesUsed, nil
}

// ReconcileHalt is called once when the VM halts (returns or traps):
// any vm_cycles beyond the last reconciled baseline is deducted from ctx.
func (b *baseBridge) ReconcileHalt(finalVMCycles uint64) error {
	delta := uint64(0)
	if finalVMCycles > b.allCyclesUsed {
		delta = finalVMCycles - b.allCyclesUsed
	}
	if err := b.ctx.SubCycles(delta); err != nil {
		return err
	}
	b.allCyclesUsed = b.ctx.CyclesUsed()
	return nil
}

func (b *baseBridge) Context() *ServiceContext { return b.ctx }

func (b *baseBridge) GetStorage(contract Address, key []byte) ([]byte, error) {
	combined := contractStorageKey(contract, key)
	val, _ := b.engine.storage.Get(combined)
	return val, nil
}

func (b *baseBridge) serviceDispatch(write bool, service, method string, payload []byte) ([]byte, error) {
	return b.engine.dispatch(b.ctx, write, service, method, payload)
}

// ReadonlyBridge rejects every write-capable syscall.
type ReadonlyBridge struct{ baseBridge }

func NewReadonlyBridge(ctx *ServiceContext, engine *ContractExecutionEngine) *ReadonlyBridge {
	return &ReadonlyBridge{baseBridge{ctx: ctx, engine: engine}}
}

func (b *ReadonlyBridge) Readonly() bool { return true }

func (b *ReadonlyBridge) SetStorage(contract Address, key, value []byte) error {
	return ErrWriteInReadonlyContext()
}

func (b *ReadonlyBridge) ContractCall(addr Address, args []byte, readonly bool) ([]byte, error) {
	if !readonly {
		return nil, ErrWriteInReadonlyContext()
	}
	return b.engine.call(b.ctx, addr, args)
}

func (b *ReadonlyBridge) ServiceRead(service, method string, payload []byte) ([]byte, error) {
	return b.serviceDispatch(false, service, method, payload)
}

func (b *ReadonlyBridge) ServiceWrite(service, method string, payload []byte) ([]byte, error) {
	return nil, ErrWriteInReadonlyContext()
}

// WriteableBridge permits the full syscall surface.
type WriteableBridge struct{ baseBridge }

func NewWriteableBridge(ctx *ServiceContext, engine *ContractExecutionEngine) *WriteableBridge {
	return &WriteableBridge{baseBridge{ctx: ctx, engine: engine}}
}

func (b *WriteableBridge) Readonly() bool { return false }

func (b *WriteableBridge) SetStorage(contract Address, key, value []byte) error {
	combined := contractStorageKey(contract, key)
	b.engine.storage.Set(combined, value)
	return nil
}

func (b *WriteableBridge) ContractCall(addr Address, args []byte, readonly bool) ([]byte, error) {
	if readonly {
		return b.engine.call(b.ctx, addr, args)
	}
	return b.engine.exec(b.ctx, addr, args)
}

func (b *WriteableBridge) ServiceRead(service, method string, payload []byte) ([]byte, error) {
	return b.serviceDispatch(false, service, method, payload)
}

func (b *WriteableBridge) ServiceWrite(service, method string, payload []byte) ([]byte, error) {
	return b.serviceDispatch(true, service, method, payload)
}

func contractStorageKey(contract Address, userKey []byte) []byte {
	h := hashBytes(append(append([]byte{}, contract[:]...), userKey...))
	return h[:]
}

// --- fixed service/method dispatch tables -----------------------------
//
// dispatch is the bridge's allow-list: unknown service -> ServiceNotFound,
// unknown method -> MethodNotFound, undecodable payload -> Serde.

func (e *ContractExecutionEngine) dispatch(ctx *ServiceContext, write bool, service, method string, payload []byte) ([]byte, error) {
	switch service {
	case "asset":
		return e.dispatchAsset(ctx, write, method, payload)
	case "kyc":
		return e.dispatchKyc(ctx, write, method, payload)
	case "transfer_quota":
		return e.dispatchQuota(ctx, write, method, payload)
	default:
		return nil, ErrServiceNotFound(service)
	}
}

func (e *ContractExecutionEngine) dispatchAsset(ctx *ServiceContext, write bool, method string, payload []byte) ([]byte, error) {
	switch method {
	case "get_balance":
		var req struct {
			Account Address
			AssetID Hash
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ErrSerde(err)
		}
		v, err := e.asset.GetBalance(ctx, req.Account, req.AssetID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	case "transfer":
		if !write {
			return nil, ErrWriteInReadonlyContext()
		}
		var req struct {
			AssetID Hash
			To      Address
			Value   uint64
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ErrSerde(err)
		}
		if err := e.asset.Transfer(ctx, req.AssetID, req.To, req.Value); err != nil {
			return nil, err
		}
		return json.Marshal(true)
	default:
		return nil, ErrMethodNotFound("asset", method)
	}
}

func (e *ContractExecutionEngine) dispatchKyc(ctx *ServiceContext, write bool, method string, payload []byte) ([]byte, error) {
	switch method {
	case "eval_user_tag_expression":
		var req struct {
			User string
			Expr string
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ErrSerde(err)
		}
		v, err := e.kyc.EvalUserTagExpression(ctx, req.User, req.Expr)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	case "register_org":
		if !write {
			return nil, ErrWriteInReadonlyContext()
		}
		var req struct {
			Name          string
			Description   string
			Admin         Address
			SupportedTags []string
			PubKey        []byte
			Signature     []byte
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ErrSerde(err)
		}
		if err := e.kyc.RegisterOrg(ctx, req.Name, req.Description, req.Admin, req.SupportedTags, req.PubKey, req.Signature); err != nil {
			return nil, err
		}
		return json.Marshal(true)
	case "change_org_approved":
		if !write {
			return nil, ErrWriteInReadonlyContext()
		}
		var req struct {
			Name     string
			Approved bool
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ErrSerde(err)
		}
		if err := e.kyc.ChangeOrgApproved(ctx, req.Name, req.Approved); err != nil {
			return nil, err
		}
		return json.Marshal(true)
	default:
		return nil, ErrMethodNotFound("kyc", method)
	}
}

func (e *ContractExecutionEngine) dispatchQuota(ctx *ServiceContext, write bool, method string, payload []byte) ([]byte, error) {
	switch method {
	case "get_record":
		var req struct {
			AssetID Hash
			Account Address
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ErrSerde(err)
		}
		rec, err := e.quota.GetRecord(ctx, req.AssetID, req.Account)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rec)
	default:
		return nil, ErrMethodNotFound("transfer_quota", method)
	}
}
