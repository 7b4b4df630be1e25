package core

// ContractExecutionEngine is the sandboxed-VM host: it authorizes
// deploy/call/exec against the AuthorizationRegistry, derives contract
// addresses from the triggering transaction hash, namespaces contract
// storage, and runs the deployed program inside a wasmer-go sandbox
// through a readonly or writeable ChainBridge.
//
// No Go RISC-V interpreter is available, so wasmer-go's WebAssembly
// sandbox stands in for the original ckb-vm substrate, with the cycle-
// reconciliation protocol preserved by charging at every host-function
// boundary rather than per guest instruction (see cee_bridge.go).
//
// Grounded on original_source/services/riscv/src/lib.rs (RiscvService:
// deploy/call/exec/get_contract/check_deploy_auth/grant_deploy_auth/
// revoke_deploy_auth/approve_contract/revoke_contract) and contracts.go's
// registry/Deploy/Invoke shape.

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/wasmerio/wasmer-go/wasmer"

	log "github.com/sirupsen/logrus"
)

// InterpreterKind selects how deployed code is executed.
type InterpreterKind int

const (
	InterpreterBinary InterpreterKind = iota
	InterpreterDuktape
)

// ContractRecord is the durable per-contract record.
type ContractRecord struct {
	CodeHash        Hash              `json:"code_hash"`
	InterpreterKind InterpreterKind   `json:"interpreter_kind"`
	Authorizer      Address           `json:"authorizer"`
}

// duktapeInterpreterBlob is the package-level slot run() loads for
// InterpreterDuktape contracts, passing the deployed code to it as an
// argument rather than executing it directly. Nothing in this package
// assigns it: the slot is empty, so running an InterpreterDuktape contract
// fails with a VmError when the module is compiled.
var duktapeInterpreterBlob []byte

const duktapeInterpreterVersion = "duktape-builtin-v1"

type ContractExecutionEngine struct {
	contracts *ScopedMap // address -> ContractRecord (json)
	code      *ScopedMap // code_hash -> bytes, write-once
	storage   *ScopedMap // hash(contract||key) -> bytes

	auth  *AuthorizationRegistry
	asset *AssetLedger
	kyc   *KycEngine
	quota *TransferQuotaEngine

	wasmEngine *wasmer.Engine
	logger     *log.Logger
}

func NewContractExecutionEngine(store *Store, auth *AuthorizationRegistry, asset *AssetLedger, kyc *KycEngine, quota *TransferQuotaEngine) *ContractExecutionEngine {
	e := &ContractExecutionEngine{
		contracts:  store.AllocOrRecoverMap("riscv/contracts"),
		code:       store.AllocOrRecoverMap("riscv/code"),
		storage:    store.AllocOrRecoverMap("riscv/storage"),
		auth:       auth,
		asset:      asset,
		kyc:        kyc,
		quota:      quota,
		wasmEngine: wasmer.NewEngine(),
		logger:     log.StandardLogger(),
	}
	auth.SetContractExistsFunc(e.hasContract)
	return e
}

func (e *ContractExecutionEngine) hasContract(addr Address) bool {
	_, ok := e.contracts.Get(addr[:])
	return ok
}

// DeployResult is the return value of Deploy.
type DeployResult struct {
	Address Address
	InitRet []byte
}

// Deploy stores code, derives the contract address from the transaction
// hash, and runs `init` in a writeable bridge. Requires a Deploy grant on
// ctx.Caller. Deploying outside a transaction context (no TxHash) is fatal.
func (e *ContractExecutionEngine) Deploy(ctx *ServiceContext, code []byte, kind InterpreterKind, initArgs []byte) (*DeployResult, error) {
	if err := ctx.SubCycles(21_000 + uint64(len(code))*10); err != nil {
		return nil, err
	}
	if !e.auth.Granted(ctx.Caller, KindDeploy) {
		return nil, ErrNonAuthorized()
	}
	if ctx.TxHash == nil {
		return nil, ErrFormat("deploy requires a transaction context (tx_hash)")
	}

	addr := deriveContractAddress(*ctx.TxHash)
	codeHash := Hash(sha256.Sum256(code))
	e.code.Set(codeHash[:], code)

	record := ContractRecord{CodeHash: codeHash, InterpreterKind: kind, Authorizer: ctx.Caller}
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, ErrSerde(err)
	}
	e.contracts.Set(addr[:], raw)

	bridge := NewWriteableBridge(ctx, e)
	ret, err := e.run(bridge, addr, record, code, initArgs, true)
	if err != nil {
		return nil, err
	}
	ctx.Emit("riscv", "Deploy", addr.String())
	return &DeployResult{Address: addr, InitRet: ret}, nil
}

// deriveContractAddress computes truncate20(hash(tx_hash)).
func deriveContractAddress(txHash Hash) Address {
	h := sha256.Sum256(txHash[:])
	var addr Address
	copy(addr[:], h[:20])
	return addr
}

// Call runs the VM in a readonly bridge; requires a Contract grant.
func (e *ContractExecutionEngine) Call(ctx *ServiceContext, addr Address, args []byte) ([]byte, error) {
	return e.call(ctx, addr, args)
}

func (e *ContractExecutionEngine) call(ctx *ServiceContext, addr Address, args []byte) ([]byte, error) {
	if !e.auth.Granted(addr, KindContract) {
		return nil, ErrNonAuthorized()
	}
	record, code, err := e.loadContract(addr)
	if err != nil {
		return nil, err
	}
	bridge := NewReadonlyBridge(ctx, e)
	return e.run(bridge, addr, *record, code, args, false)
}

// Exec runs the VM in a writeable bridge; requires a Contract grant.
func (e *ContractExecutionEngine) Exec(ctx *ServiceContext, addr Address, args []byte) ([]byte, error) {
	return e.exec(ctx, addr, args)
}

func (e *ContractExecutionEngine) exec(ctx *ServiceContext, addr Address, args []byte) ([]byte, error) {
	if !e.auth.Granted(addr, KindContract) {
		return nil, ErrNonAuthorized()
	}
	record, code, err := e.loadContract(addr)
	if err != nil {
		return nil, err
	}
	bridge := NewWriteableBridge(ctx, e)
	return e.run(bridge, addr, *record, code, args, false)
}

func (e *ContractExecutionEngine) loadContract(addr Address) (*ContractRecord, []byte, error) {
	raw, ok := e.contracts.Get(addr[:])
	if !ok {
		return nil, nil, ErrContractNotFound(addr)
	}
	var record ContractRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, nil, ErrSerde(err)
	}
	code, ok := e.code.Get(record.CodeHash[:])
	if !ok {
		return nil, nil, ErrCodeNotFound(record.CodeHash)
	}
	return &record, code, nil
}

// ContractInfo is the response shape for GetContract.
type ContractInfo struct {
	CodeHash        Hash
	InterpreterKind InterpreterKind
	Authorizer      Address
	Code            []byte            `json:",omitempty"`
	Values          map[string][]byte `json:",omitempty"`
}

func (e *ContractExecutionEngine) GetContract(ctx *ServiceContext, addr Address, getCode bool, storageKeys [][]byte) (*ContractInfo, error) {
	if err := ctx.SubCycles(2_000); err != nil {
		return nil, err
	}
	record, code, err := e.loadContract(addr)
	if err != nil {
		return nil, err
	}
	info := &ContractInfo{CodeHash: record.CodeHash, InterpreterKind: record.InterpreterKind, Authorizer: record.Authorizer}
	if getCode {
		info.Code = code
	}
	if len(storageKeys) > 0 {
		info.Values = make(map[string][]byte, len(storageKeys))
		for _, k := range storageKeys {
			v, _ := e.storage.Get(contractStorageKey(addr, k))
			info.Values[string(k)] = v
		}
	}
	return info, nil
}

func (e *ContractExecutionEngine) ApproveContract(ctx *ServiceContext, addr Address) error {
	return e.auth.Grant(ctx, addr, KindContract)
}

func (e *ContractExecutionEngine) RevokeContract(ctx *ServiceContext, addr Address) error {
	return e.auth.Revoke(ctx, addr, KindContract)
}

func (e *ContractExecutionEngine) GrantDeployAuth(ctx *ServiceContext, addr Address) error {
	return e.auth.Grant(ctx, addr, KindDeploy)
}

func (e *ContractExecutionEngine) RevokeDeployAuth(ctx *ServiceContext, addr Address) error {
	return e.auth.Revoke(ctx, addr, KindDeploy)
}

func (e *ContractExecutionEngine) CheckDeployAuth(addresses []Address) []Address {
	return e.auth.CheckDeployAuth(addresses)
}
