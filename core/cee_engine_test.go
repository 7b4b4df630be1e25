package core

import "testing"

func newEngineForEngineTest(t *testing.T) (*ContractExecutionEngine, Address, Address) {
	t.Helper()
	store := NewStore()
	admin := Address{1}
	deployer := Address{2}
	auth := NewAuthorizationRegistry([]Address{admin})
	ts := NewTimestampService()
	kyc := NewKycEngine(store)
	quota := NewTransferQuotaEngine(store, kyc, ts)
	asset := NewAssetLedger(store, quota)
	engine := NewContractExecutionEngine(store, auth, asset, kyc, quota)
	return engine, admin, deployer
}

func TestDeployRejectsWithoutDeployGrant(t *testing.T) {
	engine, _, deployer := newEngineForEngineTest(t)
	txHash := Hash{0x01}
	ctx := NewServiceContext(deployer, &txHash, 1, 0, 10_000_000)

	if _, err := engine.Deploy(ctx, []byte{0x00}, InterpreterBinary, nil); err == nil {
		t.Fatalf("expected Deploy without a Deploy grant to fail")
	}
}

func TestDeployRequiresTransactionContext(t *testing.T) {
	engine, admin, deployer := newEngineForEngineTest(t)
	adminCtx := NewServiceContext(admin, nil, 1, 0, 10_000_000)
	if err := engine.auth.Grant(adminCtx, deployer, KindDeploy); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctxNoTx := NewServiceContext(deployer, nil, 1, 0, 10_000_000)
	if _, err := engine.Deploy(ctxNoTx, []byte{0x00}, InterpreterBinary, nil); err == nil {
		t.Fatalf("expected Deploy without a transaction hash to fail")
	}
}

func TestCallRejectsWithoutContractGrant(t *testing.T) {
	engine, _, _ := newEngineForEngineTest(t)
	ctx := NewServiceContext(Address{3}, nil, 1, 0, 10_000_000)

	if _, err := engine.Call(ctx, Address{99}, nil); err == nil {
		t.Fatalf("expected Call against an unauthorized contract address to fail")
	}
}

func TestGetContractNotFound(t *testing.T) {
	engine, admin, _ := newEngineForEngineTest(t)
	ctx := NewServiceContext(admin, nil, 1, 0, 10_000_000)

	if _, err := engine.GetContract(ctx, Address{123}, false, nil); err == nil {
		t.Fatalf("expected GetContract on an undeployed address to fail")
	}
}

func TestApproveContractRequiresAdmin(t *testing.T) {
	engine, _, deployer := newEngineForEngineTest(t)
	ctx := NewServiceContext(deployer, nil, 1, 0, 10_000_000)

	if err := engine.ApproveContract(ctx, Address{7}); err == nil {
		t.Fatalf("expected ApproveContract by a non-admin to fail")
	}
}

func TestCheckDeployAuthReflectsGrants(t *testing.T) {
	engine, admin, deployer := newEngineForEngineTest(t)
	adminCtx := NewServiceContext(admin, nil, 1, 0, 10_000_000)
	if err := engine.GrantDeployAuth(adminCtx, deployer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := engine.CheckDeployAuth([]Address{deployer, Address{77}})
	if len(out) != 1 || out[0] != deployer {
		t.Fatalf("expected only the granted deployer back, got %v", out)
	}
}
