package core

import (
	"encoding/json"
	"testing"
)

func newEngineForBridgeTest(t *testing.T) (*ContractExecutionEngine, *ServiceContext, Address) {
	t.Helper()
	store := NewStore()
	admin := Address{1}
	auth := NewAuthorizationRegistry([]Address{admin})
	ts := NewTimestampService()
	kyc := NewKycEngine(store)
	quota := NewTransferQuotaEngine(store, kyc, ts)
	asset := NewAssetLedger(store, quota)
	engine := NewContractExecutionEngine(store, auth, asset, kyc, quota)
	ctx := NewServiceContext(admin, nil, 1, 0, 10_000_000)
	return engine, ctx, admin
}

func TestBaseBridgeServeCyclesChargesDelta(t *testing.T) {
	_, ctx, _ := newEngineForBridgeTest(t)
	bb := &baseBridge{ctx: ctx}

	newBaseline, err := bb.serveCycles(100, func() error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newBaseline != 100 {
		t.Fatalf("expected baseline 100, got %d", newBaseline)
	}
	if ctx.CyclesUsed() != 100 {
		t.Fatalf("expected ctx to have charged 100 cycles, got %d", ctx.CyclesUsed())
	}

	if _, err := bb.serveCycles(150, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.CyclesUsed() != 150 {
		t.Fatalf("expected ctx total 150 after second delta charge, got %d", ctx.CyclesUsed())
	}
}

func TestBaseBridgeServeCyclesAccountsHostWorkSpend(t *testing.T) {
	_, ctx, _ := newEngineForBridgeTest(t)
	bb := &baseBridge{ctx: ctx}

	_, err := bb.serveCycles(10, func() error {
		return ctx.SubCycles(500)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.CyclesUsed() != 510 {
		t.Fatalf("expected host work's own charge to be reflected in the new baseline, got %d", ctx.CyclesUsed())
	}
}

func TestBaseBridgeReconcileHaltChargesRemainder(t *testing.T) {
	_, ctx, _ := newEngineForBridgeTest(t)
	bb := &baseBridge{ctx: ctx}
	if _, err := bb.serveCycles(100, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := bb.ReconcileHalt(130); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.CyclesUsed() != 130 {
		t.Fatalf("expected final reconciliation to charge the remaining delta, got %d", ctx.CyclesUsed())
	}
}

func TestReadonlyBridgeRejectsWrites(t *testing.T) {
	engine, ctx, _ := newEngineForBridgeTest(t)
	bridge := NewReadonlyBridge(ctx, engine)

	if !bridge.Readonly() {
		t.Fatalf("expected Readonly() to report true")
	}
	if err := bridge.SetStorage(Address{2}, []byte("k"), []byte("v")); err == nil {
		t.Fatalf("expected SetStorage to fail in a readonly bridge")
	}
	if _, err := bridge.ServiceWrite("asset", "transfer", nil); err == nil {
		t.Fatalf("expected ServiceWrite to fail in a readonly bridge")
	}
}

func TestWriteableBridgePermitsWrites(t *testing.T) {
	engine, ctx, _ := newEngineForBridgeTest(t)
	bridge := NewWriteableBridge(ctx, engine)

	if bridge.Readonly() {
		t.Fatalf("expected Readonly() to report false")
	}
	if err := bridge.SetStorage(Address{2}, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := bridge.GetStorage(Address{2}, []byte("k"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("expected to read back the stored value, got %q", got)
	}
}

func TestDispatchUnknownServiceAndMethod(t *testing.T) {
	engine, ctx, _ := newEngineForBridgeTest(t)

	if _, err := engine.dispatch(ctx, false, "nonexistent", "whatever", nil); err == nil {
		t.Fatalf("expected unknown service to fail")
	}
	if _, err := engine.dispatch(ctx, false, "asset", "nonexistent_method", nil); err == nil {
		t.Fatalf("expected unknown method to fail")
	}
}

func TestDispatchKycRegisterAndEvalRoundtrip(t *testing.T) {
	engine, ctx, admin := newEngineForBridgeTest(t)

	registerPayload, _ := json.Marshal(struct {
		Name          string
		Description   string
		Admin         Address
		SupportedTags []string
		PubKey        []byte
		Signature     []byte
	}{"Acme", "an org", admin, []string{"tier"}, nil, nil})

	if _, err := engine.dispatch(ctx, true, "kyc", "register_org", registerPayload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.dispatch(ctx, false, "kyc", "register_org", registerPayload); err == nil {
		t.Fatalf("expected register_org to require a writeable call")
	}

	evalPayload, _ := json.Marshal(struct {
		User string
		Expr string
	}{admin.String(), "Acme.tier:gold"})
	raw, err := engine.dispatch(ctx, false, "kyc", "eval_user_tag_expression", evalPayload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result bool
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("unexpected error unmarshaling result: %v", err)
	}
	if result {
		t.Fatalf("expected false: org is not approved and user has no tags yet")
	}
}

func TestDispatchAssetTransferRoundtrip(t *testing.T) {
	engine, ctx, admin := newEngineForBridgeTest(t)
	asset, err := engine.asset.CreateAsset(ctx, "Token", "TKN", admin, 1_000, 2, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	to := Address{9}
	transferPayload, _ := json.Marshal(struct {
		AssetID Hash
		To      Address
		Value   uint64
	}{asset.ID, to, 100})
	if _, err := engine.dispatch(ctx, true, "asset", "transfer", transferPayload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	getBalPayload, _ := json.Marshal(struct {
		Account Address
		AssetID Hash
	}{to, asset.ID})
	raw, err := engine.dispatch(ctx, false, "asset", "get_balance", getBalPayload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var bal uint64
	if err := json.Unmarshal(raw, &bal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bal != 100 {
		t.Fatalf("expected recipient balance 100, got %d", bal)
	}
}
