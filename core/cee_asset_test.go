package core

import "testing"

func newAssetLedgerForTest() (*AssetLedger, *ServiceContext, Address) {
	store := NewStore()
	ledger := NewAssetLedger(store, nil)
	admin := Address{1}
	ctx := NewServiceContext(admin, nil, 1, 0, 10_000_000)
	return ledger, ctx, admin
}

func TestInitGenesisRejectsSupplyMismatch(t *testing.T) {
	ledger, ctx, admin := newAssetLedgerForTest()
	asset := Asset{ID: Hash{0x01}, Name: "Native", Symbol: "NAT", Admin: admin, Supply: 100}
	issuers := []InitGenesisIssuer{{Issuer: Address{2}, Balance: 40}, {Issuer: Address{3}, Balance: 40}}

	if err := ledger.InitGenesis(ctx, asset, issuers); err == nil {
		t.Fatalf("expected supply mismatch (80 != 100) to fail")
	}
}

func TestInitGenesisDistributesIssuerBalances(t *testing.T) {
	ledger, ctx, admin := newAssetLedgerForTest()
	asset := Asset{ID: Hash{0x01}, Name: "Native", Symbol: "NAT", Admin: admin, Supply: 80}
	issuers := []InitGenesisIssuer{{Issuer: Address{2}, Balance: 40}, {Issuer: Address{3}, Balance: 40}}

	if err := ledger.InitGenesis(ctx, asset, issuers); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bal, err := ledger.GetBalance(ctx, Address{2}, asset.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bal != 40 {
		t.Fatalf("expected issuer balance 40, got %d", bal)
	}

	native, err := ledger.GetNativeAsset(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if native.ID != asset.ID {
		t.Fatalf("expected native asset pointer to be set")
	}
}

func TestCreateAssetRejectsDuplicate(t *testing.T) {
	ledger, ctx, admin := newAssetLedgerForTest()
	if _, err := ledger.CreateAsset(ctx, "Token", "TKN", admin, 1_000, 2, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ledger.CreateAsset(ctx, "Token", "TKN", admin, 1_000, 2, true); err == nil {
		t.Fatalf("expected identical creation parameters to derive the same asset id and be rejected")
	}
}

func TestTransferMovesValue(t *testing.T) {
	ledger, ctx, admin := newAssetLedgerForTest()
	asset, err := ledger.CreateAsset(ctx, "Token", "TKN", admin, 1_000, 2, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	to := Address{9}
	if err := ledger.Transfer(ctx, asset.ID, to, 300); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fromBal, _ := ledger.GetBalance(ctx, admin, asset.ID)
	toBal, _ := ledger.GetBalance(ctx, to, asset.ID)
	if fromBal != 700 || toBal != 300 {
		t.Fatalf("expected 700/300 split, got %d/%d", fromBal, toBal)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	ledger, ctx, admin := newAssetLedgerForTest()
	asset, err := ledger.CreateAsset(ctx, "Token", "TKN", admin, 100, 2, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ledger.Transfer(ctx, asset.ID, Address{9}, 200); err == nil {
		t.Fatalf("expected insufficient balance error")
	}
}

func TestApproveAlwaysOverwritesIncludingZero(t *testing.T) {
	ledger, ctx, admin := newAssetLedgerForTest()
	asset, err := ledger.CreateAsset(ctx, "Token", "TKN", admin, 1_000, 2, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spender := Address{9}
	if err := ledger.Approve(ctx, asset.ID, spender, 500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	allowance, _ := ledger.GetAllowance(ctx, admin, spender, asset.ID)
	if allowance != 500 {
		t.Fatalf("expected allowance 500, got %d", allowance)
	}

	if err := ledger.Approve(ctx, asset.ID, spender, 0); err != nil {
		t.Fatalf("unexpected error re-approving to zero: %v", err)
	}
	allowance, _ = ledger.GetAllowance(ctx, admin, spender, asset.ID)
	if allowance != 0 {
		t.Fatalf("expected allowance overwritten to 0, got %d", allowance)
	}
}

func TestApproveToSelfRejected(t *testing.T) {
	ledger, ctx, admin := newAssetLedgerForTest()
	asset, err := ledger.CreateAsset(ctx, "Token", "TKN", admin, 1_000, 2, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ledger.Approve(ctx, asset.ID, admin, 100); err == nil {
		t.Fatalf("expected approve-to-self to be rejected")
	}
}

func TestTransferFromSpendsAllowance(t *testing.T) {
	ledger, ctx, admin := newAssetLedgerForTest()
	asset, err := ledger.CreateAsset(ctx, "Token", "TKN", admin, 1_000, 2, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spender := Address{9}
	recipient := Address{10}
	if err := ledger.Approve(ctx, asset.ID, spender, 200); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spenderCtx := NewServiceContext(spender, nil, 1, 0, 10_000_000)
	if err := ledger.TransferFrom(spenderCtx, asset.ID, admin, recipient, 150); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	remaining, _ := ledger.GetAllowance(ctx, admin, spender, asset.ID)
	if remaining != 50 {
		t.Fatalf("expected remaining allowance 50, got %d", remaining)
	}

	if err := ledger.TransferFrom(spenderCtx, asset.ID, admin, recipient, 100); err == nil {
		t.Fatalf("expected spending beyond the remaining allowance to fail")
	}
}

func TestMintAndBurnAdjustSupply(t *testing.T) {
	ledger, ctx, admin := newAssetLedgerForTest()
	asset, err := ledger.CreateAsset(ctx, "Token", "TKN", admin, 1_000, 2, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ledger.Mint(ctx, asset.ID, admin, 500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updated, err := ledger.GetAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Supply != 1_500 {
		t.Fatalf("expected supply 1500 after mint, got %d", updated.Supply)
	}

	if err := ledger.Burn(ctx, asset.ID, admin, 1_500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ledger.Burn(ctx, asset.ID, admin, 1); err == nil {
		t.Fatalf("expected burn beyond balance to fail")
	}
}

func TestRelayRequiresRelayableFlag(t *testing.T) {
	ledger, ctx, admin := newAssetLedgerForTest()
	asset, err := ledger.CreateAsset(ctx, "Token", "TKN", admin, 1_000, 2, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ledger.Relay(ctx, asset.ID, Address{9}, 10); err == nil {
		t.Fatalf("expected Relay to fail for a non-relayable asset")
	}
}

func TestChangeAdminRequiresCurrentAdmin(t *testing.T) {
	ledger, ctx, admin := newAssetLedgerForTest()
	asset, err := ledger.CreateAsset(ctx, "Token", "TKN", admin, 1_000, 2, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	strangerCtx := NewServiceContext(Address{99}, nil, 1, 0, 10_000_000)
	if err := ledger.ChangeAdmin(strangerCtx, asset.ID, Address{42}); err == nil {
		t.Fatalf("expected ChangeAdmin by a non-admin to fail")
	}
	if err := ledger.ChangeAdmin(ctx, asset.ID, Address{42}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEffectiveCallerOverrideViaExtra(t *testing.T) {
	ledger, ctx, admin := newAssetLedgerForTest()
	asset, err := ledger.CreateAsset(ctx, "Token", "TKN", admin, 1_000, 2, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	impersonated := Address{55}
	hexCaller := impersonated.Hex()[2:] // strip the 0x prefix effectiveCaller expects raw hex
	overrideCtx := ctx.WithExtra([]byte(hexCaller))
	if err := ledger.Approve(overrideCtx, asset.ID, Address{9}, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := ledger.GetAllowance(ctx, impersonated, Address{9}, asset.ID); got != 7 {
		t.Fatalf("expected the allowance to be recorded under the impersonated owner, got %d", got)
	}

	badCtx := ctx.WithExtra([]byte("not-hex"))
	if err := ledger.Transfer(badCtx, asset.ID, Address{9}, 1); err == nil {
		t.Fatalf("expected an unparsable Extra caller override to fail")
	}
}
