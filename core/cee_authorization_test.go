package core

import "testing"

func TestAuthorizationGrantRequiresAdmin(t *testing.T) {
	admin := Address{1}
	stranger := Address{2}
	target := Address{3}
	reg := NewAuthorizationRegistry([]Address{admin})
	reg.SetContractExistsFunc(func(Address) bool { return true })

	strangerCtx := NewServiceContext(stranger, nil, 1, 0, 1_000_000)
	if err := reg.Grant(strangerCtx, target, KindDeploy); err == nil {
		t.Fatalf("expected non-admin Grant to fail")
	}

	adminCtx := NewServiceContext(admin, nil, 1, 0, 1_000_000)
	if err := reg.Grant(adminCtx, target, KindDeploy); err != nil {
		t.Fatalf("unexpected error granting as admin: %v", err)
	}
	if !reg.Granted(target, KindDeploy) {
		t.Fatalf("expected target to hold a Deploy grant")
	}
}

func TestAuthorizationGrantIsIdempotent(t *testing.T) {
	admin := Address{1}
	granter2 := Address{9}
	target := Address{3}
	reg := NewAuthorizationRegistry([]Address{admin, granter2})
	reg.SetContractExistsFunc(func(Address) bool { return true })

	adminCtx := NewServiceContext(admin, nil, 1, 0, 1_000_000)
	if err := reg.Grant(adminCtx, target, KindDeploy); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	authz, _ := reg.AuthorizerOf(target, KindDeploy)
	if authz.Granter != admin {
		t.Fatalf("expected original granter recorded")
	}

	granter2Ctx := NewServiceContext(granter2, nil, 1, 0, 1_000_000)
	if err := reg.Grant(granter2Ctx, target, KindDeploy); err != nil {
		t.Fatalf("unexpected error re-granting: %v", err)
	}
	authz, _ = reg.AuthorizerOf(target, KindDeploy)
	if authz.Granter != admin {
		t.Fatalf("expected idempotent grant to keep the original granter, got %v", authz.Granter)
	}
}

func TestAuthorizationContractGrantRequiresDeployedCode(t *testing.T) {
	admin := Address{1}
	target := Address{3}
	reg := NewAuthorizationRegistry([]Address{admin})
	reg.SetContractExistsFunc(func(Address) bool { return false })

	adminCtx := NewServiceContext(admin, nil, 1, 0, 1_000_000)
	if err := reg.Grant(adminCtx, target, KindContract); err == nil {
		t.Fatalf("expected Contract grant to fail without a deployed contract")
	}

	reg.SetContractExistsFunc(func(Address) bool { return true })
	if err := reg.Grant(adminCtx, target, KindContract); err != nil {
		t.Fatalf("unexpected error once code exists: %v", err)
	}
}

func TestAuthorizationRevokeNonexistentIsNoop(t *testing.T) {
	admin := Address{1}
	target := Address{3}
	reg := NewAuthorizationRegistry([]Address{admin})
	adminCtx := NewServiceContext(admin, nil, 1, 0, 1_000_000)

	if err := reg.Revoke(adminCtx, target, KindDeploy); err != nil {
		t.Fatalf("expected revoking a non-existent grant to be a no-op, got %v", err)
	}
}

func TestAuthorizationDeployAndContractKindsAreDisjoint(t *testing.T) {
	admin := Address{1}
	target := Address{3}
	reg := NewAuthorizationRegistry([]Address{admin})
	reg.SetContractExistsFunc(func(Address) bool { return true })
	adminCtx := NewServiceContext(admin, nil, 1, 0, 1_000_000)

	if err := reg.Grant(adminCtx, target, KindDeploy); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Granted(target, KindContract) {
		t.Fatalf("expected KindContract to remain ungranted after a KindDeploy grant")
	}
}

func TestAuthorizationCheckDeployAuthFilters(t *testing.T) {
	admin := Address{1}
	granted := Address{3}
	ungranted := Address{4}
	reg := NewAuthorizationRegistry([]Address{admin})
	reg.SetContractExistsFunc(func(Address) bool { return true })
	adminCtx := NewServiceContext(admin, nil, 1, 0, 1_000_000)
	if err := reg.Grant(adminCtx, granted, KindDeploy); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := reg.CheckDeployAuth([]Address{granted, ungranted})
	if len(out) != 1 || out[0] != granted {
		t.Fatalf("expected only the granted address to be returned, got %v", out)
	}
}
