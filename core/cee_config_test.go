package core

import (
	"os"
	"testing"
)

const testGenesisYAML = `
admins:
  - "0101010101010101010101010101010101010101"
kyc_orgs:
  - name: "Acme"
    description: "an org"
    admin: "0101010101010101010101010101010101010101"
    supported_tags: ["tier"]
    approved: true
assets:
  - name: "Token"
    symbol: "TKN"
    admin: "0101010101010101010101010101010101010101"
    supply: 1000
    precision: 2
    relayable: true
    issuers:
      - issuer: "0101010101010101010101010101010101010101"
        balance: 1000
quota_configs:
  - asset_index: 0
    activated: true
    rules:
      daily:
        - kyc_expr: "Acme.tier:gold"
          quota: 500
`

func writeTempGenesis(t *testing.T, contents string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "genesis-*.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.WriteString(contents); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return f.Name()
}

func TestLoadGenesisConfigParsesDocument(t *testing.T) {
	path := writeTempGenesis(t, testGenesisYAML)
	cfg, err := LoadGenesisConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Admins) != 1 || len(cfg.Assets) != 1 || len(cfg.KycOrgs) != 1 || len(cfg.QuotaCfgs) != 1 {
		t.Fatalf("expected one entry in each section, got %+v", cfg)
	}
}

func TestLoadGenesisConfigMissingFile(t *testing.T) {
	if _, err := LoadGenesisConfig("/nonexistent/genesis.yaml"); err == nil {
		t.Fatalf("expected an error reading a missing file")
	}
}

func TestBootstrapWiresServicesFromGenesis(t *testing.T) {
	path := writeTempGenesis(t, testGenesisYAML)
	cfg, err := LoadGenesisConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store, auth, kyc, quota, asset, engine, err := Bootstrap(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store == nil || auth == nil || kyc == nil || quota == nil || asset == nil || engine == nil {
		t.Fatalf("expected all services to be wired, got a nil component")
	}

	admin := Address{1}
	ctx := NewServiceContext(admin, nil, 1, 0, 10_000_000)
	ok, err := kyc.EvalUserTagExpression(ctx, admin.String(), "Acme.tier:gold")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected no tag match: genesis seeds the org but no user tags")
	}
}

func TestBootstrapRejectsMalformedAdminAddress(t *testing.T) {
	cfg := &GenesisConfig{Admins: []string{"not-hex"}}
	if _, _, _, _, _, _, err := Bootstrap(cfg); err == nil {
		t.Fatalf("expected a malformed admin address to fail bootstrap")
	}
}

func TestBootstrapWithNoAdminsStillWiresServices(t *testing.T) {
	cfg := &GenesisConfig{}
	store, auth, kyc, quota, asset, engine, err := Bootstrap(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store == nil || auth == nil || kyc == nil || quota == nil || asset == nil || engine == nil {
		t.Fatalf("expected all services to be wired even with zero admins")
	}
}
