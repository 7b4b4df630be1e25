package core

// GenesisConfig is the structured bootstrap file a deployment loads once at
// process start: the admin set, the native-asset issuance, the initial KYC
// organizations, and the per-asset quota configs they gate. Grounded on
// the `yaml.Unmarshal` plus env-driven load pattern used elsewhere in this
// tree's CLI and HTTP front-ends, generalized from "a list of node
// configs" to "the core's own bootstrap record".

import (
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// GenesisAsset mirrors Asset plus the issuer list InitGenesis consumes.
type GenesisAsset struct {
	Name      string              `yaml:"name"`
	Symbol    string              `yaml:"symbol"`
	Admin     string              `yaml:"admin"`
	Supply    uint64              `yaml:"supply"`
	Precision uint64              `yaml:"precision"`
	Relayable bool                `yaml:"relayable"`
	Issuers   []GenesisAssetIssuer `yaml:"issuers"`
}

type GenesisAssetIssuer struct {
	Issuer  string `yaml:"issuer"`
	Balance uint64 `yaml:"balance"`
}

// GenesisKycOrg seeds a KYC organization without a signature: genesis-time
// org seeding where no governance signer yet exists (cee_kyc.go's
// RegisterOrg empty-pubKey path).
type GenesisKycOrg struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Admin         string   `yaml:"admin"`
	SupportedTags []string `yaml:"supported_tags"`
	Approved      bool     `yaml:"approved"`
}

// GenesisQuotaConfig seeds a transfer-quota config for one asset, referenced
// by index into the Assets list.
type GenesisQuotaConfig struct {
	AssetIndex int    `yaml:"asset_index"`
	Activated  bool   `yaml:"activated"`
	Rules      GenesisQuotaRules `yaml:"rules"`
}

type GenesisQuotaRules struct {
	SingleBill []GenesisRule `yaml:"single_bill"`
	Daily      []GenesisRule `yaml:"daily"`
	Monthly    []GenesisRule `yaml:"monthly"`
	Yearly     []GenesisRule `yaml:"yearly"`
}

type GenesisRule struct {
	KycExpr string `yaml:"kyc_expr"`
	Quota   uint64 `yaml:"quota"`
}

// GenesisConfig is the top-level bootstrap document.
type GenesisConfig struct {
	Admins    []string             `yaml:"admins"`
	Assets    []GenesisAsset       `yaml:"assets"`
	KycOrgs   []GenesisKycOrg      `yaml:"kyc_orgs"`
	QuotaCfgs []GenesisQuotaConfig `yaml:"quota_configs"`
}

// LoadDotEnv loads .env into the process environment, where the CLI and
// HTTP front-ends read CEE_GENESIS_PATH, CEE_CALLER and LOG_LEVEL. The
// admin set comes from the genesis document and cycle costs are fixed in
// code; neither is read from the environment. Missing .env is not an
// error: a deployment may rely entirely on the process environment.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.StandardLogger().WithError(err).Debug("no .env file loaded")
	}
}

// LoadGenesisConfig reads the current genesis document format (yaml.v3).
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg GenesisConfig
	if err := yamlv3.Unmarshal(raw, &cfg); err != nil {
		return nil, ErrSerde(err)
	}
	return &cfg, nil
}

// LoadLegacyGenesisConfig reads the pre-yaml.v3 genesis document format
// quota-config migration tooling may still encounter, kept alongside
// LoadGenesisConfig for config-migration compatibility.
func LoadLegacyGenesisConfig(path string) (*GenesisConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg GenesisConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, ErrSerde(err)
	}
	return &cfg, nil
}

// Bootstrap wires a freshly constructed set of core services from a
// GenesisConfig: admin set, asset issuance, KYC orgs, and quota configs.
// Every listed asset is issued through InitGenesis, so the last one listed
// ends up as the native asset. Construction follows the dependency order
// Store -> Authorization Registry ->
// KYC Engine -> Transfer Quota Engine -> Asset Ledger -> Contract
// Execution Engine.
func Bootstrap(cfg *GenesisConfig) (*Store, *AuthorizationRegistry, *KycEngine, *TransferQuotaEngine, *AssetLedger, *ContractExecutionEngine, error) {
	store := NewStore()

	admins := make([]Address, 0, len(cfg.Admins))
	for _, s := range cfg.Admins {
		a, err := ParseAddress(s)
		if err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
		admins = append(admins, a)
	}
	auth := NewAuthorizationRegistry(admins)

	ts := NewTimestampService()
	kyc := NewKycEngine(store)
	quota := NewTransferQuotaEngine(store, kyc, ts)
	asset := NewAssetLedger(store, quota)
	engine := NewContractExecutionEngine(store, auth, asset, kyc, quota)

	if len(admins) == 0 {
		return store, auth, kyc, quota, asset, engine, nil
	}
	genesisCtx := NewServiceContext(admins[0], nil, 0, 0, 1_000_000_000)

	for _, org := range cfg.KycOrgs {
		adminAddr, err := ParseAddress(org.Admin)
		if err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
		if err := kyc.RegisterOrg(genesisCtx, org.Name, org.Description, adminAddr, org.SupportedTags, nil, nil); err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
		if org.Approved {
			govCtx := genesisCtx.WithExtra([]byte(capGovernance))
			if err := kyc.ChangeOrgApproved(govCtx, org.Name, true); err != nil {
				return nil, nil, nil, nil, nil, nil, err
			}
		}
	}

	assetIDs := make([]Hash, len(cfg.Assets))
	for i, ga := range cfg.Assets {
		adminAddr, err := ParseAddress(ga.Admin)
		if err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
		issuers := make([]InitGenesisIssuer, len(ga.Issuers))
		for j, iss := range ga.Issuers {
			issAddr, err := ParseAddress(iss.Issuer)
			if err != nil {
				return nil, nil, nil, nil, nil, nil, err
			}
			issuers[j] = InitGenesisIssuer{Issuer: issAddr, Balance: iss.Balance}
		}
		assetRecord := Asset{
			ID:        deriveAssetID(ga.Name, ga.Symbol, adminAddr, ga.Supply),
			Name:      ga.Name,
			Symbol:    ga.Symbol,
			Admin:     adminAddr,
			Supply:    ga.Supply,
			Precision: ga.Precision,
			Relayable: ga.Relayable,
		}
		if err := asset.InitGenesis(genesisCtx, assetRecord, issuers); err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
		assetIDs[i] = assetRecord.ID
	}

	for _, qc := range cfg.QuotaCfgs {
		if qc.AssetIndex < 0 || qc.AssetIndex >= len(assetIDs) {
			return nil, nil, nil, nil, nil, nil, ErrFormat("quota config references an out-of-range asset index")
		}
		assetID := assetIDs[qc.AssetIndex]
		assetCtx := genesisCtx.WithExtra([]byte(capAssetService))
		if err := quota.CreateAssetConfig(assetCtx, assetID, admins[0]); err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
		full := AssetConfig{
			Admin:            admins[0],
			Activated:        qc.Activated,
			SingleBillQuota:  toRules(qc.Rules.SingleBill),
			DailyQuotaRule:   toRules(qc.Rules.Daily),
			MonthlyQuotaRule: toRules(qc.Rules.Monthly),
			YearlyQuotaRule:  toRules(qc.Rules.Yearly),
		}
		if err := quota.ChangeAssetConfig(genesisCtx, assetID, full); err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
	}

	return store, auth, kyc, quota, asset, engine, nil
}

func toRules(in []GenesisRule) []Rule {
	out := make([]Rule, len(in))
	for i, r := range in {
		out[i] = Rule{KycExpr: r.KycExpr, Quota: r.Quota}
	}
	return out
}
