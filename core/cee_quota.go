package core

// TransferQuotaEngine enforces time-bucketed transfer limits per asset,
// consulting the KYC engine's tag expressions to pick the applicable rule
// in each bucket. Grounded on
// original_source/services/transfer_quota/src/lib.rs (quota_transfer,
// check_quota, create_asset_config) and .../types.rs (AssetConfig, Rule,
// Record, QuotaType).

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

// Rule pairs a KYC tag expression with the quota granted when it matches.
type Rule struct {
	KycExpr string `json:"kyc_expr"`
	Quota   uint64 `json:"quota"`
}

// AssetConfig is the per-asset quota configuration.
type AssetConfig struct {
	Admin            Address `json:"admin"`
	Activated        bool    `json:"activated"`
	SingleBillQuota  []Rule  `json:"single_bill_quota"`
	DailyQuotaRule   []Rule  `json:"daily_quota_rule"`
	MonthlyQuotaRule []Rule  `json:"monthly_quota_rule"`
	YearlyQuotaRule  []Rule  `json:"yearly_quota_rule"`
}

// QuotaRecord is the per (asset, account) usage counter set.
type QuotaRecord struct {
	LastOpTimeMs uint64 `json:"last_op_time_ms"`
	DailyUsed    uint64 `json:"daily_used"`
	MonthlyUsed  uint64 `json:"monthly_used"`
	YearlyUsed   uint64 `json:"yearly_used"`
}

// bucket identifies one of the four fixed-order temporal windows.
type bucket string

const (
	bucketSingleBill bucket = "SingleBill"
	bucketDaily      bucket = "Daily"
	bucketMonthly    bucket = "Monthly"
	bucketYearly     bucket = "Yearly"
)

var bucketOrder = []bucket{bucketSingleBill, bucketDaily, bucketMonthly, bucketYearly}

type TransferQuotaEngine struct {
	configs *ScopedMap // asset_id -> AssetConfig (json)
	records *ScopedMap // asset_id|account -> QuotaRecord (json)
	kyc     *KycEngine
	ts      *TimestampService
	logger  *log.Logger
}

func NewTransferQuotaEngine(store *Store, kyc *KycEngine, ts *TimestampService) *TransferQuotaEngine {
	return &TransferQuotaEngine{
		configs: store.AllocOrRecoverMap("transfer_quota/asset_config"),
		records: store.AllocOrRecoverMap("transfer_quota/account_info"),
		kyc:     kyc,
		ts:      ts,
		logger:  log.StandardLogger(),
	}
}

func recordKey(assetID Hash, account Address) []byte {
	return append(append([]byte{}, assetID[:]...), account[:]...)
}

// CreateAssetConfig registers quota enforcement for a new asset. Privileged:
// the caller must present the asset-service capability token. Idempotent-
// reject: fails if a config already exists for asset_id.
func (q *TransferQuotaEngine) CreateAssetConfig(ctx *ServiceContext, assetID Hash, admin Address) error {
	if err := ctx.SubCycles(21_000); err != nil {
		return err
	}
	if !ctx.hasCapability(capAssetService) {
		return ErrUnauthorized("create_asset_config requires the asset-service capability token")
	}
	if _, ok := q.configs.Get(assetID[:]); ok {
		return ErrAssetConfigExist(assetID)
	}
	cfg := AssetConfig{Admin: admin, Activated: false}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return ErrSerde(err)
	}
	q.configs.Set(assetID[:], raw)
	ctx.Emit("transfer_quota", "CreateAssetConfig", string(raw))
	return nil
}

// GetAssetConfig is a plain read.
func (q *TransferQuotaEngine) GetAssetConfig(ctx *ServiceContext, assetID Hash) (*AssetConfig, error) {
	if err := ctx.SubCycles(2_000); err != nil {
		return nil, err
	}
	raw, ok := q.configs.Get(assetID[:])
	if !ok {
		return nil, ErrAssetNotFound(assetID)
	}
	var cfg AssetConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, ErrSerde(err)
	}
	return &cfg, nil
}

// ChangeAssetConfig replaces the stored config; caller must be the config's
// admin (checked here via IsAssetAdmin).
func (q *TransferQuotaEngine) ChangeAssetConfig(ctx *ServiceContext, assetID Hash, cfg AssetConfig) error {
	if err := ctx.SubCycles(21_000); err != nil {
		return err
	}
	if !q.IsAssetAdmin(assetID, ctx.Caller) {
		return ErrNonAuthorized()
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return ErrSerde(err)
	}
	q.configs.Set(assetID[:], raw)
	ctx.Emit("transfer_quota", "ChangeAssetConfig", string(raw))
	return nil
}

func (q *TransferQuotaEngine) IsAssetAdmin(assetID Hash, addr Address) bool {
	raw, ok := q.configs.Get(assetID[:])
	if !ok {
		return false
	}
	var cfg AssetConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return false
	}
	return cfg.Admin == addr
}

func (q *TransferQuotaEngine) GetRecord(ctx *ServiceContext, assetID Hash, account Address) (*QuotaRecord, error) {
	if err := ctx.SubCycles(2_000); err != nil {
		return nil, err
	}
	return q.loadRecord(assetID, account), nil
}

func (q *TransferQuotaEngine) ChangeRecord(ctx *ServiceContext, assetID Hash, account Address, rec QuotaRecord) error {
	if err := ctx.SubCycles(21_000); err != nil {
		return err
	}
	if !q.IsAssetAdmin(assetID, ctx.Caller) {
		return ErrNonAuthorized()
	}
	q.storeRecord(assetID, account, rec)
	ctx.Emit("transfer_quota", "ChangeRecord", "")
	return nil
}

func (q *TransferQuotaEngine) loadRecord(assetID Hash, account Address) *QuotaRecord {
	raw, ok := q.records.Get(recordKey(assetID, account))
	if !ok {
		return &QuotaRecord{}
	}
	var rec QuotaRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return &QuotaRecord{}
	}
	return &rec
}

func (q *TransferQuotaEngine) storeRecord(assetID Hash, account Address, rec QuotaRecord) {
	raw, _ := json.Marshal(rec)
	q.records.Set(recordKey(assetID, account), raw)
}

// QuotaTransfer is the enforcement algorithm: privileged (asset-service
// capability token required, unless the caller is the asset
// ledger's own internal path — modeled here identically, since the asset
// ledger always attaches the token before calling in). Iterates the four
// buckets in fixed order; within each, the first KYC-matching rule is
// checked against the bucket's used-amount window.
func (q *TransferQuotaEngine) QuotaTransfer(ctx *ServiceContext, assetID Hash, address Address, amount uint64) error {
	if err := ctx.SubCycles(21_000); err != nil {
		return err
	}
	if !ctx.hasCapability(capAssetService) {
		return ErrUnauthorized("quota_transfer requires the asset-service capability token")
	}

	raw, ok := q.configs.Get(assetID[:])
	if !ok {
		return ErrAssetNotFound(assetID)
	}
	var cfg AssetConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return ErrSerde(err)
	}
	if !cfg.Activated {
		return nil
	}

	rec := q.loadRecord(assetID, address)
	now := q.ts.Now(ctx)

	for _, b := range bucketOrder {
		rules := q.rulesFor(cfg, b)
		matched, rule, err := q.firstMatchingRule(ctx, address, rules)
		if err != nil {
			return err
		}
		if !matched {
			return ErrQuotaNoRuleHit(string(b))
		}

		used := q.usedFor(rec, b, now)
		added := used + amount
		if added < used { // checked overflow
			return ErrQuotaCalcOverflow()
		}
		if added > rule.Quota {
			return ErrQuotaExceed(string(b), added, amount, rule.Quota)
		}
		q.setUsedFor(rec, b, added)
	}

	rec.LastOpTimeMs = now
	q.storeRecord(assetID, address, *rec)
	ctx.Emit("transfer_quota", "QuotaTransfer", "")
	return nil
}

func (q *TransferQuotaEngine) rulesFor(cfg AssetConfig, b bucket) []Rule {
	switch b {
	case bucketSingleBill:
		return cfg.SingleBillQuota
	case bucketDaily:
		return cfg.DailyQuotaRule
	case bucketMonthly:
		return cfg.MonthlyQuotaRule
	default:
		return cfg.YearlyQuotaRule
	}
}

// firstMatchingRule evaluates rules in declaration order; a rule whose KYC
// expression fails to evaluate is skipped, not treated as an abort.
func (q *TransferQuotaEngine) firstMatchingRule(ctx *ServiceContext, address Address, rules []Rule) (bool, Rule, error) {
	for _, rule := range rules {
		ok, err := q.kyc.EvalUserTagExpression(ctx, address.String(), rule.KycExpr)
		if err != nil {
			continue
		}
		if ok {
			return true, rule, nil
		}
	}
	return false, Rule{}, nil
}

// usedFor returns the accumulated usage for bucket b, zeroed if the
// bucket's calendar window has rolled over since rec.LastOpTimeMs.
func (q *TransferQuotaEngine) usedFor(rec *QuotaRecord, b bucket, now uint64) uint64 {
	switch b {
	case bucketSingleBill:
		return 0
	case bucketDaily:
		if !sameDay(rec.LastOpTimeMs, now) {
			return 0
		}
		return rec.DailyUsed
	case bucketMonthly:
		if !sameMonth(rec.LastOpTimeMs, now) {
			return 0
		}
		return rec.MonthlyUsed
	default:
		if !sameYear(rec.LastOpTimeMs, now) {
			return 0
		}
		return rec.YearlyUsed
	}
}

func (q *TransferQuotaEngine) setUsedFor(rec *QuotaRecord, b bucket, v uint64) {
	switch b {
	case bucketSingleBill:
		// SingleBill has no persistent counter.
	case bucketDaily:
		rec.DailyUsed = v
	case bucketMonthly:
		rec.MonthlyUsed = v
	case bucketYearly:
		rec.YearlyUsed = v
	}
}
