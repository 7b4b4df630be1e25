package core

// AssetLedger implements balances, allowances, and
// mint/burn/approve/transfer/relay. Transfer, TransferFrom, Relay,
// HookTransferFrom and CreateAsset consult the transfer-quota engine when
// one is configured; Mint, Burn and Approve do not. Grounded on
// original_source/services/asset/src/lib.rs and .../types.rs, in
// particular AssetBalance's custom RLP Encodable/Decodable (canonical
// ascending-address-order allowance encoding) and the "extra as caller
// override" / "always-overwrite update_allowance" semantics called out
// in Design Notes.

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
	log "github.com/sirupsen/logrus"
)

// Asset is the durable per-asset record.
type Asset struct {
	ID        Hash    `json:"id"`
	Name      string  `json:"name"`
	Symbol    string  `json:"symbol"`
	Admin     Address `json:"admin"`
	Supply    uint64  `json:"supply"`
	Precision uint64  `json:"precision"`
	Relayable bool    `json:"relayable"`
}

// allowanceEntry is one (spender, amount) pair; AssetBalance's RLP form
// writes a list of these in ascending spender-address order.
type allowanceEntry struct {
	Spender Address
	Amount  uint64
}

// AssetBalance is the per-(account, asset) ledger entry.
// Its canonical wire form is RLP: [value_u64][list_len][(addr,amount)*] with
// the allowance list sorted by ascending address, matching
// original_source/services/asset/src/types.rs's hand-written Encodable.
type AssetBalance struct {
	Value     uint64
	Allowance map[Address]uint64
}

// rlpAssetBalance is the on-the-wire shape; rlp package derives encode/
// decode for plain structs of this shape, but we still normalise
// Allowance -> sorted slice ourselves to guarantee canonical byte output
// regardless of the in-memory map's iteration order.
type rlpAssetBalance struct {
	Value     uint64
	Allowance []allowanceEntry
}

func (b AssetBalance) EncodeRLP(w io.Writer) error {
	entries := make([]allowanceEntry, 0, len(b.Allowance))
	for addr, amt := range b.Allowance {
		entries = append(entries, allowanceEntry{Spender: addr, Amount: amt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i].Spender[:]) < string(entries[j].Spender[:])
	})
	return rlp.Encode(w, rlpAssetBalance{Value: b.Value, Allowance: entries})
}

func (b *AssetBalance) DecodeRLP(s *rlp.Stream) error {
	var wire rlpAssetBalance
	if err := s.Decode(&wire); err != nil {
		return err
	}
	b.Value = wire.Value
	b.Allowance = make(map[Address]uint64, len(wire.Allowance))
	for _, e := range wire.Allowance {
		b.Allowance[e.Spender] = e.Amount
	}
	return nil
}

func emptyBalance() AssetBalance { return AssetBalance{Allowance: map[Address]uint64{}} }

type AssetLedger struct {
	assets       *ScopedMap // asset_id -> Asset (json)
	balances     *ScopedMap // account|asset_id -> AssetBalance (rlp)
	nativeAsset  *ScopedMap // single key -> asset_id
	quota        *TransferQuotaEngine // nil if not configured
	logger       *log.Logger
}

func NewAssetLedger(store *Store, quota *TransferQuotaEngine) *AssetLedger {
	return &AssetLedger{
		assets:      store.AllocOrRecoverMap("asset/assets"),
		balances:    store.AllocOrRecoverMap("asset/balances"),
		nativeAsset: store.AllocOrRecoverMap("asset/native_asset"),
		quota:       quota,
		logger:      log.StandardLogger(),
	}
}

func balanceKey(account Address, assetID Hash) []byte {
	return append(append([]byte{}, account[:]...), assetID[:]...)
}

// effectiveCaller implements "caller override via extra": when ctx.Extra
// parses as a hex-encoded address, that address is the effective sender;
// an unparsable non-empty Extra is NotHexCaller.
func effectiveCaller(ctx *ServiceContext) (Address, error) {
	if len(ctx.Extra) == 0 {
		return ctx.Caller, nil
	}
	raw, err := hex.DecodeString(string(ctx.Extra))
	if err != nil || len(raw) != 20 {
		return Address{}, ErrNotHexCaller(string(ctx.Extra))
	}
	var addr Address
	copy(addr[:], raw)
	return addr, nil
}

// InitGenesisIssuer is one (issuer, balance) pair for multi-issuer genesis
// (SPEC_FULL.md §5, original_source InitGenesisPayload/IssuerWithBalance).
type InitGenesisIssuer struct {
	Issuer  Address
	Balance uint64
}

// InitGenesis creates the native asset from a list of issuer balances; the
// declared supply must equal the checked-overflow sum of issuer balances
// exactly, else MintNotEqualSupply.
func (a *AssetLedger) InitGenesis(ctx *ServiceContext, asset Asset, issuers []InitGenesisIssuer) error {
	var sum uint64
	for _, iss := range issuers {
		next := sum + iss.Balance
		if next < sum {
			return ErrBalanceOverflow()
		}
		sum = next
	}
	if sum != asset.Supply {
		return ErrMintNotEqualSupply(sum, asset.Supply)
	}
	raw, err := json.Marshal(asset)
	if err != nil {
		return ErrSerde(err)
	}
	a.assets.Set(asset.ID[:], raw)
	a.nativeAsset.Set([]byte("native"), asset.ID[:])
	for _, iss := range issuers {
		bal := emptyBalance()
		bal.Value = iss.Balance
		if err := a.storeBalance(iss.Issuer, asset.ID, bal); err != nil {
			return err
		}
	}
	ctx.Emit("asset", "InitGenesis", string(raw))
	return nil
}

func (a *AssetLedger) GetNativeAsset(ctx *ServiceContext) (*Asset, error) {
	idRaw, ok := a.nativeAsset.Get([]byte("native"))
	if !ok {
		return nil, ErrNoNativeAsset()
	}
	var id Hash
	copy(id[:], idRaw)
	return a.GetAsset(ctx, id)
}

func (a *AssetLedger) GetAsset(ctx *ServiceContext, id Hash) (*Asset, error) {
	if err := ctx.SubCycles(2_000); err != nil {
		return nil, err
	}
	raw, ok := a.assets.Get(id[:])
	if !ok {
		return nil, ErrAssetNotFound(id)
	}
	var asset Asset
	if err := json.Unmarshal(raw, &asset); err != nil {
		return nil, ErrSerde(err)
	}
	return &asset, nil
}

func (a *AssetLedger) loadBalance(account Address, assetID Hash) AssetBalance {
	raw, ok := a.balances.Get(balanceKey(account, assetID))
	if !ok {
		return emptyBalance()
	}
	var bal AssetBalance
	if err := rlp.DecodeBytes(raw, &bal); err != nil {
		return emptyBalance()
	}
	if bal.Allowance == nil {
		bal.Allowance = map[Address]uint64{}
	}
	return bal
}

func (a *AssetLedger) storeBalance(account Address, assetID Hash, bal AssetBalance) error {
	raw, err := rlp.EncodeToBytes(bal)
	if err != nil {
		return ErrSerde(err)
	}
	a.balances.Set(balanceKey(account, assetID), raw)
	return nil
}

func (a *AssetLedger) GetBalance(ctx *ServiceContext, account Address, assetID Hash) (uint64, error) {
	if err := ctx.SubCycles(2_000); err != nil {
		return 0, err
	}
	return a.loadBalance(account, assetID).Value, nil
}

func (a *AssetLedger) GetAllowance(ctx *ServiceContext, owner, spender Address, assetID Hash) (uint64, error) {
	if err := ctx.SubCycles(2_000); err != nil {
		return 0, err
	}
	return a.loadBalance(owner, assetID).Allowance[spender], nil
}

// CreateAsset mints a new asset from a single admin-controlled supply and,
// if the ledger is configured with a quota engine, registers an (initially
// deactivated) quota config for it via the privileged capability path.
func (a *AssetLedger) CreateAsset(ctx *ServiceContext, name, symbol string, admin Address, supply, precision uint64, relayable bool) (*Asset, error) {
	caller, err := effectiveCaller(ctx)
	if err != nil {
		return nil, err
	}
	id := deriveAssetID(name, symbol, caller, supply)
	if _, ok := a.assets.Get(id[:]); ok {
		return nil, ErrExists("asset " + id.hex())
	}
	asset := Asset{ID: id, Name: name, Symbol: symbol, Admin: admin, Supply: supply, Precision: precision, Relayable: relayable}
	raw, err := json.Marshal(asset)
	if err != nil {
		return nil, ErrSerde(err)
	}

	if a.quota != nil {
		quotaCtx := ctx.WithExtra([]byte(capAssetService))
		if err := a.quota.CreateAssetConfig(quotaCtx, id, admin); err != nil {
			return nil, err
		}
	}

	a.assets.Set(id[:], raw)
	bal := emptyBalance()
	bal.Value = supply
	if err := a.storeBalance(caller, id, bal); err != nil {
		return nil, err
	}
	ctx.Emit("asset", "CreateAsset", string(raw))
	return &asset, nil
}

func deriveAssetID(name, symbol string, creator Address, supply uint64) Hash {
	payload, _ := json.Marshal(struct {
		Name    string
		Symbol  string
		Creator Address
		Supply  uint64
	}{name, symbol, creator, supply})
	return Hash(hashBytes(payload))
}

func (h Hash) hex() string { return hex.EncodeToString(h[:]) }

// consultQuota forwards a quota_transfer call under the asset-service
// capability token; a failure aborts the caller's operation before any
// balance mutation.
func (a *AssetLedger) consultQuota(ctx *ServiceContext, assetID Hash, address Address, amount uint64) error {
	if a.quota == nil {
		return nil
	}
	quotaCtx := ctx.WithExtra([]byte(capAssetService))
	return a.quota.QuotaTransfer(quotaCtx, assetID, address, amount)
}

// Transfer moves value from the effective caller to `to`.
func (a *AssetLedger) Transfer(ctx *ServiceContext, assetID Hash, to Address, value uint64) error {
	sender, err := effectiveCaller(ctx)
	if err != nil {
		return err
	}
	if err := a.consultQuota(ctx, assetID, sender, value); err != nil {
		return err
	}
	if err := a.moveValue(assetID, sender, to, value); err != nil {
		return err
	}
	ctx.Emit("asset", "Transfer", sender.String()+"->"+to.String())
	return nil
}

// TransferFrom spends from an allowance granted to the effective caller.
func (a *AssetLedger) TransferFrom(ctx *ServiceContext, assetID Hash, sender, recipient Address, value uint64) error {
	spender, err := effectiveCaller(ctx)
	if err != nil {
		return err
	}
	senderBal := a.loadBalance(sender, assetID)
	allowance := senderBal.Allowance[spender]
	if value > allowance {
		return ErrLackOfBalance(value, allowance)
	}
	if err := a.consultQuota(ctx, assetID, sender, value); err != nil {
		return err
	}
	if err := a.moveValue(assetID, sender, recipient, value); err != nil {
		return err
	}
	senderBal = a.loadBalance(sender, assetID)
	senderBal.Allowance[spender] = allowance - value
	if err := a.storeBalance(sender, assetID, senderBal); err != nil {
		return err
	}
	ctx.Emit("asset", "TransferFrom", sender.String()+"->"+recipient.String())
	return nil
}

// HookTransferFrom additionally accepts the governance capability token,
// letting the governance collaborator move the native asset without the
// normal allowance check.
func (a *AssetLedger) HookTransferFrom(ctx *ServiceContext, assetID Hash, sender, recipient Address, value uint64) error {
	if ctx.hasCapability(capGovernance) {
		if err := a.consultQuota(ctx, assetID, sender, value); err != nil {
			return err
		}
		if err := a.moveValue(assetID, sender, recipient, value); err != nil {
			return err
		}
		ctx.Emit("asset", "HookTransferFrom", sender.String()+"->"+recipient.String())
		return nil
	}
	return a.TransferFrom(ctx, assetID, sender, recipient, value)
}

func (a *AssetLedger) moveValue(assetID Hash, from, to Address, value uint64) error {
	fromBal := a.loadBalance(from, assetID)
	if fromBal.Value < value {
		return ErrLackOfBalance(value, fromBal.Value)
	}
	toBal := a.loadBalance(to, assetID)
	newTo := toBal.Value + value
	if newTo < toBal.Value {
		return ErrBalanceOverflow()
	}
	fromBal.Value -= value
	toBal.Value = newTo
	if err := a.storeBalance(from, assetID, fromBal); err != nil {
		return err
	}
	return a.storeBalance(to, assetID, toBal)
}

// Approve sets allowance[spender] = value, always overwriting: approve(to,
// 0) stores 0 and never removes the entry, preserving iteration order
// across re-approvals.
func (a *AssetLedger) Approve(ctx *ServiceContext, assetID Hash, spender Address, value uint64) error {
	owner, err := effectiveCaller(ctx)
	if err != nil {
		return err
	}
	if owner == spender {
		return ErrApproveToSelf()
	}
	bal := a.loadBalance(owner, assetID)
	bal.Allowance[spender] = value
	if err := a.storeBalance(owner, assetID, bal); err != nil {
		return err
	}
	ctx.Emit("asset", "Approve", owner.String()+"->"+spender.String())
	return nil
}

// Mint increases an asset's supply and a target's balance by exactly n,
// keeping both in lockstep; overflow aborts.
func (a *AssetLedger) Mint(ctx *ServiceContext, assetID Hash, to Address, n uint64) error {
	asset, err := a.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}
	newSupply := asset.Supply + n
	if newSupply < asset.Supply {
		return ErrBalanceOverflow()
	}
	bal := a.loadBalance(to, assetID)
	newVal := bal.Value + n
	if newVal < bal.Value {
		return ErrBalanceOverflow()
	}
	bal.Value = newVal
	if err := a.storeBalance(to, assetID, bal); err != nil {
		return err
	}
	asset.Supply = newSupply
	raw, err := json.Marshal(asset)
	if err != nil {
		return ErrSerde(err)
	}
	a.assets.Set(assetID[:], raw)
	ctx.Emit("asset", "Mint", to.String())
	return nil
}

// Burn decreases an asset's supply and a holder's balance by exactly n,
// keeping both in lockstep; underflow aborts.
func (a *AssetLedger) Burn(ctx *ServiceContext, assetID Hash, from Address, n uint64) error {
	asset, err := a.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}
	if asset.Supply < n {
		return ErrLackOfBalance(n, asset.Supply)
	}
	bal := a.loadBalance(from, assetID)
	if bal.Value < n {
		return ErrLackOfBalance(n, bal.Value)
	}
	bal.Value -= n
	if err := a.storeBalance(from, assetID, bal); err != nil {
		return err
	}
	asset.Supply -= n
	raw, err := json.Marshal(asset)
	if err != nil {
		return ErrSerde(err)
	}
	a.assets.Set(assetID[:], raw)
	ctx.Emit("asset", "Burn", from.String())
	return nil
}

// Relay is a transfer gated on the asset's relayable flag.
func (a *AssetLedger) Relay(ctx *ServiceContext, assetID Hash, to Address, value uint64) error {
	asset, err := a.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}
	if !asset.Relayable {
		return ErrNotRelayable(assetID)
	}
	return a.Transfer(ctx, assetID, to, value)
}

// ChangeAdmin reassigns an asset's admin address; caller must be the
// current admin.
func (a *AssetLedger) ChangeAdmin(ctx *ServiceContext, assetID Hash, newAdmin Address) error {
	asset, err := a.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}
	if asset.Admin != ctx.Caller {
		return ErrNonAuthorized()
	}
	asset.Admin = newAdmin
	raw, err := json.Marshal(asset)
	if err != nil {
		return ErrSerde(err)
	}
	a.assets.Set(assetID[:], raw)
	ctx.Emit("asset", "ChangeAdmin", newAdmin.String())
	return nil
}
