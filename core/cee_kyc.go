package core

// KycEngine tracks organizations, their admin-approval status, and the
// per-user tag sets those organizations maintain. Grounded on
// original_source/services/kyc/src/lib.rs: orgs/orgs_approved/
// user_tag_names/user_tags maps, merge-on-read of the approved flag, and
// tag-name-index removal when a user's tag value list for a name becomes
// empty.

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	log "github.com/sirupsen/logrus"
)

// KycOrg is the durable organization record.
type KycOrg struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Admin         Address  `json:"admin"`
	SupportedTags []string `json:"supported_tags"`
}

// verifyOrgSignature checks a secp256k1 signature over (name, description,
// admin) by the registering authority's public key, the same
// ParsePubKey/decodeSig/ecdsa.Verify sequence a KYC-document issuer
// signature is checked with. RegisterOrg calls it when a pubKey is given;
// ChangeOrgApproved is gated by the governance capability token instead.
func verifyOrgSignature(pubKey, sig []byte, name, description string, admin Address) error {
	pk, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return ErrFormat("invalid org signing pubkey: " + err.Error())
	}
	r, s, err := decodeSig(sig)
	if err != nil {
		return ErrFormat(err.Error())
	}
	raw, err := json.Marshal(struct {
		Name        string
		Description string
		Admin       Address
	}{name, description, admin})
	if err != nil {
		return ErrSerde(err)
	}
	hash := sha256.Sum256(raw)
	if !ecdsa.Verify(pk.ToECDSA(), hash[:], r, s) {
		return ErrUnauthorized("invalid org signature")
	}
	return nil
}

type KycEngine struct {
	orgs          *ScopedMap // name -> KycOrg (json)
	orgsApproved  *ScopedMap // name -> bool (1 byte)
	userTagNames  *ScopedMap // org|user -> []string (json), the index
	userTags      *ScopedMap // org|user|tag -> []string (json) tag values
	logger        *log.Logger
}

func NewKycEngine(store *Store) *KycEngine {
	return &KycEngine{
		orgs:         store.AllocOrRecoverMap("kyc/orgs"),
		orgsApproved: store.AllocOrRecoverMap("kyc/orgs_approved"),
		userTagNames: store.AllocOrRecoverMap("kyc/user_tags_index"),
		userTags:     store.AllocOrRecoverMap("kyc/user_tags"),
		logger:       log.StandardLogger(),
	}
}

func userTagNamesKey(org, user string) []byte { return []byte(org + "|" + user) }
func userTagsKey(org, user, tag string) []byte { return []byte(org + "|" + user + "|" + tag) }

// RegisterOrg creates a new organization. Idempotent-reject: fails if the
// name is already taken. Newly registered orgs start unapproved. pubKey/sig
// must be a valid secp256k1 signature by the registering authority over
// (name, description, admin); an empty pubKey skips the check, for
// genesis-time org seeding where no governance signer yet exists.
func (k *KycEngine) RegisterOrg(ctx *ServiceContext, name, description string, admin Address, supportedTags []string, pubKey, sig []byte) error {
	if err := ctx.SubCycles(21_000); err != nil {
		return err
	}
	if len(pubKey) > 0 {
		if err := verifyOrgSignature(pubKey, sig, name, description, admin); err != nil {
			return err
		}
	}
	if _, ok := k.orgs.Get([]byte(name)); ok {
		return ErrOrgAlreadyExists(name)
	}
	org := KycOrg{Name: name, Description: description, Admin: admin, SupportedTags: supportedTags}
	raw, err := json.Marshal(org)
	if err != nil {
		return ErrSerde(err)
	}
	k.orgs.Set([]byte(name), raw)
	k.orgsApproved.Set([]byte(name), []byte{0})
	ctx.Emit("kyc", "RegisterOrg", string(raw))
	return nil
}

// GetOrgInfo merges the approved flag (kept in its own map, as in the
// original) into the stored org record for read-time consumption.
func (k *KycEngine) GetOrgInfo(ctx *ServiceContext, name string) (*KycOrg, bool, error) {
	if err := ctx.SubCycles(2_000); err != nil {
		return nil, false, err
	}
	raw, ok := k.orgs.Get([]byte(name))
	if !ok {
		return nil, false, ErrOrgNotFound(name)
	}
	var org KycOrg
	if err := json.Unmarshal(raw, &org); err != nil {
		return nil, false, ErrSerde(err)
	}
	approved := k.isApproved(name)
	return &org, approved, nil
}

func (k *KycEngine) isApproved(name string) bool {
	raw, ok := k.orgsApproved.Get([]byte(name))
	return ok && len(raw) == 1 && raw[0] == 1
}

// ChangeOrgApproved flips an org's approved flag; requires the governance
// capability token, the same token AssetLedger.HookTransferFrom accepts.
func (k *KycEngine) ChangeOrgApproved(ctx *ServiceContext, name string, approved bool) error {
	if err := ctx.SubCycles(21_000); err != nil {
		return err
	}
	if !ctx.hasCapability(capGovernance) {
		return ErrNonAuthorized()
	}
	if _, ok := k.orgs.Get([]byte(name)); !ok {
		return ErrOrgNotFound(name)
	}
	v := byte(0)
	if approved {
		v = 1
	}
	k.orgsApproved.Set([]byte(name), []byte{v})
	ctx.Emit("kyc", "ChangeOrgApproved", name)
	return nil
}

// ChangeOrgAdmin reassigns the org's admin address.
func (k *KycEngine) ChangeOrgAdmin(ctx *ServiceContext, name string, newAdmin Address) error {
	if err := ctx.SubCycles(21_000); err != nil {
		return err
	}
	raw, ok := k.orgs.Get([]byte(name))
	if !ok {
		return ErrOrgNotFound(name)
	}
	var org KycOrg
	if err := json.Unmarshal(raw, &org); err != nil {
		return ErrSerde(err)
	}
	org.Admin = newAdmin
	out, err := json.Marshal(org)
	if err != nil {
		return ErrSerde(err)
	}
	k.orgs.Set([]byte(name), out)
	ctx.Emit("kyc", "ChangeOrgAdmin", string(out))
	return nil
}

// UpdateSupportedTags replaces an org's supported tag-name list.
func (k *KycEngine) UpdateSupportedTags(ctx *ServiceContext, name string, tags []string) error {
	if err := ctx.SubCycles(uint64(len(tags)) * 10_000); err != nil {
		return err
	}
	raw, ok := k.orgs.Get([]byte(name))
	if !ok {
		return ErrOrgNotFound(name)
	}
	var org KycOrg
	if err := json.Unmarshal(raw, &org); err != nil {
		return ErrSerde(err)
	}
	org.SupportedTags = tags
	out, err := json.Marshal(org)
	if err != nil {
		return ErrSerde(err)
	}
	k.orgs.Set([]byte(name), out)
	return nil
}

func (k *KycEngine) GetOrgSupportedTags(ctx *ServiceContext, name string) ([]string, error) {
	org, _, err := k.GetOrgInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	return org.SupportedTags, nil
}

// UpdateUserTags sets tag values for (org, user). A tag name whose value
// list becomes empty is removed from the per-user tag-name index, exactly
// as original_source/services/kyc/src/lib.rs does.
func (k *KycEngine) UpdateUserTags(ctx *ServiceContext, org, user string, tags map[string][]string) error {
	if err := ctx.SubCycles(uint64(len(user)) * 1000 + uint64(len(tags)) * 10_000); err != nil {
		return err
	}
	if _, ok := k.orgs.Get([]byte(org)); !ok {
		return ErrOrgNotFound(org)
	}
	names := k.userTagNamesOf(org, user)
	nameSet := make(map[string]bool, len(names))
	for _, n := range names {
		nameSet[n] = true
	}
	for tag, values := range tags {
		if len(values) == 0 {
			k.userTags.Delete(userTagsKey(org, user, tag))
			delete(nameSet, tag)
			continue
		}
		raw, err := json.Marshal(values)
		if err != nil {
			return ErrSerde(err)
		}
		k.userTags.Set(userTagsKey(org, user, tag), raw)
		nameSet[tag] = true
	}
	newNames := make([]string, 0, len(nameSet))
	for n := range nameSet {
		newNames = append(newNames, n)
	}
	raw, err := json.Marshal(newNames)
	if err != nil {
		return ErrSerde(err)
	}
	k.userTagNames.Set(userTagNamesKey(org, user), raw)
	return nil
}

func (k *KycEngine) userTagNamesOf(org, user string) []string {
	raw, ok := k.userTagNames.Get(userTagNamesKey(org, user))
	if !ok {
		return nil
	}
	var names []string
	_ = json.Unmarshal(raw, &names)
	return names
}

// GetUserTags returns the full tag-name -> values map for (org, user).
func (k *KycEngine) GetUserTags(ctx *ServiceContext, org, user string) (map[string][]string, error) {
	if err := ctx.SubCycles(2_000); err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, name := range k.userTagNamesOf(org, user) {
		raw, ok := k.userTags.Get(userTagsKey(org, user, name))
		if !ok {
			continue
		}
		var values []string
		if err := json.Unmarshal(raw, &values); err != nil {
			continue
		}
		out[name] = values
	}
	return out, nil
}

// userApprovedAtoms collects "org.tag:value" atoms across every org that is
// both approved and holds a tag for user, the scope eval_user_tag_expression
// is evaluated against (recovered from the original's orgs_approved gate:
// unapproved orgs' tags are invisible to expression evaluation).
func (k *KycEngine) userApprovedAtoms(user string) map[string]bool {
	atoms := make(map[string]bool)
	for compositeKey := range k.allOrgNames() {
		if !k.isApproved(compositeKey) {
			continue
		}
		for _, name := range k.userTagNamesOf(compositeKey, user) {
			raw, ok := k.userTags.Get(userTagsKey(compositeKey, user, name))
			if !ok {
				continue
			}
			var values []string
			if err := json.Unmarshal(raw, &values); err != nil {
				continue
			}
			for _, v := range values {
				atoms[compositeKey+"."+name+":"+v] = true
			}
		}
	}
	return atoms
}

func (k *KycEngine) allOrgNames() map[string]bool {
	out := make(map[string]bool)
	for _, key := range k.orgs.Keys() {
		out[string(key)] = true
	}
	return out
}

// EvalUserTagExpression evaluates a small boolean expression of
// "org.tag:value" atoms joined by &, |, !, and parens, against the union
// of user's tags across every approved org. An atom the user does not hold
// (including one naming an unknown or unapproved org) evaluates to false.
// A malformed expression is an evaluation error, which the quota engine's
// rule loop treats as "this rule does not match, skip" rather than
// aborting the request.
func (k *KycEngine) EvalUserTagExpression(ctx *ServiceContext, user, expr string) (bool, error) {
	if err := ctx.SubCycles(uint64(len(expr)) * 10_000); err != nil {
		return false, err
	}
	atoms := k.userApprovedAtoms(user)
	p := &tagExprParser{input: expr, atoms: atoms}
	result, err := p.parseExpr()
	if err != nil {
		return false, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return false, ErrFormat("unexpected trailing input in kyc tag expression: " + expr)
	}
	return result, nil
}

// tagExprParser is a small recursive-descent boolean-expression evaluator.
// Grammar: expr := term ('|' term)* ; term := factor ('&' factor)* ;
// factor := '!' factor | '(' expr ')' | atom .
type tagExprParser struct {
	input string
	pos   int
	atoms map[string]bool
}

func (p *tagExprParser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *tagExprParser) parseExpr() (bool, error) {
	left, err := p.parseTerm()
	if err != nil {
		return false, err
	}
	for {
		p.skipSpace()
		if p.pos < len(p.input) && p.input[p.pos] == '|' {
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return false, err
			}
			left = left || right
			continue
		}
		break
	}
	return left, nil
}

func (p *tagExprParser) parseTerm() (bool, error) {
	left, err := p.parseFactor()
	if err != nil {
		return false, err
	}
	for {
		p.skipSpace()
		if p.pos < len(p.input) && p.input[p.pos] == '&' {
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return false, err
			}
			left = left && right
			continue
		}
		break
	}
	return left, nil
}

func (p *tagExprParser) parseFactor() (bool, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return false, ErrFormat("unexpected end of kyc tag expression")
	}
	switch p.input[p.pos] {
	case '!':
		p.pos++
		v, err := p.parseFactor()
		if err != nil {
			return false, err
		}
		return !v, nil
	case '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return false, err
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return false, ErrFormat("missing closing paren in kyc tag expression")
		}
		p.pos++
		return v, nil
	default:
		start := p.pos
		for p.pos < len(p.input) && !strings.ContainsRune("&|()! ", rune(p.input[p.pos])) {
			p.pos++
		}
		atom := p.input[start:p.pos]
		if atom == "" {
			return false, ErrFormat("empty atom in kyc tag expression")
		}
		return p.atoms[atom], nil
	}
}
