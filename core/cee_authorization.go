package core

// AuthorizationRegistry gates contract deploy and call. Grounded on the
// role-granting pattern of an access-control registry
// (GrantRole/RevokeRole/HasRole), generalised from a single string role to
// the two disjoint Kind grant tables the contract execution engine needs,
// plus an Authorizer audit trail and an admin set loaded at genesis.

import "sync"

// AuthorizationKind distinguishes the two disjoint grant tables.
type AuthorizationKind int

const (
	KindDeploy AuthorizationKind = iota
	KindContract
)

// Authorizer records who last granted a given authority, retained for
// audit (Glossary).
type Authorizer struct {
	Granter Address
}

type grantKey struct {
	addr Address
	kind AuthorizationKind
}

// ContractExistsFunc reports whether a contract record exists at addr; the
// registry needs this to enforce "a Contract grant cannot exist for an
// address without a deployed contract" without
// importing the contract-execution engine directly.
type ContractExistsFunc func(addr Address) bool

type AuthorizationRegistry struct {
	mu      sync.RWMutex
	admins  map[Address]struct{}
	grants  map[grantKey]Authorizer
	hasCode ContractExistsFunc
}

// NewAuthorizationRegistry constructs the registry with the genesis admin
// set. hasCode may be nil until the contract execution engine is wired in;
// until then, granting Contract kind always fails with ContractNotFound.
func NewAuthorizationRegistry(admins []Address) *AuthorizationRegistry {
	set := make(map[Address]struct{}, len(admins))
	for _, a := range admins {
		set[a] = struct{}{}
	}
	return &AuthorizationRegistry{
		admins: set,
		grants: make(map[grantKey]Authorizer),
	}
}

// SetContractExistsFunc wires the contract-existence check once the
// contract execution engine is constructed (it depends on this registry,
// creating a cyclic reference broken here by late-binding this callback
// instead of a compile-time generic parameter).
func (r *AuthorizationRegistry) SetContractExistsFunc(f ContractExistsFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hasCode = f
}

func (r *AuthorizationRegistry) IsAdmin(ctx *ServiceContext) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.admins[ctx.Caller]
	return ok
}

func (r *AuthorizationRegistry) Granted(addr Address, kind AuthorizationKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.grants[grantKey{addr, kind}]
	return ok
}

func (r *AuthorizationRegistry) AuthorizerOf(addr Address, kind AuthorizationKind) (Authorizer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.grants[grantKey{addr, kind}]
	return a, ok
}

// Grant records that granter authorized addr for kind. Idempotent: granting
// an already-granted (addr, kind) succeeds without changing the
// Authorizer. Granting Contract kind requires a deployed contract record
// to exist at addr.
func (r *AuthorizationRegistry) Grant(ctx *ServiceContext, addr Address, kind AuthorizationKind) error {
	if !r.IsAdmin(ctx) {
		return ErrNonAuthorized()
	}
	if kind == KindContract {
		r.mu.RLock()
		hasCode := r.hasCode
		r.mu.RUnlock()
		if hasCode == nil || !hasCode(addr) {
			return ErrContractNotFound(addr)
		}
	}
	r.mu.Lock()
	k := grantKey{addr, kind}
	if _, exists := r.grants[k]; !exists {
		r.grants[k] = Authorizer{Granter: ctx.Caller}
	}
	r.mu.Unlock()
	ctx.Emit("authorization", "Grant", addr.String())
	return nil
}

// Revoke removes a grant. Revoking a non-existent grant is a no-op, not an
// error.
func (r *AuthorizationRegistry) Revoke(ctx *ServiceContext, addr Address, kind AuthorizationKind) error {
	if !r.IsAdmin(ctx) {
		return ErrNonAuthorized()
	}
	r.mu.Lock()
	delete(r.grants, grantKey{addr, kind})
	r.mu.Unlock()
	ctx.Emit("authorization", "Revoke", addr.String())
	return nil
}

// CheckDeployAuth filters addresses down to those currently holding a
// Deploy grant.
func (r *AuthorizationRegistry) CheckDeployAuth(addresses []Address) []Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Address
	for _, a := range addresses {
		if _, ok := r.grants[grantKey{a, KindDeploy}]; ok {
			out = append(out, a)
		}
	}
	return out
}
