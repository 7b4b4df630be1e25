package core

// Error taxonomy for the contract-execution core: authorization registry,
// chain bridge, quota engine, KYC engine and asset ledger all surface errors
// as a stable (code, message) pair so a service-dispatch response can carry
// them across the host/guest boundary without losing machine-readability.

import "fmt"

// ServiceError is the canonical error shape returned by every core service
// operation. Code is stable per kind and must never be reused for a
// different meaning once assigned.
type ServiceError struct {
	Code    uint64
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error %d: %s", e.Code, e.Message)
}

func newErr(code uint64, format string, args ...interface{}) *ServiceError {
	return &ServiceError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Input errors (1xx)
const (
	CodeMeaninglessValue uint64 = 101
	CodeFormat           uint64 = 102
	CodeTooLongMemo      uint64 = 103
	CodeNotHexCaller     uint64 = 104
	CodeInvalidKey       uint64 = 105
	CodeHexDecode        uint64 = 106
)

func ErrMeaninglessValue(field string) error { return newErr(CodeMeaninglessValue, "meaningless value: %s", field) }
func ErrFormat(msg string) error             { return newErr(CodeFormat, "format error: %s", msg) }
func ErrTooLongMemo() error                  { return newErr(CodeTooLongMemo, "memo too long") }
func ErrNotHexCaller(extra string) error {
	return newErr(CodeNotHexCaller, "extra is not a hex-encoded caller address: %q", extra)
}
func ErrInvalidKey(key string) error  { return newErr(CodeInvalidKey, "invalid key: %s", key) }
func ErrHexDecode(err error) error    { return newErr(CodeHexDecode, "hex decode: %v", err) }

// Authorization errors (2xx)
const (
	CodeNonAuthorized uint64 = 201
	CodeUnauthorized  uint64 = 202
)

func ErrNonAuthorized() error { return newErr(CodeNonAuthorized, "caller is not an admin") }
func ErrUnauthorized(reason string) error {
	return newErr(CodeUnauthorized, "unauthorized: %s", reason)
}

// Lookup errors (3xx)
const (
	CodeAssetNotFound    uint64 = 301
	CodeContractNotFound uint64 = 302
	CodeCodeNotFound     uint64 = 303
	CodeOrgNotFound      uint64 = 304
	CodeNoNativeAsset    uint64 = 305
	CodeMissingInfo      uint64 = 306
)

func ErrAssetNotFound(id Hash) error    { return newErr(CodeAssetNotFound, "asset not found: %x", id) }
func ErrContractNotFound(a Address) error {
	return newErr(CodeContractNotFound, "contract not found: %s", a.String())
}
func ErrCodeNotFound(h Hash) error { return newErr(CodeCodeNotFound, "code not found: %x", h) }
func ErrOrgNotFound(name string) error { return newErr(CodeOrgNotFound, "kyc org not found: %s", name) }
func ErrNoNativeAsset() error          { return newErr(CodeNoNativeAsset, "no native asset configured") }
func ErrMissingInfo(what string) error { return newErr(CodeMissingInfo, "missing info: %s", what) }

// State errors (4xx)
const (
	CodeExists             uint64 = 401
	CodeOrgAlreadyExists   uint64 = 402
	CodeAssetConfigExist   uint64 = 403
	CodeMintNotEqualSupply uint64 = 404
)

func ErrExists(what string) error       { return newErr(CodeExists, "already exists: %s", what) }
func ErrOrgAlreadyExists(name string) error {
	return newErr(CodeOrgAlreadyExists, "kyc org already exists: %s", name)
}
func ErrAssetConfigExist(id Hash) error {
	return newErr(CodeAssetConfigExist, "quota asset config already exists: %x", id)
}
func ErrMintNotEqualSupply(mint, supply uint64) error {
	return newErr(CodeMintNotEqualSupply, "issuer sum %d does not equal declared supply %d", mint, supply)
}

// Arithmetic errors (5xx)
const (
	CodeBalanceOverflow   uint64 = 501
	CodeQuotaCalcOverflow uint64 = 502
	CodeLackOfBalance     uint64 = 503
)

func ErrBalanceOverflow() error { return newErr(CodeBalanceOverflow, "balance overflow") }
func ErrQuotaCalcOverflow() error { return newErr(CodeQuotaCalcOverflow, "quota accumulator overflow") }
func ErrLackOfBalance(expect, real uint64) error {
	return newErr(CodeLackOfBalance, "lack of balance: expect %d, real %d", expect, real)
}

// Policy errors (6xx)
const (
	CodeNotRelayable      uint64 = 601
	CodeApproveToSelf     uint64 = 602
	CodeUnapprovedOrg     uint64 = 603
	CodeOutOfSupportedTags uint64 = 604
	CodeQuotaExceed       uint64 = 605
	CodeQuotaNoRuleHit    uint64 = 606
)

func ErrNotRelayable(id Hash) error { return newErr(CodeNotRelayable, "asset not relayable: %x", id) }
func ErrApproveToSelf() error       { return newErr(CodeApproveToSelf, "cannot approve to self") }
func ErrUnapprovedOrg(name string) error {
	return newErr(CodeUnapprovedOrg, "kyc org not approved: %s", name)
}
func ErrOutOfSupportedTags(tag string) error {
	return newErr(CodeOutOfSupportedTags, "tag not in supported set: %s", tag)
}
func ErrQuotaExceed(bucket string, added, amount, quota uint64) error {
	return newErr(CodeQuotaExceed, "quota exceeded in bucket %s: added=%d amount=%d quota=%d", bucket, added, amount, quota)
}
func ErrQuotaNoRuleHit(bucket string) error {
	return newErr(CodeQuotaNoRuleHit, "no rule matched in bucket %s", bucket)
}

// Execution errors (7xx)
const (
	CodeOutOfCycles             uint64 = 701
	CodeNonZeroExitCode         uint64 = 702
	CodeWriteInReadonlyContext  uint64 = 703
	CodeMethodNotFound          uint64 = 704
	CodeServiceNotFound         uint64 = 705
	CodeVmError                 uint64 = 706
)

func ErrOutOfCycles() error { return newErr(CodeOutOfCycles, "out of cycles") }
func ErrNonZeroExitCode(exitcode int32, ret string) error {
	return newErr(CodeNonZeroExitCode, "non-zero exit code %d: %s", exitcode, ret)
}
func ErrWriteInReadonlyContext() error {
	return newErr(CodeWriteInReadonlyContext, "write attempted in a readonly call context")
}
func ErrMethodNotFound(service, method string) error {
	return newErr(CodeMethodNotFound, "method not found: %s.%s", service, method)
}
func ErrServiceNotFound(service string) error {
	return newErr(CodeServiceNotFound, "service not found: %s", service)
}
func ErrVmError(msg string) error { return newErr(CodeVmError, "vm error: %s", msg) }

// Encoding errors (8xx)
const (
	CodeSerde      uint64 = 801
	CodeJsonParse  uint64 = 802
)

func ErrSerde(err error) error     { return newErr(CodeSerde, "serialization error: %v", err) }
func ErrJsonParse(err error) error { return newErr(CodeJsonParse, "json parse error: %v", err) }
