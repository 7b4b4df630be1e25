package core

// Address and Hash are the two primitive identifiers every CEE component
// keys its state by: a 20-byte account/contract identifier and a 32-byte
// content hash (asset IDs, transaction hashes). They are adapted here from
// the wider network's account model down to exactly the surface the five
// CEE components use: construction, comparison (native array equality),
// hex decoding and the two string forms the dispatch and logging paths
// format addresses with.

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

// Address is a 20-byte account identifier.
type Address [20]byte

// Hash is a 32-byte content hash.
type Hash [32]byte

// String renders the address as bare lowercase hex, no prefix. Used by
// event logs and error messages.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Hex renders the address with a leading "0x". ParseAddress does not accept
// this form; strip the prefix before parsing it back.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// ParseAddress decodes a bare-hex (no "0x" prefix) 20-byte address.
func ParseAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 20 {
		return Address{}, fmt.Errorf("invalid address: %s", s)
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// decodeSig splits a 64-byte compact ECDSA signature into its r, s
// components, the form KYC organization-registration signatures arrive in.
func decodeSig(sig []byte) (r, s *big.Int, err error) {
	if len(sig) != 64 {
		return nil, nil, errors.New("invalid sig length")
	}
	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:])
	return r, s, nil
}

// hashBytes is the content-hash primitive asset IDs and bridge storage
// keys are derived from.
func hashBytes(b []byte) [32]byte {
	return sha256.Sum256(b)
}
