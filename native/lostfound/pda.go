package lostfound

import (
	"encoding/binary"
	"encoding/hex"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Address is the 20-byte location of a ledger record. Derived addresses live
// in the same namespace as key-derived wallet addresses but are computed from
// well-known seeds, so any two parties agreeing on the inputs locate the same
// record without coordination.
type Address [20]byte

// Hex returns the lowercase hex encoding of the address.
func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

// Bytes returns the raw address bytes.
func (a Address) Bytes() []byte { return a[:] }

// IsZero reports whether the address is the null identity.
func (a Address) IsZero() bool { return a == Address{} }

// Seed tags for each derivable record family. The byte values match the
// original storage format so independently computed addresses line up.
var (
	SeedConfig      = []byte("config")
	SeedLostPost    = []byte("lost-post")
	SeedFoundPost   = []byte("found-post")
	SeedFoundReport = []byte("found-report")
	SeedClaimTicket = []byte("claim-ticket")

	seedVault = []byte("vault")
)

// pdaDomain separates record derivation from every other keccak use in the
// protocol.
var pdaDomain = []byte("findare/pda/v1")

// Derive computes the canonical address for a seed tag plus ordered byte
// inputs, together with the disambiguating bump nonce that produced it.
//
// Bumps count down from 255. A candidate is rejected when it falls inside the
// reserved system range (first 19 bytes zero), which keeps derived records
// clear of the null identity and protocol-internal addresses. Rejection of all
// 256 bumps returns ErrDeriveExhausted; with 152 reserved bits per candidate
// that outcome is practically unreachable.
func Derive(tag []byte, parts ...[]byte) (Address, uint8, error) {
	material := make([]byte, 0, len(pdaDomain)+len(tag)+1)
	material = append(material, pdaDomain...)
	material = append(material, tag...)
	for _, part := range parts {
		material = append(material, part...)
	}
	for bump := 255; bump >= 0; bump-- {
		digest := ethcrypto.Keccak256(material, []byte{byte(bump)})
		var addr Address
		copy(addr[:], digest[12:])
		if !reservedAddress(addr) {
			return addr, uint8(bump), nil
		}
	}
	return Address{}, 0, ErrDeriveExhausted
}

func reservedAddress(addr Address) bool {
	for _, b := range addr[:19] {
		if b != 0 {
			return false
		}
	}
	return true
}

func sequenceSeed(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// ConfigAddress derives the address of the AppConfig singleton.
func ConfigAddress() (Address, uint8, error) {
	return Derive(SeedConfig)
}

// LostPostAddress derives the address of the lost post created by poster with
// the given sequence number.
func LostPostAddress(poster [20]byte, seq uint64) (Address, uint8, error) {
	return Derive(SeedLostPost, poster[:], sequenceSeed(seq))
}

// FoundPostAddress derives the address of the found listing created by finder
// with the given sequence number.
func FoundPostAddress(finder [20]byte, seq uint64) (Address, uint8, error) {
	return Derive(SeedFoundPost, finder[:], sequenceSeed(seq))
}

// FoundReportAddress derives the address of the found report submitted by
// finder against the lost post at lostPost.
func FoundReportAddress(lostPost Address, finder [20]byte) (Address, uint8, error) {
	return Derive(SeedFoundReport, lostPost[:], finder[:])
}

// ClaimTicketAddress derives the address of the claim ticket opened by claimer
// against the found listing at foundPost.
func ClaimTicketAddress(foundPost Address, claimer [20]byte) (Address, uint8, error) {
	return Derive(SeedClaimTicket, foundPost[:], claimer[:])
}

// VaultAddress derives the protocol vault that holds every escrowed reward and
// deposit.
func VaultAddress() (Address, uint8, error) {
	return Derive(seedVault)
}
