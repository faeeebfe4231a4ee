package lostfound

import "errors"

// Error taxonomy for the lost-and-found protocol. Engine methods return these
// sentinels (usually wrapped with the violated invariant) so the RPC layer can
// map failures onto stable client-facing codes.
var (
	// ErrNilState indicates the engine was used before wiring a state backend.
	ErrNilState = errors.New("lostfound: state not configured")

	// ErrNotInitialized is returned when an operation requires the AppConfig
	// singleton and nobody has run the initialize transition yet.
	ErrNotInitialized = errors.New("lostfound: app config not initialized")

	// ErrUnauthorized covers callers lacking the required identity, such as a
	// non-administrator attempting approve/reject.
	ErrUnauthorized = errors.New("lostfound: caller not authorized")

	// ErrSelfDealing rejects owners reporting their own lost posts and finders
	// claiming their own found listings.
	ErrSelfDealing = errors.New("lostfound: self-dealing not permitted")

	// ErrInvalidStatus marks a transition attempted from a status that does not
	// permit it. Double approvals land here rather than double-paying.
	ErrInvalidStatus = errors.New("lostfound: transition not permitted in current status")

	// ErrConstraint marks a field-level violation (length limit exceeded,
	// non-positive amount).
	ErrConstraint = errors.New("lostfound: field constraint violated")

	// ErrSequenceConflict signals a creation built against a stale counter
	// value. Callers re-read the counter and retry; this is not fatal.
	ErrSequenceConflict = errors.New("lostfound: stale sequence number")

	// ErrAddressOccupied signals that the derived address already holds a
	// record, typically the losing side of a concurrent creation race.
	ErrAddressOccupied = errors.New("lostfound: derived address already occupied")

	// ErrInsufficientFunds rejects escrow deposits the caller cannot cover.
	ErrInsufficientFunds = errors.New("lostfound: insufficient balance")

	// ErrNotFound is returned by transitions targeting a record address with no
	// record behind it. Plain queries report absence via their boolean result
	// instead.
	ErrNotFound = errors.New("lostfound: record not found")

	// ErrDeriveExhausted fires when address derivation runs out of nonce space.
	// Practically unreachable; surfaced as a hard error per the derivation
	// contract.
	ErrDeriveExhausted = errors.New("lostfound: address derivation exhausted nonce space")
)
