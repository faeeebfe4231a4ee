package lostfound

import (
	"fmt"
	"math/big"
	"unicode/utf8"
)

// Field length limits, in characters, shared by lost posts and found listings.
const (
	MaxTitleLen       = 64
	MaxDescriptionLen = 512
	MaxAttributesLen  = 256
	MaxPhotoRefLen    = 128
	MaxNotesLen       = 512
	MaxEvidenceURILen = 256
)

// LostPostStatus enumerates the lifecycle of a lost-item post.
type LostPostStatus uint8

const (
	LostPostOpen LostPostStatus = iota
	LostPostAwaitingAdminReview
	// LostPostAwaitingPickup is retained from the original storage format; the
	// current approve path settles directly to Closed.
	LostPostAwaitingPickup
	LostPostClosed
)

// Valid reports whether the status value is within the supported range.
func (s LostPostStatus) Valid() bool { return s <= LostPostClosed }

func (s LostPostStatus) String() string {
	switch s {
	case LostPostOpen:
		return "open"
	case LostPostAwaitingAdminReview:
		return "awaiting_admin_review"
	case LostPostAwaitingPickup:
		return "awaiting_pickup"
	case LostPostClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// FoundPostStatus enumerates the lifecycle of a found-item listing.
type FoundPostStatus uint8

const (
	FoundPostOpen FoundPostStatus = iota
	FoundPostAwaitingAdminReview
	FoundPostClaimed
)

// Valid reports whether the status value is within the supported range.
func (s FoundPostStatus) Valid() bool { return s <= FoundPostClaimed }

func (s FoundPostStatus) String() string {
	switch s {
	case FoundPostOpen:
		return "open"
	case FoundPostAwaitingAdminReview:
		return "awaiting_admin_review"
	case FoundPostClaimed:
		return "claimed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// AppConfig is the global singleton holding the administrator identity and the
// post counters used as creation sequence numbers. The admin is fixed at
// initialization and never changes.
type AppConfig struct {
	Admin          [20]byte
	LostPostCount  uint64
	FoundPostCount uint64
}

// Clone returns a copy callers can mutate safely.
func (c *AppConfig) Clone() *AppConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// PostFields bundles the descriptive fields shared by lost posts and found
// listings.
type PostFields struct {
	Title       string
	Description string
	Attributes  string
	PhotoRef    string
}

// Validate checks the shared field limits, naming the offending field in the
// returned constraint error.
func (f PostFields) Validate() error {
	if f.Title == "" {
		return fmt.Errorf("%w: title must not be empty", ErrConstraint)
	}
	if utf8.RuneCountInString(f.Title) > MaxTitleLen {
		return fmt.Errorf("%w: title exceeds %d characters", ErrConstraint, MaxTitleLen)
	}
	if utf8.RuneCountInString(f.Description) > MaxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrConstraint, MaxDescriptionLen)
	}
	if utf8.RuneCountInString(f.Attributes) > MaxAttributesLen {
		return fmt.Errorf("%w: attributes exceed %d characters", ErrConstraint, MaxAttributesLen)
	}
	if utf8.RuneCountInString(f.PhotoRef) > MaxPhotoRefLen {
		return fmt.Errorf("%w: photo reference exceeds %d characters", ErrConstraint, MaxPhotoRefLen)
	}
	return nil
}

// LostPost is a lost-item report. The reward is escrowed in the vault from
// creation until the admin approves (pays the finder) or the post reopens.
// Finder is nil until a found report is pending or settled.
type LostPost struct {
	Owner     [20]byte
	Seq       uint64
	Fields    PostFields
	Reward    *big.Int
	Status    LostPostStatus
	Finder    *[20]byte
	CreatedAt int64
}

// Clone returns a deep copy of the post.
func (p *LostPost) Clone() *LostPost {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Reward != nil {
		clone.Reward = new(big.Int).Set(p.Reward)
	} else {
		clone.Reward = big.NewInt(0)
	}
	if p.Finder != nil {
		finder := *p.Finder
		clone.Finder = &finder
	}
	return &clone
}

// SanitizeLostPost validates and normalises a lost post, returning a cloned
// instance with a non-nil reward. The original value is not mutated.
func SanitizeLostPost(p *LostPost) (*LostPost, error) {
	if p == nil {
		return nil, fmt.Errorf("lostfound: nil lost post")
	}
	clone := p.Clone()
	if err := clone.Fields.Validate(); err != nil {
		return nil, err
	}
	if clone.Reward == nil || clone.Reward.Sign() <= 0 {
		return nil, fmt.Errorf("%w: reward must be positive", ErrConstraint)
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("lostfound: invalid lost post status %d", clone.Status)
	}
	return clone, nil
}

// FoundPost is a found-item listing. No funds attach at creation; claimant
// deposits are escrowed on the ClaimTicket. ActiveClaim points at the pending
// or winning ticket address and is nil while the listing is open.
type FoundPost struct {
	Finder      [20]byte
	Seq         uint64
	Fields      PostFields
	Status      FoundPostStatus
	ActiveClaim *Address
	CreatedAt   int64
}

// Clone returns a deep copy of the listing.
func (p *FoundPost) Clone() *FoundPost {
	if p == nil {
		return nil
	}
	clone := *p
	if p.ActiveClaim != nil {
		claim := *p.ActiveClaim
		clone.ActiveClaim = &claim
	}
	return &clone
}

// SanitizeFoundPost validates a found listing, returning a clone.
func SanitizeFoundPost(p *FoundPost) (*FoundPost, error) {
	if p == nil {
		return nil, fmt.Errorf("lostfound: nil found post")
	}
	clone := p.Clone()
	if err := clone.Fields.Validate(); err != nil {
		return nil, err
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("lostfound: invalid found post status %d", clone.Status)
	}
	return clone, nil
}

// ClaimTicket holds a claimant's escrowed deposit for one claim attempt on a
// found listing. The ticket exists only while the claim is pending: approval
// moves the deposit to the finder, rejection returns it to the claimer, and
// either way the ticket is destroyed.
type ClaimTicket struct {
	Claimer   [20]byte
	FoundPost Address
	Notes     string
	Deposit   *big.Int
	CreatedAt int64
}

// Clone returns a deep copy of the ticket.
func (t *ClaimTicket) Clone() *ClaimTicket {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Deposit != nil {
		clone.Deposit = new(big.Int).Set(t.Deposit)
	} else {
		clone.Deposit = big.NewInt(0)
	}
	return &clone
}

// SanitizeClaimTicket validates a claim ticket, returning a clone.
func SanitizeClaimTicket(t *ClaimTicket) (*ClaimTicket, error) {
	if t == nil {
		return nil, fmt.Errorf("lostfound: nil claim ticket")
	}
	clone := t.Clone()
	if utf8.RuneCountInString(clone.Notes) > MaxNotesLen {
		return nil, fmt.Errorf("%w: claim notes exceed %d characters", ErrConstraint, MaxNotesLen)
	}
	if clone.Deposit == nil || clone.Deposit.Sign() <= 0 {
		return nil, fmt.Errorf("%w: deposit must be positive", ErrConstraint)
	}
	return clone, nil
}

// FoundReport records a finder's pending report against a lost post. It exists
// only while the report awaits admin review.
type FoundReport struct {
	Finder      [20]byte
	LostPost    Address
	EvidenceURI string
	CreatedAt   int64
}

// Clone returns a copy of the report.
func (r *FoundReport) Clone() *FoundReport {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// SanitizeFoundReport validates a found report, returning a clone.
func SanitizeFoundReport(r *FoundReport) (*FoundReport, error) {
	if r == nil {
		return nil, fmt.Errorf("lostfound: nil found report")
	}
	clone := r.Clone()
	if utf8.RuneCountInString(clone.EvidenceURI) > MaxEvidenceURILen {
		return nil, fmt.Errorf("%w: evidence URI exceeds %d characters", ErrConstraint, MaxEvidenceURILen)
	}
	return clone, nil
}
