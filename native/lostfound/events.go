package lostfound

import (
	"strconv"

	"findare/core/types"
)

const (
	EventTypeAppInitialized   = "lostfound.app.initialized"
	EventTypeLostPostCreated  = "lostfound.lost_post.created"
	EventTypeReportSubmitted  = "lostfound.lost_post.report_submitted"
	EventTypeReportApproved   = "lostfound.lost_post.report_approved"
	EventTypeReportRejected   = "lostfound.lost_post.report_rejected"
	EventTypeFoundPostCreated = "lostfound.found_post.created"
	EventTypeClaimSubmitted   = "lostfound.found_post.claim_submitted"
	EventTypeClaimApproved    = "lostfound.found_post.claim_approved"
	EventTypeClaimRejected    = "lostfound.found_post.claim_rejected"
)

// NewAppInitializedEvent returns the canonical payload for config creation.
func NewAppInitializedEvent(cfg *AppConfig, addr Address) *types.Event {
	attrs := map[string]string{"address": addr.Hex()}
	if cfg != nil {
		attrs["admin"] = Address(cfg.Admin).Hex()
	}
	return &types.Event{Type: EventTypeAppInitialized, Attributes: attrs}
}

// NewLostPostCreatedEvent returns the canonical payload for a new lost post.
func NewLostPostCreatedEvent(addr Address, post *LostPost) *types.Event {
	attrs := map[string]string{"address": addr.Hex()}
	if post != nil {
		attrs["owner"] = Address(post.Owner).Hex()
		attrs["seq"] = strconv.FormatUint(post.Seq, 10)
		attrs["reward"] = post.Reward.String()
	}
	return &types.Event{Type: EventTypeLostPostCreated, Attributes: attrs}
}

// NewReportSubmittedEvent returns the payload emitted when a finder reports a
// lost item.
func NewReportSubmittedEvent(postAddr, reportAddr Address, finder [20]byte) *types.Event {
	return &types.Event{Type: EventTypeReportSubmitted, Attributes: map[string]string{
		"lostPost": postAddr.Hex(),
		"report":   reportAddr.Hex(),
		"finder":   Address(finder).Hex(),
	}}
}

// NewReportApprovedEvent returns the payload emitted when the admin approves a
// found report and the reward settles to the finder.
func NewReportApprovedEvent(postAddr Address, finder [20]byte, reward string) *types.Event {
	return &types.Event{Type: EventTypeReportApproved, Attributes: map[string]string{
		"lostPost": postAddr.Hex(),
		"finder":   Address(finder).Hex(),
		"reward":   reward,
	}}
}

// NewReportRejectedEvent returns the payload emitted when the admin rejects a
// found report and the post reopens.
func NewReportRejectedEvent(postAddr Address, finder [20]byte) *types.Event {
	return &types.Event{Type: EventTypeReportRejected, Attributes: map[string]string{
		"lostPost": postAddr.Hex(),
		"finder":   Address(finder).Hex(),
	}}
}

// NewFoundPostCreatedEvent returns the canonical payload for a new found
// listing.
func NewFoundPostCreatedEvent(addr Address, post *FoundPost) *types.Event {
	attrs := map[string]string{"address": addr.Hex()}
	if post != nil {
		attrs["finder"] = Address(post.Finder).Hex()
		attrs["seq"] = strconv.FormatUint(post.Seq, 10)
	}
	return &types.Event{Type: EventTypeFoundPostCreated, Attributes: attrs}
}

// NewClaimSubmittedEvent returns the payload emitted when a claimant opens a
// claim ticket.
func NewClaimSubmittedEvent(postAddr, ticketAddr Address, claimer [20]byte, deposit string) *types.Event {
	return &types.Event{Type: EventTypeClaimSubmitted, Attributes: map[string]string{
		"foundPost": postAddr.Hex(),
		"ticket":    ticketAddr.Hex(),
		"claimer":   Address(claimer).Hex(),
		"deposit":   deposit,
	}}
}

// NewClaimApprovedEvent returns the payload emitted when the admin approves a
// claim and the deposit settles to the finder.
func NewClaimApprovedEvent(postAddr, ticketAddr Address, claimer, finder [20]byte, deposit string) *types.Event {
	return &types.Event{Type: EventTypeClaimApproved, Attributes: map[string]string{
		"foundPost": postAddr.Hex(),
		"ticket":    ticketAddr.Hex(),
		"claimer":   Address(claimer).Hex(),
		"finder":    Address(finder).Hex(),
		"deposit":   deposit,
	}}
}

// NewClaimRejectedEvent returns the payload emitted when the admin rejects a
// claim and the deposit refunds to the claimer.
func NewClaimRejectedEvent(postAddr, ticketAddr Address, claimer [20]byte, deposit string) *types.Event {
	return &types.Event{Type: EventTypeClaimRejected, Attributes: map[string]string{
		"foundPost": postAddr.Hex(),
		"ticket":    ticketAddr.Hex(),
		"claimer":   Address(claimer).Hex(),
		"deposit":   deposit,
	}}
}
