package lostfound

import (
	"fmt"
	"math/big"
	"time"

	"findare/core/events"
	"findare/core/types"
)

// engineState is the storage surface the transition engine runs against. The
// ledger provides an implementation whose writes commit atomically per
// transition; tests use an in-memory mock.
type engineState interface {
	ConfigPut(*AppConfig) error
	ConfigGet() (*AppConfig, bool, error)

	LostPostPut(addr Address, post *LostPost) error
	LostPostGet(addr Address) (*LostPost, bool, error)

	FoundPostPut(addr Address, post *FoundPost) error
	FoundPostGet(addr Address) (*FoundPost, bool, error)

	ClaimTicketPut(addr Address, ticket *ClaimTicket) error
	ClaimTicketGet(addr Address) (*ClaimTicket, bool, error)
	ClaimTicketDelete(addr Address) error

	FoundReportPut(addr Address, report *FoundReport) error
	FoundReportGet(addr Address) (*FoundReport, bool, error)
	FoundReportDelete(addr Address) error

	// Escrow ledger: per-record unreleased amounts, mirroring the vault balance.
	EscrowCredit(addr Address, amount *big.Int) error
	EscrowDebit(addr Address, amount *big.Int) error

	GetAccount(addr Address) (*types.Account, error)
	PutAccount(addr Address, account *types.Account) error
}

type lostfoundEvent struct {
	evt *types.Event
}

func (e lostfoundEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e lostfoundEvent) Event() *types.Event { return e.evt }

// Engine wires the lost-and-found business logic with external state and event
// emitters. Every exported method is one atomic transition: the caller is
// responsible for committing or discarding the state writes as a unit.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an engine with a no-op emitter. Callers can override the
// emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(lostfoundEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (e *Engine) requireState() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return nil
}

func (e *Engine) loadConfig() (*AppConfig, error) {
	cfg, ok, err := e.state.ConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

func (e *Engine) requireAdmin(caller [20]byte) (*AppConfig, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Admin != caller {
		return nil, fmt.Errorf("%w: only the administrator may approve or reject", ErrUnauthorized)
	}
	return cfg, nil
}

// transfer moves base units between two accounts. A zero amount is a no-op.
func (e *Engine) transfer(from, to Address, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("%w: negative transfer amount", ErrConstraint)
	}
	fromAcc, err := e.state.GetAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: account %s holds %s, needs %s",
			ErrInsufficientFunds, from.Hex(), fromAcc.Balance, amt)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

// Initialize creates the AppConfig singleton with the caller as the immutable
// administrator. The transition is idempotent: when a config already exists
// the stored instance is returned unchanged, so racing first-time
// initializers resolve to first-writer-wins without an error.
func (e *Engine) Initialize(caller [20]byte) (*AppConfig, Address, error) {
	if err := e.requireState(); err != nil {
		return nil, Address{}, err
	}
	addr, _, err := ConfigAddress()
	if err != nil {
		return nil, Address{}, err
	}
	if caller == ([20]byte{}) {
		return nil, Address{}, fmt.Errorf("%w: admin identity must not be the null identity", ErrConstraint)
	}
	if existing, ok, err := e.state.ConfigGet(); err != nil {
		return nil, Address{}, err
	} else if ok {
		return existing.Clone(), addr, nil
	}
	cfg := &AppConfig{Admin: caller}
	if err := e.state.ConfigPut(cfg); err != nil {
		return nil, Address{}, err
	}
	e.emit(NewAppInitializedEvent(cfg, addr))
	return cfg.Clone(), addr, nil
}

// CreateLostPost records a lost item and escrows the reward in the vault. The
// sequence number must equal the current lost-post counter; a stale value
// fails with ErrSequenceConflict and the caller retries with a fresh read.
func (e *Engine) CreateLostPost(poster [20]byte, seq uint64, fields PostFields, reward *big.Int) (*LostPost, Address, error) {
	if err := e.requireState(); err != nil {
		return nil, Address{}, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, Address{}, err
	}
	if err := fields.Validate(); err != nil {
		return nil, Address{}, err
	}
	amount := cloneBigInt(reward)
	if amount.Sign() <= 0 {
		return nil, Address{}, fmt.Errorf("%w: reward must be positive", ErrConstraint)
	}
	if seq != cfg.LostPostCount {
		return nil, Address{}, fmt.Errorf("%w: expected sequence %d, got %d",
			ErrSequenceConflict, cfg.LostPostCount, seq)
	}
	addr, _, err := LostPostAddress(poster, seq)
	if err != nil {
		return nil, Address{}, err
	}
	if _, occupied, err := e.state.LostPostGet(addr); err != nil {
		return nil, Address{}, err
	} else if occupied {
		return nil, Address{}, fmt.Errorf("%w: lost post %s", ErrAddressOccupied, addr.Hex())
	}
	vault, _, err := VaultAddress()
	if err != nil {
		return nil, Address{}, err
	}
	if err := e.transfer(Address(poster), vault, amount); err != nil {
		return nil, Address{}, err
	}
	if err := e.state.EscrowCredit(addr, amount); err != nil {
		return nil, Address{}, err
	}
	post := &LostPost{
		Owner:     poster,
		Seq:       seq,
		Fields:    fields,
		Reward:    amount,
		Status:    LostPostOpen,
		CreatedAt: e.now(),
	}
	if err := e.state.LostPostPut(addr, post); err != nil {
		return nil, Address{}, err
	}
	cfg.LostPostCount++
	if err := e.state.ConfigPut(cfg); err != nil {
		return nil, Address{}, err
	}
	e.emit(NewLostPostCreatedEvent(addr, post))
	return post.Clone(), addr, nil
}

// SubmitFoundReport files a finder's report against an open lost post, moving
// it into admin review. The post owner cannot report their own item.
func (e *Engine) SubmitFoundReport(lostPost Address, finder [20]byte, evidenceURI string) (*FoundReport, Address, error) {
	if err := e.requireState(); err != nil {
		return nil, Address{}, err
	}
	post, ok, err := e.state.LostPostGet(lostPost)
	if err != nil {
		return nil, Address{}, err
	}
	if !ok {
		return nil, Address{}, fmt.Errorf("%w: lost post %s", ErrNotFound, lostPost.Hex())
	}
	if post.Status != LostPostOpen {
		return nil, Address{}, fmt.Errorf("%w: lost post is %s, reports require open",
			ErrInvalidStatus, post.Status)
	}
	if finder == post.Owner {
		return nil, Address{}, fmt.Errorf("%w: owner cannot report their own lost post", ErrSelfDealing)
	}
	report := &FoundReport{
		Finder:      finder,
		LostPost:    lostPost,
		EvidenceURI: evidenceURI,
		CreatedAt:   e.now(),
	}
	sanitized, err := SanitizeFoundReport(report)
	if err != nil {
		return nil, Address{}, err
	}
	reportAddr, _, err := FoundReportAddress(lostPost, finder)
	if err != nil {
		return nil, Address{}, err
	}
	if _, occupied, err := e.state.FoundReportGet(reportAddr); err != nil {
		return nil, Address{}, err
	} else if occupied {
		return nil, Address{}, fmt.Errorf("%w: found report %s", ErrAddressOccupied, reportAddr.Hex())
	}
	if err := e.state.FoundReportPut(reportAddr, sanitized); err != nil {
		return nil, Address{}, err
	}
	finderCopy := finder
	post.Finder = &finderCopy
	post.Status = LostPostAwaitingAdminReview
	if err := e.state.LostPostPut(lostPost, post); err != nil {
		return nil, Address{}, err
	}
	e.emit(NewReportSubmittedEvent(lostPost, reportAddr, finder))
	return sanitized.Clone(), reportAddr, nil
}

// ApproveFoundReport settles a pending found report: the escrowed reward moves
// to the finder and the post closes. Only the administrator may approve, and
// only from awaiting-admin-review; a repeat approval fails instead of paying
// twice.
func (e *Engine) ApproveFoundReport(caller [20]byte, lostPost Address) (*LostPost, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	if _, err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	post, ok, err := e.state.LostPostGet(lostPost)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: lost post %s", ErrNotFound, lostPost.Hex())
	}
	if post.Status != LostPostAwaitingAdminReview {
		return nil, fmt.Errorf("%w: lost post is %s, approval requires awaiting_admin_review",
			ErrInvalidStatus, post.Status)
	}
	if post.Finder == nil {
		return nil, fmt.Errorf("lostfound: lost post %s awaiting review without a finder", lostPost.Hex())
	}
	finder := *post.Finder
	vault, _, err := VaultAddress()
	if err != nil {
		return nil, err
	}
	reward := cloneBigInt(post.Reward)
	if err := e.state.EscrowDebit(lostPost, reward); err != nil {
		return nil, err
	}
	if err := e.transfer(vault, Address(finder), reward); err != nil {
		return nil, err
	}
	reportAddr, _, err := FoundReportAddress(lostPost, finder)
	if err != nil {
		return nil, err
	}
	if err := e.state.FoundReportDelete(reportAddr); err != nil {
		return nil, err
	}
	post.Status = LostPostClosed
	if err := e.state.LostPostPut(lostPost, post); err != nil {
		return nil, err
	}
	e.emit(NewReportApprovedEvent(lostPost, finder, reward.String()))
	return post.Clone(), nil
}

// RejectFoundReport returns a lost post to open, clearing the recorded finder
// so a new report can be filed. No funds move.
func (e *Engine) RejectFoundReport(caller [20]byte, lostPost Address) (*LostPost, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	if _, err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	post, ok, err := e.state.LostPostGet(lostPost)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: lost post %s", ErrNotFound, lostPost.Hex())
	}
	if post.Status != LostPostAwaitingAdminReview {
		return nil, fmt.Errorf("%w: lost post is %s, rejection requires awaiting_admin_review",
			ErrInvalidStatus, post.Status)
	}
	if post.Finder == nil {
		return nil, fmt.Errorf("lostfound: lost post %s awaiting review without a finder", lostPost.Hex())
	}
	finder := *post.Finder
	reportAddr, _, err := FoundReportAddress(lostPost, finder)
	if err != nil {
		return nil, err
	}
	if err := e.state.FoundReportDelete(reportAddr); err != nil {
		return nil, err
	}
	post.Finder = nil
	post.Status = LostPostOpen
	if err := e.state.LostPostPut(lostPost, post); err != nil {
		return nil, err
	}
	e.emit(NewReportRejectedEvent(lostPost, finder))
	return post.Clone(), nil
}

// CreateFoundListing records a found item. Nothing is escrowed at creation;
// deposits attach to claim tickets.
func (e *Engine) CreateFoundListing(finder [20]byte, seq uint64, fields PostFields) (*FoundPost, Address, error) {
	if err := e.requireState(); err != nil {
		return nil, Address{}, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, Address{}, err
	}
	if err := fields.Validate(); err != nil {
		return nil, Address{}, err
	}
	if seq != cfg.FoundPostCount {
		return nil, Address{}, fmt.Errorf("%w: expected sequence %d, got %d",
			ErrSequenceConflict, cfg.FoundPostCount, seq)
	}
	addr, _, err := FoundPostAddress(finder, seq)
	if err != nil {
		return nil, Address{}, err
	}
	if _, occupied, err := e.state.FoundPostGet(addr); err != nil {
		return nil, Address{}, err
	} else if occupied {
		return nil, Address{}, fmt.Errorf("%w: found post %s", ErrAddressOccupied, addr.Hex())
	}
	post := &FoundPost{
		Finder:    finder,
		Seq:       seq,
		Fields:    fields,
		Status:    FoundPostOpen,
		CreatedAt: e.now(),
	}
	if err := e.state.FoundPostPut(addr, post); err != nil {
		return nil, Address{}, err
	}
	cfg.FoundPostCount++
	if err := e.state.ConfigPut(cfg); err != nil {
		return nil, Address{}, err
	}
	e.emit(NewFoundPostCreatedEvent(addr, post))
	return post.Clone(), addr, nil
}

// ClaimFoundListing opens a claim ticket against an open found listing,
// escrowing the claimant's deposit. The listing's own finder cannot claim it.
func (e *Engine) ClaimFoundListing(foundPost Address, claimer [20]byte, notes string, deposit *big.Int) (*ClaimTicket, Address, error) {
	if err := e.requireState(); err != nil {
		return nil, Address{}, err
	}
	post, ok, err := e.state.FoundPostGet(foundPost)
	if err != nil {
		return nil, Address{}, err
	}
	if !ok {
		return nil, Address{}, fmt.Errorf("%w: found post %s", ErrNotFound, foundPost.Hex())
	}
	if post.Status != FoundPostOpen {
		return nil, Address{}, fmt.Errorf("%w: found post is %s, claims require open",
			ErrInvalidStatus, post.Status)
	}
	if claimer == post.Finder {
		return nil, Address{}, fmt.Errorf("%w: finder cannot claim their own listing", ErrSelfDealing)
	}
	ticket := &ClaimTicket{
		Claimer:   claimer,
		FoundPost: foundPost,
		Notes:     notes,
		Deposit:   cloneBigInt(deposit),
		CreatedAt: e.now(),
	}
	sanitized, err := SanitizeClaimTicket(ticket)
	if err != nil {
		return nil, Address{}, err
	}
	ticketAddr, _, err := ClaimTicketAddress(foundPost, claimer)
	if err != nil {
		return nil, Address{}, err
	}
	if _, occupied, err := e.state.ClaimTicketGet(ticketAddr); err != nil {
		return nil, Address{}, err
	} else if occupied {
		return nil, Address{}, fmt.Errorf("%w: claim ticket %s", ErrAddressOccupied, ticketAddr.Hex())
	}
	vault, _, err := VaultAddress()
	if err != nil {
		return nil, Address{}, err
	}
	if err := e.transfer(Address(claimer), vault, sanitized.Deposit); err != nil {
		return nil, Address{}, err
	}
	if err := e.state.EscrowCredit(ticketAddr, sanitized.Deposit); err != nil {
		return nil, Address{}, err
	}
	if err := e.state.ClaimTicketPut(ticketAddr, sanitized); err != nil {
		return nil, Address{}, err
	}
	post.ActiveClaim = &ticketAddr
	post.Status = FoundPostAwaitingAdminReview
	if err := e.state.FoundPostPut(foundPost, post); err != nil {
		return nil, Address{}, err
	}
	e.emit(NewClaimSubmittedEvent(foundPost, ticketAddr, claimer, sanitized.Deposit.String()))
	return sanitized.Clone(), ticketAddr, nil
}

// ApproveClaim settles a pending claim in the claimant's favour: the deposit
// moves to the listing's finder, the ticket is destroyed, and the listing
// closes as claimed. The winning ticket address stays on the listing as
// history.
func (e *Engine) ApproveClaim(caller [20]byte, foundPost Address) (*FoundPost, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	if _, err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	post, ticket, ticketAddr, err := e.loadPendingClaim(foundPost)
	if err != nil {
		return nil, err
	}
	vault, _, err := VaultAddress()
	if err != nil {
		return nil, err
	}
	deposit := cloneBigInt(ticket.Deposit)
	if err := e.state.EscrowDebit(ticketAddr, deposit); err != nil {
		return nil, err
	}
	if err := e.transfer(vault, Address(post.Finder), deposit); err != nil {
		return nil, err
	}
	if err := e.state.ClaimTicketDelete(ticketAddr); err != nil {
		return nil, err
	}
	post.Status = FoundPostClaimed
	if err := e.state.FoundPostPut(foundPost, post); err != nil {
		return nil, err
	}
	e.emit(NewClaimApprovedEvent(foundPost, ticketAddr, ticket.Claimer, post.Finder, deposit.String()))
	return post.Clone(), nil
}

// RejectClaim settles a pending claim against the claimant: the deposit
// refunds, the ticket is destroyed, and the listing reopens for a new
// claimant.
func (e *Engine) RejectClaim(caller [20]byte, foundPost Address) (*FoundPost, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	if _, err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	post, ticket, ticketAddr, err := e.loadPendingClaim(foundPost)
	if err != nil {
		return nil, err
	}
	vault, _, err := VaultAddress()
	if err != nil {
		return nil, err
	}
	deposit := cloneBigInt(ticket.Deposit)
	if err := e.state.EscrowDebit(ticketAddr, deposit); err != nil {
		return nil, err
	}
	if err := e.transfer(vault, Address(ticket.Claimer), deposit); err != nil {
		return nil, err
	}
	if err := e.state.ClaimTicketDelete(ticketAddr); err != nil {
		return nil, err
	}
	post.ActiveClaim = nil
	post.Status = FoundPostOpen
	if err := e.state.FoundPostPut(foundPost, post); err != nil {
		return nil, err
	}
	e.emit(NewClaimRejectedEvent(foundPost, ticketAddr, ticket.Claimer, deposit.String()))
	return post.Clone(), nil
}

func (e *Engine) loadPendingClaim(foundPost Address) (*FoundPost, *ClaimTicket, Address, error) {
	post, ok, err := e.state.FoundPostGet(foundPost)
	if err != nil {
		return nil, nil, Address{}, err
	}
	if !ok {
		return nil, nil, Address{}, fmt.Errorf("%w: found post %s", ErrNotFound, foundPost.Hex())
	}
	if post.Status != FoundPostAwaitingAdminReview {
		return nil, nil, Address{}, fmt.Errorf("%w: found post is %s, settlement requires awaiting_admin_review",
			ErrInvalidStatus, post.Status)
	}
	if post.ActiveClaim == nil {
		return nil, nil, Address{}, fmt.Errorf("lostfound: found post %s awaiting review without an active claim", foundPost.Hex())
	}
	ticketAddr := *post.ActiveClaim
	ticket, ok, err := e.state.ClaimTicketGet(ticketAddr)
	if err != nil {
		return nil, nil, Address{}, err
	}
	if !ok {
		return nil, nil, Address{}, fmt.Errorf("%w: claim ticket %s", ErrNotFound, ticketAddr.Hex())
	}
	return post, ticket, ticketAddr, nil
}
