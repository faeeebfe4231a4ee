package state

import (
	"bytes"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"findare/core/types"
	"findare/native/lostfound"
	"findare/storage"
)

// DiscriminatorLen is the byte length of the type tag prefixed to every
// persisted record.
const DiscriminatorLen = 8

// Record type names. The discriminator of a type is the first eight bytes of
// keccak256("findare:record:" + name), fixed forever so independent scanners
// agree on it.
const (
	RecordAppConfig   = "AppConfig"
	RecordLostPost    = "LostPost"
	RecordFoundPost   = "FoundPost"
	RecordClaimTicket = "ClaimTicket"
	RecordFoundReport = "FoundReport"
)

var (
	recordPrefix      = []byte("record:")
	accountPrefix     = []byte("account:")
	escrowPrefix      = []byte("escrow:")
	escrowTotalKey    = ethcrypto.Keccak256([]byte("escrow-total"))
	recordIndexKey    = ethcrypto.Keccak256([]byte("record-index"))
	txNonceKey        = ethcrypto.Keccak256([]byte("ledger:tx-nonce"))
	discriminatorSeed = []byte("findare:record:")
)

// Discriminator returns the fixed 8-byte type tag for a record type name.
func Discriminator(name string) [DiscriminatorLen]byte {
	digest := ethcrypto.Keccak256(append(append([]byte(nil), discriminatorSeed...), name...))
	var disc [DiscriminatorLen]byte
	copy(disc[:], digest)
	return disc
}

func recordKey(addr lostfound.Address) []byte {
	buf := make([]byte, len(recordPrefix)+len(addr))
	copy(buf, recordPrefix)
	copy(buf[len(recordPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func accountKey(addr lostfound.Address) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func escrowKey(addr lostfound.Address) []byte {
	buf := make([]byte, len(escrowPrefix)+len(addr))
	copy(buf, escrowPrefix)
	copy(buf[len(escrowPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

// Manager reads and writes protocol state against a key-value backend. When
// the backend is a storage.Overlay the manager's writes stay speculative until
// the overlay commits, which is how the ledger makes transitions atomic.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// --- record envelopes ---

func (m *Manager) putRecord(addr lostfound.Address, name string, payload interface{}) error {
	encoded, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", name, err)
	}
	disc := Discriminator(name)
	envelope := make([]byte, 0, DiscriminatorLen+len(encoded))
	envelope = append(envelope, disc[:]...)
	envelope = append(envelope, encoded...)
	if err := m.db.Put(recordKey(addr), envelope); err != nil {
		return err
	}
	return m.indexAdd(addr)
}

func (m *Manager) getRecord(addr lostfound.Address, name string, out interface{}) (bool, error) {
	envelope, ok, err := m.db.Get(recordKey(addr))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	disc := Discriminator(name)
	if len(envelope) < DiscriminatorLen || !bytes.Equal(envelope[:DiscriminatorLen], disc[:]) {
		// Another record type occupies the address; treat as absent for this
		// type while creation paths check occupancy via RecordEnvelope.
		return false, nil
	}
	if err := rlp.DecodeBytes(envelope[DiscriminatorLen:], out); err != nil {
		return false, fmt.Errorf("state: decode %s at %s: %w", name, addr.Hex(), err)
	}
	return true, nil
}

func (m *Manager) deleteRecord(addr lostfound.Address) error {
	if err := m.db.Delete(recordKey(addr)); err != nil {
		return err
	}
	return m.indexRemove(addr)
}

// RecordEnvelope returns the raw discriminator and payload stored at an
// address. Absence is reported via the boolean, never as an error.
func (m *Manager) RecordEnvelope(addr lostfound.Address) ([DiscriminatorLen]byte, []byte, bool, error) {
	var disc [DiscriminatorLen]byte
	envelope, ok, err := m.db.Get(recordKey(addr))
	if err != nil || !ok {
		return disc, nil, false, err
	}
	if len(envelope) < DiscriminatorLen {
		return disc, nil, false, fmt.Errorf("state: truncated envelope at %s", addr.Hex())
	}
	copy(disc[:], envelope)
	return disc, append([]byte(nil), envelope[DiscriminatorLen:]...), true, nil
}

// --- record index (enables discriminator scans without a server-side index) ---

func (m *Manager) loadIndex() ([]lostfound.Address, error) {
	data, ok, err := m.db.Get(recordIndexKey)
	if err != nil || !ok {
		return nil, err
	}
	var raw [][]byte
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return nil, fmt.Errorf("state: decode record index: %w", err)
	}
	addrs := make([]lostfound.Address, 0, len(raw))
	for _, b := range raw {
		if len(b) != len(lostfound.Address{}) {
			return nil, fmt.Errorf("state: malformed index entry of %d bytes", len(b))
		}
		var addr lostfound.Address
		copy(addr[:], b)
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (m *Manager) storeIndex(addrs []lostfound.Address) error {
	raw := make([][]byte, 0, len(addrs))
	for _, addr := range addrs {
		raw = append(raw, append([]byte(nil), addr[:]...))
	}
	encoded, err := rlp.EncodeToBytes(raw)
	if err != nil {
		return err
	}
	return m.db.Put(recordIndexKey, encoded)
}

func (m *Manager) indexAdd(addr lostfound.Address) error {
	addrs, err := m.loadIndex()
	if err != nil {
		return err
	}
	for _, existing := range addrs {
		if existing == addr {
			return nil
		}
	}
	return m.storeIndex(append(addrs, addr))
}

func (m *Manager) indexRemove(addr lostfound.Address) error {
	addrs, err := m.loadIndex()
	if err != nil {
		return err
	}
	filtered := addrs[:0]
	for _, existing := range addrs {
		if existing != addr {
			filtered = append(filtered, existing)
		}
	}
	return m.storeIndex(filtered)
}

// ScanByDiscriminator returns the addresses of all live records carrying the
// given type tag, in insertion order.
func (m *Manager) ScanByDiscriminator(disc [DiscriminatorLen]byte) ([]lostfound.Address, error) {
	addrs, err := m.loadIndex()
	if err != nil {
		return nil, err
	}
	var matched []lostfound.Address
	for _, addr := range addrs {
		stored, _, ok, err := m.RecordEnvelope(addr)
		if err != nil {
			return nil, err
		}
		if ok && stored == disc {
			matched = append(matched, addr)
		}
	}
	return matched, nil
}

// --- storage representations ---

type storedConfig struct {
	Admin          [20]byte
	LostPostCount  uint64
	FoundPostCount uint64
}

type storedLostPost struct {
	Owner       [20]byte
	Seq         uint64
	Title       string
	Description string
	Attributes  string
	PhotoRef    string
	Reward      *big.Int
	Status      uint8
	FinderSet   bool
	Finder      [20]byte
	CreatedAt   uint64
}

type storedFoundPost struct {
	Finder      [20]byte
	Seq         uint64
	Title       string
	Description string
	Attributes  string
	PhotoRef    string
	Status      uint8
	ClaimSet    bool
	ActiveClaim [20]byte
	CreatedAt   uint64
}

type storedClaimTicket struct {
	Claimer   [20]byte
	FoundPost [20]byte
	Notes     string
	Deposit   *big.Int
	CreatedAt uint64
}

type storedFoundReport struct {
	Finder      [20]byte
	LostPost    [20]byte
	EvidenceURI string
	CreatedAt   uint64
}

// --- AppConfig ---

// ConfigPut stores the AppConfig singleton at its derived address.
func (m *Manager) ConfigPut(cfg *lostfound.AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("state: nil app config")
	}
	addr, _, err := lostfound.ConfigAddress()
	if err != nil {
		return err
	}
	return m.putRecord(addr, RecordAppConfig, &storedConfig{
		Admin:          cfg.Admin,
		LostPostCount:  cfg.LostPostCount,
		FoundPostCount: cfg.FoundPostCount,
	})
}

// ConfigGet loads the AppConfig singleton.
func (m *Manager) ConfigGet() (*lostfound.AppConfig, bool, error) {
	addr, _, err := lostfound.ConfigAddress()
	if err != nil {
		return nil, false, err
	}
	var stored storedConfig
	ok, err := m.getRecord(addr, RecordAppConfig, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &lostfound.AppConfig{
		Admin:          stored.Admin,
		LostPostCount:  stored.LostPostCount,
		FoundPostCount: stored.FoundPostCount,
	}, true, nil
}

// --- LostPost ---

func (m *Manager) LostPostPut(addr lostfound.Address, post *lostfound.LostPost) error {
	sanitized, err := lostfound.SanitizeLostPost(post)
	if err != nil {
		return err
	}
	stored := &storedLostPost{
		Owner:       sanitized.Owner,
		Seq:         sanitized.Seq,
		Title:       sanitized.Fields.Title,
		Description: sanitized.Fields.Description,
		Attributes:  sanitized.Fields.Attributes,
		PhotoRef:    sanitized.Fields.PhotoRef,
		Reward:      sanitized.Reward,
		Status:      uint8(sanitized.Status),
		CreatedAt:   uint64(sanitized.CreatedAt),
	}
	if sanitized.Finder != nil {
		stored.FinderSet = true
		stored.Finder = *sanitized.Finder
	}
	return m.putRecord(addr, RecordLostPost, stored)
}

func (m *Manager) LostPostGet(addr lostfound.Address) (*lostfound.LostPost, bool, error) {
	var stored storedLostPost
	ok, err := m.getRecord(addr, RecordLostPost, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	post := &lostfound.LostPost{
		Owner: stored.Owner,
		Seq:   stored.Seq,
		Fields: lostfound.PostFields{
			Title:       stored.Title,
			Description: stored.Description,
			Attributes:  stored.Attributes,
			PhotoRef:    stored.PhotoRef,
		},
		Reward:    stored.Reward,
		Status:    lostfound.LostPostStatus(stored.Status),
		CreatedAt: int64(stored.CreatedAt),
	}
	if stored.FinderSet {
		finder := stored.Finder
		post.Finder = &finder
	}
	return post, true, nil
}

// LostPostList returns all lost posts with their addresses.
func (m *Manager) LostPostList() ([]lostfound.Address, []*lostfound.LostPost, error) {
	addrs, err := m.ScanByDiscriminator(Discriminator(RecordLostPost))
	if err != nil {
		return nil, nil, err
	}
	posts := make([]*lostfound.LostPost, 0, len(addrs))
	for _, addr := range addrs {
		post, ok, err := m.LostPostGet(addr)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			posts = append(posts, post)
		}
	}
	return addrs, posts, nil
}

// --- FoundPost ---

func (m *Manager) FoundPostPut(addr lostfound.Address, post *lostfound.FoundPost) error {
	sanitized, err := lostfound.SanitizeFoundPost(post)
	if err != nil {
		return err
	}
	stored := &storedFoundPost{
		Finder:      sanitized.Finder,
		Seq:         sanitized.Seq,
		Title:       sanitized.Fields.Title,
		Description: sanitized.Fields.Description,
		Attributes:  sanitized.Fields.Attributes,
		PhotoRef:    sanitized.Fields.PhotoRef,
		Status:      uint8(sanitized.Status),
		CreatedAt:   uint64(sanitized.CreatedAt),
	}
	if sanitized.ActiveClaim != nil {
		stored.ClaimSet = true
		stored.ActiveClaim = *sanitized.ActiveClaim
	}
	return m.putRecord(addr, RecordFoundPost, stored)
}

func (m *Manager) FoundPostGet(addr lostfound.Address) (*lostfound.FoundPost, bool, error) {
	var stored storedFoundPost
	ok, err := m.getRecord(addr, RecordFoundPost, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	post := &lostfound.FoundPost{
		Finder: stored.Finder,
		Seq:    stored.Seq,
		Fields: lostfound.PostFields{
			Title:       stored.Title,
			Description: stored.Description,
			Attributes:  stored.Attributes,
			PhotoRef:    stored.PhotoRef,
		},
		Status:    lostfound.FoundPostStatus(stored.Status),
		CreatedAt: int64(stored.CreatedAt),
	}
	if stored.ClaimSet {
		claim := lostfound.Address(stored.ActiveClaim)
		post.ActiveClaim = &claim
	}
	return post, true, nil
}

// FoundPostList returns all found listings with their addresses.
func (m *Manager) FoundPostList() ([]lostfound.Address, []*lostfound.FoundPost, error) {
	addrs, err := m.ScanByDiscriminator(Discriminator(RecordFoundPost))
	if err != nil {
		return nil, nil, err
	}
	posts := make([]*lostfound.FoundPost, 0, len(addrs))
	for _, addr := range addrs {
		post, ok, err := m.FoundPostGet(addr)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			posts = append(posts, post)
		}
	}
	return addrs, posts, nil
}

// --- ClaimTicket ---

func (m *Manager) ClaimTicketPut(addr lostfound.Address, ticket *lostfound.ClaimTicket) error {
	sanitized, err := lostfound.SanitizeClaimTicket(ticket)
	if err != nil {
		return err
	}
	return m.putRecord(addr, RecordClaimTicket, &storedClaimTicket{
		Claimer:   sanitized.Claimer,
		FoundPost: sanitized.FoundPost,
		Notes:     sanitized.Notes,
		Deposit:   sanitized.Deposit,
		CreatedAt: uint64(sanitized.CreatedAt),
	})
}

func (m *Manager) ClaimTicketGet(addr lostfound.Address) (*lostfound.ClaimTicket, bool, error) {
	var stored storedClaimTicket
	ok, err := m.getRecord(addr, RecordClaimTicket, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &lostfound.ClaimTicket{
		Claimer:   stored.Claimer,
		FoundPost: lostfound.Address(stored.FoundPost),
		Notes:     stored.Notes,
		Deposit:   stored.Deposit,
		CreatedAt: int64(stored.CreatedAt),
	}, true, nil
}

func (m *Manager) ClaimTicketDelete(addr lostfound.Address) error {
	return m.deleteRecord(addr)
}

// --- FoundReport ---

func (m *Manager) FoundReportPut(addr lostfound.Address, report *lostfound.FoundReport) error {
	sanitized, err := lostfound.SanitizeFoundReport(report)
	if err != nil {
		return err
	}
	return m.putRecord(addr, RecordFoundReport, &storedFoundReport{
		Finder:      sanitized.Finder,
		LostPost:    sanitized.LostPost,
		EvidenceURI: sanitized.EvidenceURI,
		CreatedAt:   uint64(sanitized.CreatedAt),
	})
}

func (m *Manager) FoundReportGet(addr lostfound.Address) (*lostfound.FoundReport, bool, error) {
	var stored storedFoundReport
	ok, err := m.getRecord(addr, RecordFoundReport, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &lostfound.FoundReport{
		Finder:      stored.Finder,
		LostPost:    lostfound.Address(stored.LostPost),
		EvidenceURI: stored.EvidenceURI,
		CreatedAt:   int64(stored.CreatedAt),
	}, true, nil
}

func (m *Manager) FoundReportDelete(addr lostfound.Address) error {
	return m.deleteRecord(addr)
}

// --- accounts ---

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

// GetAccount loads an account, returning a zero-balance account when none is
// stored yet.
func (m *Manager) GetAccount(addr lostfound.Address) (*types.Account, error) {
	data, ok, err := m.db.Get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account %s: %w", addr.Hex(), err)
	}
	balance := stored.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	return &types.Account{Nonce: stored.Nonce, Balance: balance}, nil
}

// PutAccount stores an account.
func (m *Manager) PutAccount(addr lostfound.Address, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Sign() < 0 {
		return fmt.Errorf("state: negative balance for %s", addr.Hex())
	}
	encoded, err := rlp.EncodeToBytes(&storedAccount{Nonce: account.Nonce, Balance: balance})
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), encoded)
}

// --- escrow ledger ---

func (m *Manager) escrowAmount(key []byte) (*big.Int, error) {
	data, ok, err := m.db.Get(key)
	if err != nil || !ok {
		return big.NewInt(0), err
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, fmt.Errorf("state: decode escrow amount: %w", err)
	}
	return amount, nil
}

func (m *Manager) storeEscrowAmount(key []byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return m.db.Delete(key)
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// EscrowCredit records amount as held in custody for the record at addr.
func (m *Manager) EscrowCredit(addr lostfound.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: escrow credit must be positive")
	}
	held, err := m.escrowAmount(escrowKey(addr))
	if err != nil {
		return err
	}
	if err := m.storeEscrowAmount(escrowKey(addr), new(big.Int).Add(held, amount)); err != nil {
		return err
	}
	total, err := m.escrowAmount(escrowTotalKey)
	if err != nil {
		return err
	}
	return m.storeEscrowAmount(escrowTotalKey, new(big.Int).Add(total, amount))
}

// EscrowDebit releases amount from the record's custody. Debiting more than is
// held fails, guarding the conservation law against double release.
func (m *Manager) EscrowDebit(addr lostfound.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: escrow debit must be positive")
	}
	held, err := m.escrowAmount(escrowKey(addr))
	if err != nil {
		return err
	}
	if held.Cmp(amount) < 0 {
		return fmt.Errorf("state: escrow for %s holds %s, cannot debit %s", addr.Hex(), held, amount)
	}
	if err := m.storeEscrowAmount(escrowKey(addr), new(big.Int).Sub(held, amount)); err != nil {
		return err
	}
	total, err := m.escrowAmount(escrowTotalKey)
	if err != nil {
		return err
	}
	if total.Cmp(amount) < 0 {
		return fmt.Errorf("state: escrow total %s below debit %s", total, amount)
	}
	return m.storeEscrowAmount(escrowTotalKey, new(big.Int).Sub(total, amount))
}

// EscrowBalance returns the amount currently held for a single record.
func (m *Manager) EscrowBalance(addr lostfound.Address) (*big.Int, error) {
	return m.escrowAmount(escrowKey(addr))
}

// EscrowTotal returns the sum of all unreleased escrow amounts. It must equal
// the vault account balance at all times.
func (m *Manager) EscrowTotal() (*big.Int, error) {
	return m.escrowAmount(escrowTotalKey)
}

// --- transaction nonce ---

// TxNonce returns the next transaction sequence number for the ledger.
func (m *Manager) TxNonce() (uint64, error) {
	data, ok, err := m.db.Get(txNonceKey)
	if err != nil || !ok {
		return 0, err
	}
	var nonce uint64
	if err := rlp.DecodeBytes(data, &nonce); err != nil {
		return 0, fmt.Errorf("state: decode tx nonce: %w", err)
	}
	return nonce, nil
}

// SetTxNonce persists the next transaction sequence number.
func (m *Manager) SetTxNonce(nonce uint64) error {
	encoded, err := rlp.EncodeToBytes(nonce)
	if err != nil {
		return err
	}
	return m.db.Put(txNonceKey, encoded)
}
