package core

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"findare/core/events"
	"findare/core/state"
	"findare/core/types"
	"findare/native/lostfound"
	"findare/storage"
)

// txDomain separates transaction hashes from every other keccak use.
var txDomain = []byte("findare/tx/v1")

// TxResult reports the outcome of a committed transition.
type TxResult struct {
	Hash   [32]byte
	Events []*types.Event
}

type eventCarrier interface {
	Event() *types.Event
}

// Ledger executes protocol transitions against durable storage. Each Apply
// call is atomic: the transition runs on an overlay and only commits when the
// whole transition succeeds, so concurrent submitters never observe partial
// application. Transitions are serialized by the ledger's mutex, which is the
// ordering guarantee the counter-based sequence race relies on.
type Ledger struct {
	mu      sync.Mutex
	db      storage.Database
	emitter events.Emitter
	nowFn   func() int64
}

// NewLedger creates a ledger over the provided database.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db, emitter: events.NoopEmitter{}}
}

// SetEmitter configures where committed transition events are broadcast.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// SetNowFunc overrides the transition time source, primarily for tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nowFn = now
}

// Apply runs one transition. On error nothing is persisted and the error is
// returned to the caller untouched; on success the overlay commits and the
// result carries a deterministic transaction hash plus the events the
// transition emitted.
func (l *Ledger) Apply(opName string, fn func(*lostfound.Engine) error) (*TxResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	overlay := storage.NewOverlay(l.db)
	manager := state.NewManager(overlay)
	engine := lostfound.NewEngine()
	engine.SetState(manager)
	collector := &events.CollectingEmitter{}
	engine.SetEmitter(collector)
	if l.nowFn != nil {
		engine.SetNowFunc(l.nowFn)
	}

	if err := fn(engine); err != nil {
		overlay.Discard()
		return nil, err
	}

	nonce, err := manager.TxNonce()
	if err != nil {
		overlay.Discard()
		return nil, err
	}
	if err := manager.SetTxNonce(nonce + 1); err != nil {
		overlay.Discard()
		return nil, err
	}
	if err := overlay.Commit(); err != nil {
		overlay.Discard()
		return nil, fmt.Errorf("core: commit transition %s: %w", opName, err)
	}

	result := &TxResult{Hash: txHash(opName, nonce)}
	for _, evt := range collector.Events {
		l.emitter.Emit(evt)
		if carrier, ok := evt.(eventCarrier); ok {
			result.Events = append(result.Events, carrier.Event())
		}
	}
	return result, nil
}

// View runs a read-only function against committed state.
func (l *Ledger) View(fn func(*state.Manager) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(state.NewManager(l.db))
}

// Mint credits newly issued base units to an account. It exists so operators
// can fund identities on private deployments; production balances arrive
// through the ledger collaborator.
func (l *Ledger) Mint(addr lostfound.Address, amount *big.Int) (*TxResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: mint amount must be positive", lostfound.ErrConstraint)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	overlay := storage.NewOverlay(l.db)
	manager := state.NewManager(overlay)
	account, err := manager.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	if err := manager.PutAccount(addr, account); err != nil {
		return nil, err
	}
	nonce, err := manager.TxNonce()
	if err != nil {
		return nil, err
	}
	if err := manager.SetTxNonce(nonce + 1); err != nil {
		return nil, err
	}
	if err := overlay.Commit(); err != nil {
		return nil, fmt.Errorf("core: commit mint: %w", err)
	}
	return &TxResult{Hash: txHash("mint", nonce)}, nil
}

func txHash(opName string, nonce uint64) [32]byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, nonce)
	digest := ethcrypto.Keccak256(txDomain, []byte(opName), buf)
	var hash [32]byte
	copy(hash[:], digest)
	return hash
}
