package storage

// Overlay stages writes on top of a backing Database so a state transition can
// be applied speculatively and either committed as a unit or discarded. It
// plays the role a Merkle trie's commit/reset cycle plays on a full chain: the
// backing store never observes a half-applied transition.
//
// Overlay is not safe for concurrent use; the ledger serializes transitions.
type Overlay struct {
	base    Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

func NewOverlay(base Database) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	delete(o.deletes, string(key))
	o.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, bool, error) {
	if _, gone := o.deletes[string(key)]; gone {
		return nil, false, nil
	}
	if value, ok := o.writes[string(key)]; ok {
		return append([]byte(nil), value...), true, nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Delete(key []byte) error {
	delete(o.writes, string(key))
	o.deletes[string(key)] = struct{}{}
	return nil
}

// Close satisfies the Database interface; the backing store stays open.
func (o *Overlay) Close() error { return nil }

// Dirty reports whether the overlay holds uncommitted changes.
func (o *Overlay) Dirty() bool {
	return len(o.writes) > 0 || len(o.deletes) > 0
}

// Commit flushes staged writes and deletes to the backing database and resets
// the overlay. If any backing operation fails the overlay keeps its staged
// state so the caller can retry or discard.
func (o *Overlay) Commit() error {
	for key, value := range o.writes {
		if err := o.base.Put([]byte(key), value); err != nil {
			return err
		}
	}
	for key := range o.deletes {
		if err := o.base.Delete([]byte(key)); err != nil {
			return err
		}
	}
	o.reset()
	return nil
}

// Discard drops all staged changes, returning the overlay to the backing
// database's view.
func (o *Overlay) Discard() {
	o.reset()
}

func (o *Overlay) reset() {
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
}
