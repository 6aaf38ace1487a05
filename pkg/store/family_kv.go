package store

// FamilyKV adapts one logical family of a Store to the narrow ledger.KV
// shape (Get/Set over raw keys), the same kind of adaptation the
// teacher's now-superseded bare-dbm.DB adapter performed, but scoped to
// one column-family prefix instead of the whole physical database.
type FamilyKV struct {
	store  *Store
	family Family
}

// NewFamilyKV returns a FamilyKV bound to one family of store.
func NewFamilyKV(s *Store, f Family) *FamilyKV {
	return &FamilyKV{store: s, family: f}
}

// Get implements ledger.KV.
func (k *FamilyKV) Get(key []byte) ([]byte, error) {
	return k.store.Get(k.family, key)
}

// Set implements ledger.KV.
func (k *FamilyKV) Set(key, value []byte) error {
	return k.store.Set(k.family, key, value)
}
