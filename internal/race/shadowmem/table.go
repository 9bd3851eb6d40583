package shadowmem

import "sync"

// Table is the concurrent address → Record map. It uses sync.Map: the
// access pattern is read-heavy on a small set of hot addresses and the
// table is essentially never resized down, which is exactly the case
// sync.Map specializes for.
type Table struct {
	records sync.Map // map[uintptr]*Record
}

// NewTable returns an empty memory access table.
func NewTable() *Table {
	return &Table{}
}

// GetOrCreate returns the Record for addr, allocating one on first access.
// Concurrent first-accesses of the same address all observe the same
// Record (LoadOrStore makes insertion idempotent).
func (t *Table) GetOrCreate(addr uintptr) *Record {
	if v, ok := t.records.Load(addr); ok {
		return v.(*Record)
	}
	actual, _ := t.records.LoadOrStore(addr, NewRecord())
	return actual.(*Record)
}

// Get returns the Record for addr without creating one, or nil if addr has
// never been accessed.
func (t *Table) Get(addr uintptr) *Record {
	v, ok := t.records.Load(addr)
	if !ok {
		return nil
	}
	return v.(*Record)
}
