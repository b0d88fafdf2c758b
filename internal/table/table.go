// Package table implements the open-addressed hash map from interned
// string keys to Values that backs the VM's globals and its string-intern
// table (spec.md §3 "Tables"). Instance fields and class method tables are
// plain Go maps keyed by name and do not use this package. Deletion uses
// tombstones (nil Key with the Tombstone flag set) rather than shifting
// entries, and the table grows (rehashing and dropping tombstones) once the
// load factor would exceed 0.75.
package table

import "noxy-vm/internal/value"

const maxLoad = 0.75

// entry is a single slot. A nil Key with Tombstone set to true marks a
// deleted entry that must still be counted against the load factor (so
// linear probing can find it) but is skipped by iteration and Get.
type entry struct {
	Key       *value.ObjStringData
	Val       value.Value
	Tombstone bool
}

// Table is the open-addressed hash map keyed by interned string identity
// (pointer equality, since all strings are interned).
type Table struct {
	count   int // live entries + tombstones
	entries []entry
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

// Count returns the number of live (non-tombstone) entries.
func (t *Table) Count() int {
	live := 0
	for i := range t.entries {
		if t.entries[i].Key != nil && !t.entries[i].Tombstone {
			live++
		}
	}
	return live
}

// Get looks up key, returning its value and whether it was present.
func (t *Table) Get(key *value.ObjStringData) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.NilValue(), false
	}
	e := t.find(key)
	if e.Key == nil {
		return value.NilValue(), false
	}
	return e.Val, true
}

// Set inserts or overwrites key -> val. Returns true if this created a new
// entry (key was not previously present, tombstone or not).
func (t *Table) Set(key *value.ObjStringData, val value.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*maxLoad {
		t.grow()
	}
	e := t.find(key)
	isNew := e.Key == nil
	if isNew && !e.Tombstone {
		t.count++
	}
	e.Key = key
	e.Val = val
	e.Tombstone = false
	return isNew
}

// Delete removes key, leaving a tombstone so later probes for colliding
// keys still terminate correctly. Returns whether key was present.
func (t *Table) Delete(key *value.ObjStringData) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := t.find(key)
	if e.Key == nil {
		return false
	}
	e.Key = nil
	e.Tombstone = true
	return true
}

// Each calls fn for every live entry. fn must not mutate the table.
func (t *Table) Each(fn func(key *value.ObjStringData, val value.Value)) {
	for i := range t.entries {
		if t.entries[i].Key != nil && !t.entries[i].Tombstone {
			fn(t.entries[i].Key, t.entries[i].Val)
		}
	}
}

// find locates the slot key belongs in (its own slot if present, the first
// tombstone or empty slot on its probe sequence otherwise), via linear
// probing.
func (t *Table) find(key *value.ObjStringData) *entry {
	idx := key.Hash % uint32(len(t.entries))
	var tombstone *entry
	for {
		e := &t.entries[idx]
		if e.Key == nil {
			if !e.Tombstone {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		} else if e.Key == key {
			return e
		}
		idx = (idx + 1) % uint32(len(t.entries))
	}
}

// grow doubles capacity (starting at 8), rehashes every live entry into
// the fresh array, and drops tombstones.
func (t *Table) grow() {
	newCap := 8
	if len(t.entries) > 0 {
		newCap = len(t.entries) * 2
	}
	old := t.entries
	t.entries = make([]entry, newCap)
	t.count = 0
	for i := range old {
		if old[i].Key == nil {
			continue
		}
		e := t.find(old[i].Key)
		e.Key = old[i].Key
		e.Val = old[i].Val
		t.count++
	}
}

// FindInterned looks up a string by its raw content and hash without
// allocating an ObjStringData, used by the VM's intern table to decide
// whether a freshly concatenated/scanned string already has an interned
// twin. It returns the interned string object, or nil if absent.
func (t *Table) FindInterned(chars string, hash uint32) *value.ObjStringData {
	if len(t.entries) == 0 {
		return nil
	}
	idx := hash % uint32(len(t.entries))
	for {
		e := &t.entries[idx]
		if e.Key == nil {
			if !e.Tombstone {
				return nil
			}
		} else if e.Key.Hash == hash && e.Key.Chars == chars {
			return e.Key
		}
		idx = (idx + 1) % uint32(len(t.entries))
	}
}

// DeleteUnmarked removes every entry whose key Obj is not marked, used by
// the GC's weak-intern-table pass (spec.md §4.6 step 3). It must run
// before sweep frees the underlying string objects.
func (t *Table) DeleteUnmarked() {
	for i := range t.entries {
		if t.entries[i].Key != nil && !t.entries[i].Tombstone && !t.entries[i].Key.Marked {
			t.entries[i].Key = nil
			t.entries[i].Tombstone = true
		}
	}
}
