package resources

import "fmt"

// Index is a bidirectional mapping between strings (words or user
// identifiers) and dense integer ids in [0, Len()).
type Index struct {
	toID   map[string]int
	fromID []string
}

// NewIndex builds an Index assigning ids in order of first appearance.
func NewIndex(names []string) *Index {
	idx := &Index{toID: make(map[string]int, len(names))}
	for _, n := range names {
		idx.Add(n)
	}
	return idx
}

// Add returns the id of name, assigning the next free id if name is new.
func (x *Index) Add(name string) int {
	if id, ok := x.toID[name]; ok {
		return id
	}
	id := len(x.fromID)
	x.toID[name] = id
	x.fromID = append(x.fromID, name)
	return id
}

// ID returns the id for name.
func (x *Index) ID(name string) (int, bool) {
	id, ok := x.toID[name]
	return id, ok
}

// Name returns the string for id.
func (x *Index) Name(id int) (string, error) {
	if id < 0 || id >= len(x.fromID) {
		return "", fmt.Errorf("id %d out of range [0, %d)", id, len(x.fromID))
	}
	return x.fromID[id], nil
}

// Len returns the number of entries.
func (x *Index) Len() int {
	return len(x.fromID)
}

// Names returns the entries ordered by id.
func (x *Index) Names() []string {
	return append([]string(nil), x.fromID...)
}
