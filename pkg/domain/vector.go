package domain

import "sync"

// ValueVector is the ordered list of values stored under one child name.
// It is never sparse: reading or writing past the end grows it with
// undefined values, and removing an element shifts the following ones down.
type ValueVector struct {
	mu     sync.RWMutex
	values []*Value
}

// NewValueVector returns an empty vector.
func NewValueVector() *ValueVector {
	return &ValueVector{}
}

// Get returns the element at index i, growing the vector as needed.
func (vv *ValueVector) Get(i int) *Value {
	if i < 0 {
		i = 0
	}
	vv.mu.Lock()
	defer vv.mu.Unlock()
	vv.growLocked(i)
	return vv.values[i]
}

// Lookup returns the element at index i without growing the vector.
func (vv *ValueVector) Lookup(i int) (*Value, bool) {
	vv.mu.RLock()
	defer vv.mu.RUnlock()
	if i < 0 || i >= len(vv.values) {
		return nil, false
	}
	return vv.values[i], true
}

// Set stores v at index i, growing the vector as needed.
func (vv *ValueVector) Set(i int, v *Value) {
	if i < 0 {
		i = 0
	}
	vv.mu.Lock()
	defer vv.mu.Unlock()
	vv.growLocked(i)
	vv.values[i] = v
}

// Append adds v at the end.
func (vv *ValueVector) Append(v *Value) {
	vv.mu.Lock()
	vv.values = append(vv.values, v)
	vv.mu.Unlock()
}

// Remove deletes the element at index i. Out of range indexes are ignored.
func (vv *ValueVector) Remove(i int) {
	vv.mu.Lock()
	defer vv.mu.Unlock()
	if i < 0 || i >= len(vv.values) {
		return
	}
	vv.values = append(vv.values[:i], vv.values[i+1:]...)
}

// Size returns the number of elements.
func (vv *ValueVector) Size() int {
	vv.mu.RLock()
	defer vv.mu.RUnlock()
	return len(vv.values)
}

// Values returns a snapshot of the elements.
func (vv *ValueVector) Values() []*Value {
	vv.mu.RLock()
	defer vv.mu.RUnlock()
	return append([]*Value(nil), vv.values...)
}

func (vv *ValueVector) replace(values []*Value) {
	vv.mu.Lock()
	vv.values = values
	vv.mu.Unlock()
}

func (vv *ValueVector) growLocked(i int) {
	for len(vv.values) <= i {
		vv.values = append(vv.values, NewValue())
	}
}
