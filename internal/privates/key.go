package privates

import "errors"

// ErrInvalidKey is returned when using a zero or released Key.
var ErrInvalidKey = errors.New("privates: invalid key")

// Key is a typed handle to one allocated index.
//
// A Key carries the kind it was allocated for, so values stored through it
// can only be read back as T.
type Key[T any] struct {
	index Index
	kind  Kind
	valid bool
}

// NewKey allocates an index from a and wraps it in a Key.
func NewKey[T any](a *Allocator) (Key[T], error) {
	idx, err := a.Allocate()
	if err != nil {
		return Key[T]{}, err
	}
	return Key[T]{index: idx, kind: a.Kind(), valid: true}, nil
}

// Index returns the raw slot index.
func (k Key[T]) Index() Index {
	if !k.valid {
		return InvalidIndex
	}
	return k.index
}

// Kind returns the object kind the key belongs to.
func (k Key[T]) Kind() Kind {
	return k.kind
}

// Valid reports whether the key refers to an allocated index.
func (k Key[T]) Valid() bool {
	return k.valid
}

// Get returns the value stored on h. ok is false when nothing of type T is
// stored there.
func (k Key[T]) Get(h Holder) (v T, ok bool) {
	if !k.valid || h == nil {
		return v, false
	}
	v, ok = h.Privates().Get(k.index).(T)
	return v, ok
}

// Set stores v on h.
func (k Key[T]) Set(h Holder, v T) error {
	if !k.valid {
		return ErrInvalidKey
	}
	return h.Privates().Set(k.index, v)
}

// Delete clears the cell on h.
func (k Key[T]) Delete(h Holder) {
	if k.valid && h != nil {
		h.Privates().Clear(k.index)
	}
}

// Release frees the index back to a and invalidates the key.
func (k *Key[T]) Release(a *Allocator) error {
	if !k.valid {
		return ErrInvalidKey
	}
	err := a.Free(k.index)
	k.valid = false
	k.index = InvalidIndex
	return err
}
