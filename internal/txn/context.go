package txn

import (
	"context"
	"fmt"
	"sort"
)

// slotKey keys a slot's handle in a context. Keying on the slot pointer
// keeps handles of two routers with the same datasource names apart.
type slotKey struct {
	slot *Slot
}

// Store holds one Slot per datasource. The set of slots is fixed at
// construction; Store is safe for concurrent use.
type Store struct {
	slots map[string]*Slot
}

// NewStore creates a slot for every name.
func NewStore(names ...string) *Store {
	s := &Store{slots: make(map[string]*Slot, len(names))}
	for _, name := range names {
		if _, ok := s.slots[name]; ok {
			continue
		}
		s.slots[name] = &Slot{name: name}
	}
	return s
}

// Slot returns the slot for a datasource.
func (s *Store) Slot(name string) (*Slot, bool) {
	slot, ok := s.slots[name]
	return slot, ok
}

// Names returns the datasource names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.slots))
	for name := range s.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Slot carries at most one live Handle for one datasource through a
// context. The handle is visible to every context derived from the one
// returned by Set and to nothing else.
type Slot struct {
	name string
}

// Name returns the datasource name.
func (s *Slot) Name() string {
	return s.name
}

// Get returns the handle in ctx, or nil.
func (s *Slot) Get(ctx context.Context) *Handle {
	h, _ := ctx.Value(slotKey{s}).(*Handle)
	return h
}

// Token restores a slot to its value before a Set.
type Token struct {
	slot   *Slot
	prev   context.Context
	prevH  *Handle
	handle *Handle
}

// Handle returns the handle installed by the Set that produced the token.
func (t Token) Handle() *Handle {
	return t.handle
}

// Set returns a context carrying h and a token for Reset. ctx itself is not
// modified.
func (s *Slot) Set(ctx context.Context, h *Handle) (context.Context, Token) {
	tok := Token{
		slot:   s,
		prev:   ctx,
		prevH:  s.Get(ctx),
		handle: h,
	}
	return context.WithValue(ctx, slotKey{s}, h), tok
}

// Reset returns the context the token's Set was called with.
//
// Panics with a CONTEXT_LEAK error if the token was produced by another
// slot or by no Set at all. Both are programming defects.
func (s *Slot) Reset(tok Token) context.Context {
	if tok.slot != s {
		panic(&Error{
			Code:       CodeContextLeak,
			Datasource: s.name,
			Message:    fmt.Sprintf("token belongs to slot %q", tokenSlotName(tok)),
		})
	}
	if tok.prev == nil || s.Get(tok.prev) != tok.prevH {
		panic(&Error{
			Code:       CodeContextLeak,
			Datasource: s.name,
			Message:    "prior slot value cannot be restored",
		})
	}
	return tok.prev
}

func tokenSlotName(tok Token) string {
	if tok.slot == nil {
		return ""
	}
	return tok.slot.name
}
