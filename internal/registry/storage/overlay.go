package storage

import (
	"context"
)

// Loader reads committed entries, including expired ones.
type Loader interface {
	Load(ctx context.Context, key Key) (Entry, bool, error)
}

// Change is one staged mutation.
type Change struct {
	Key     Key
	Entry   Entry
	Deleted bool
}

type staged struct {
	entry   Entry
	deleted bool
}

// Overlay is a KV that stages writes over a Loader until the backend
// commits them. It is not safe for concurrent use.
type Overlay struct {
	base   Loader
	seq    uint32
	staged map[Key]staged
	order  []Key
}

// NewOverlay starts an overlay at ledger seq.
func NewOverlay(base Loader, seq uint32) *Overlay {
	return &Overlay{base: base, seq: seq, staged: make(map[Key]staged)}
}

// Sequence is the ledger the overlay was opened at.
func (o *Overlay) Sequence() uint32 { return o.seq }

func (o *Overlay) lookup(ctx context.Context, key Key) (Entry, bool, error) {
	if s, ok := o.staged[key]; ok {
		if s.deleted {
			return Entry{}, false, nil
		}
		return s.entry, true, nil
	}
	e, ok, err := o.base.Load(ctx, key)
	if err != nil || !ok || !e.Live(o.seq) {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (o *Overlay) stage(key Key, s staged) {
	if _, ok := o.staged[key]; !ok {
		o.order = append(o.order, key)
	}
	o.staged[key] = s
}

func (o *Overlay) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	e, ok, err := o.lookup(ctx, key)
	return e.Value, ok, err
}

func (o *Overlay) Has(ctx context.Context, key Key) (bool, error) {
	_, ok, err := o.lookup(ctx, key)
	return ok, err
}

func (o *Overlay) Set(ctx context.Context, key Key, value []byte) error {
	e, ok, err := o.lookup(ctx, key)
	if err != nil {
		return err
	}
	var existing *Entry
	if ok {
		existing = &e
	}
	v := make([]byte, len(value))
	copy(v, value)
	o.stage(key, staged{entry: Entry{Value: v, LiveUntil: LiveUntilOnSet(existing, o.seq)}})
	return nil
}

func (o *Overlay) Delete(ctx context.Context, key Key) error {
	o.stage(key, staged{deleted: true})
	return nil
}

func (o *Overlay) ExtendTTL(ctx context.Context, key Key, threshold, extendTo uint32) error {
	e, ok, err := o.lookup(ctx, key)
	if err != nil || !ok {
		return err
	}
	if live, changed := Extend(e, o.seq, threshold, extendTo); changed {
		e.LiveUntil = live
		o.stage(key, staged{entry: e})
	}
	return nil
}

func (o *Overlay) LiveUntil(ctx context.Context, key Key) (uint32, bool, error) {
	e, ok, err := o.lookup(ctx, key)
	return e.LiveUntil, ok, err
}

// Changes returns staged mutations in first-touch order.
func (o *Overlay) Changes() []Change {
	out := make([]Change, 0, len(o.order))
	for _, k := range o.order {
		s := o.staged[k]
		out = append(out, Change{Key: k, Entry: s.entry, Deleted: s.deleted})
	}
	return out
}
