package transcache

import (
	"context"

	"subburn/internal/transcript"
)

// Layered consults a fast cache before a durable one. Hits in the durable
// tier are copied into the fast tier.
type Layered struct {
	fast    Cache
	durable Cache
}

// NewLayered returns a two-tier cache.
func NewLayered(fast, durable Cache) *Layered {
	return &Layered{fast: fast, durable: durable}
}

type presence interface {
	Has(fp string) bool
}

type remover interface {
	Remove(fp string)
}

// Get serves fast-tier hits only while the durable tier still holds the
// entry, so removals made by another process are honoured.
func (l *Layered) Get(ctx context.Context, fp string) (transcript.Transcription, bool, error) {
	t, ok, err := l.fast.Get(ctx, fp)
	if err != nil {
		return t, false, err
	}
	if ok {
		p, checks := l.durable.(presence)
		if !checks || p.Has(fp) {
			return t, true, nil
		}
		if r, can := l.fast.(remover); can {
			r.Remove(fp)
		}
	}
	t, ok, err = l.durable.Get(ctx, fp)
	if err != nil || !ok {
		return t, ok, err
	}
	_ = l.fast.Put(ctx, fp, t)
	return t, true, nil
}

// Put writes the durable tier first so a fast-tier entry always has a
// durable copy.
func (l *Layered) Put(ctx context.Context, fp string, t transcript.Transcription) error {
	if err := l.durable.Put(ctx, fp, t); err != nil {
		return err
	}
	return l.fast.Put(ctx, fp, t)
}
