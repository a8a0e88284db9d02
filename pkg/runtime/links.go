package runtime

import (
	"context"
	"sync"
)

// Links implements internal links: named rendezvous points between threads of
// the same interpreter. LinkIn and LinkOut on the same name meet pairwise; the
// first to arrive parks until its counterpart shows up. Each arrival wakes
// exactly one party.
type Links struct {
	mu   sync.Mutex
	ins  map[string][]*Future[struct{}]
	outs map[string][]*Future[struct{}]
}

// NewLinks creates an empty link table.
func NewLinks() *Links {
	return &Links{
		ins:  make(map[string][]*Future[struct{}]),
		outs: make(map[string][]*Future[struct{}]),
	}
}

// In waits for a LinkOut on name.
func (l *Links) In(ctx context.Context, t *Thread, name string) error {
	return l.meet(ctx, t, name, l.ins, l.outs)
}

// Out waits for a LinkIn on name.
func (l *Links) Out(ctx context.Context, t *Thread, name string) error {
	return l.meet(ctx, t, name, l.outs, l.ins)
}

func (l *Links) meet(ctx context.Context, t *Thread, name string, mine, theirs map[string][]*Future[struct{}]) error {
	l.mu.Lock()
	for len(theirs[name]) > 0 {
		peer := theirs[name][0]
		theirs[name] = theirs[name][1:]
		if len(theirs[name]) == 0 {
			delete(theirs, name)
		}
		if peer.Complete(struct{}{}) {
			l.mu.Unlock()
			return nil
		}
	}
	f := NewFuture[struct{}]()
	mine[name] = append(mine[name], f)
	f.OnCancel(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		list := mine[name]
		for i, other := range list {
			if other == f {
				mine[name] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(mine[name]) == 0 {
			delete(mine, name)
		}
	})
	l.mu.Unlock()

	_, err := Await(ctx, t, f)
	return err
}

// Pending returns the number of parked parties on name.
func (l *Links) Pending(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ins[name]) + len(l.outs[name])
}
