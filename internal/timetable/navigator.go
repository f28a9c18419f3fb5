package timetable

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned by a load that finished after a newer navigation
// was issued. Its view is discarded.
var ErrSuperseded = errors.New("timetable: superseded by a newer navigation")

// WeekLoader is what the Navigator needs from a Loader.
type WeekLoader interface {
	Load(ctx context.Context, offset int) (View, error)
}

// Navigator owns the current week offset. Every load is tagged with the
// offset and a sequence number taken at dispatch; only the latest dispatched
// load may publish its view.
type Navigator struct {
	loader WeekLoader

	mu      sync.Mutex
	offset  int
	seq     uint64
	current *View
}

// NewNavigator returns a Navigator positioned on the current week.
func NewNavigator(loader WeekLoader) *Navigator {
	return &Navigator{loader: loader}
}

// Init loads the current week.
func (n *Navigator) Init(ctx context.Context) (View, error) {
	n.mu.Lock()
	n.offset = 0
	n.mu.Unlock()
	return n.load(ctx)
}

// ChangeWeek moves delta weeks and loads the new week.
func (n *Navigator) ChangeWeek(ctx context.Context, delta int) (View, error) {
	n.mu.Lock()
	n.offset += delta
	n.mu.Unlock()
	return n.load(ctx)
}

// Offset returns the current week offset.
func (n *Navigator) Offset() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.offset
}

// Current returns the last published view, if any.
func (n *Navigator) Current() (View, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return View{}, false
	}
	return *n.current, true
}

func (n *Navigator) load(ctx context.Context) (View, error) {
	n.mu.Lock()
	n.seq++
	seq := n.seq
	offset := n.offset
	n.mu.Unlock()

	view, err := n.loader.Load(ctx, offset)

	n.mu.Lock()
	defer n.mu.Unlock()
	if seq != n.seq {
		return View{}, ErrSuperseded
	}
	if err != nil {
		// A failed load clears the view rather than leaving a stale week.
		n.current = nil
		return View{}, err
	}
	n.current = &view
	return view, nil
}
