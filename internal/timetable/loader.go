package timetable

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hallcal/internal/feed"
	appLog "hallcal/internal/log"
	"hallcal/internal/model"
	"hallcal/internal/week"
)

// ErrNoData means the feed could not be fetched or read as a whole. Callers
// show a connectivity error and never a partial timetable.
var ErrNoData = errors.New("timetable: no data")

// Fetcher retrieves the raw feed. *feed.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, src feed.Source) (feed.FetchResult, error)
}

// View is everything a renderer needs for one week.
type View struct {
	Offset      int
	Window      week.Window
	Days        []week.Day
	Total       int  // sessions in this week
	Empty       bool // no sessions this week; not an error
	FromCache   bool
	GeneratedAt time.Time
}

// Options configures a Loader.
type Options struct {
	Source  feed.Source
	Fetcher Fetcher
	Parser  *feed.Parser
	// Location is the display timezone used for "today".
	Location *time.Location
	// CacheTTL keeps parsed sessions between loads. Zero disables caching.
	CacheTTL time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type sessionsCache struct {
	sessions  []model.Session
	fromCache bool
	updatedAt time.Time
}

// Loader runs one fetch, parse and bucket cycle per call.
type Loader struct {
	src     feed.Source
	fetcher Fetcher
	parser  *feed.Parser
	loc     *time.Location
	ttl     time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	cache *sessionsCache
}

// NewLoader builds a Loader.
func NewLoader(opts Options) *Loader {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Loader{
		src:     opts.Source,
		fetcher: opts.Fetcher,
		parser:  opts.Parser,
		loc:     loc,
		ttl:     opts.CacheTTL,
		now:     now,
	}
}

// Load returns the view for the week offset weeks away from today.
func (l *Loader) Load(ctx context.Context, offset int) (View, error) {
	sessions, fromCache, err := l.sessions(ctx)
	if err != nil {
		return View{}, err
	}
	return l.assemble(sessions, fromCache, offset), nil
}

// Window returns the dates for offset without touching the feed.
func (l *Loader) Window(offset int) week.Window {
	return week.NewWindow(l.now().In(l.loc), offset)
}

func (l *Loader) assemble(sessions []model.Session, fromCache bool, offset int) View {
	now := l.now().In(l.loc)
	w := week.NewWindow(now, offset)
	days := week.Bucket(sessions, w)
	total := week.Count(days)
	return View{
		Offset:      offset,
		Window:      w,
		Days:        days,
		Total:       total,
		Empty:       total == 0,
		FromCache:   fromCache,
		GeneratedAt: now,
	}
}

// sessions returns parsed sessions, served from memory while fresh.
func (l *Loader) sessions(ctx context.Context) ([]model.Session, bool, error) {
	if l.ttl > 0 {
		l.mu.RLock()
		c := l.cache
		l.mu.RUnlock()
		if c != nil && l.now().Sub(c.updatedAt) < l.ttl {
			return c.sessions, c.fromCache, nil
		}
	}

	res, err := l.fetcher.Fetch(ctx, l.src)
	if err != nil {
		appLog.Error("timetable fetch failed", err, "id", l.src.ID)
		return nil, false, fmt.Errorf("%w: %w", ErrNoData, err)
	}
	sessions, err := l.parser.Parse(l.src, res.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrNoData, err)
	}

	if l.ttl > 0 {
		l.mu.Lock()
		l.cache = &sessionsCache{
			sessions:  sessions,
			fromCache: res.FromCache,
			updatedAt: l.now(),
		}
		l.mu.Unlock()
	}
	return sessions, res.FromCache, nil
}

// Invalidate drops the in-memory sessions so the next Load refetches.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cache = nil
	l.mu.Unlock()
}

// Refresh refetches the feed now and returns the number of sessions parsed.
func (l *Loader) Refresh(ctx context.Context) (int, error) {
	l.Invalidate()
	sessions, _, err := l.sessions(ctx)
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}
