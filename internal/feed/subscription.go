// Package feed is the live synchronization core: subscription channels
// that turn remote change events into refetches, a reconciler that owns
// the canonical in-memory collections, and a coordinator for user writes.
package feed

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"local.dev/socialfeed-client/internal/backend"
)

// Resource is one of the live collections tracked by the sync core.
type Resource string

const (
	ResourcePosts    Resource = "posts"
	ResourceLikes    Resource = "likes"
	ResourceMessages Resource = "messages"
)

func (r Resource) collection() string {
	switch r {
	case ResourcePosts:
		return backend.CollectionPosts
	case ResourceLikes:
		return backend.CollectionLikes
	case ResourceMessages:
		return backend.CollectionMessages
	}
	return string(r)
}

// RefetchFunc fetches a fresh snapshot and merges it. The context is the
// channel's; implementations must not apply the merge once it is done.
type RefetchFunc func(ctx context.Context) error

// Manager owns the live change-feeds. Events are triggers only; their
// payload is never interpreted, because it does not reliably carry the
// joined fields the views need.
type Manager struct {
	store backend.DataStore
}

func NewManager(store backend.DataStore) *Manager {
	return &Manager{store: store}
}

// Channel is a live subscription feeding one refetch pipeline. A channel
// usually follows a single resource; the post view's channel follows both
// posts and likes, since like records are embedded in the post snapshot
// and a like event must rebuild the same local state. Funneling both feeds
// through one channel keeps refetches against that state serialized.
type Channel struct {
	resources []Resource
	refetch   RefetchFunc
	ctx       context.Context
	cancel    context.CancelFunc
	stops     []backend.StopFunc

	mu       sync.Mutex
	running  bool
	trailing bool
	closed   bool
}

// Open registers interest in all change events for the given resources and
// triggers the initial refetch. The caller must Close the channel when its
// owning view goes away; a leaked channel keeps refetching into dead state.
func (m *Manager) Open(ctx context.Context, refetch RefetchFunc, resources ...Resource) (*Channel, error) {
	chCtx, cancel := context.WithCancel(ctx)
	ch := &Channel{
		resources: resources,
		refetch:   refetch,
		ctx:       chCtx,
		cancel:    cancel,
	}
	for _, r := range resources {
		stop, err := m.store.Watch(chCtx, r.collection(), ch.notify)
		if err != nil {
			ch.Close()
			return nil, err
		}
		ch.stops = append(ch.stops, stop)
	}

	// Initial fetch, same path as a change event.
	ch.notify()
	return ch, nil
}

func (m *Manager) Close(ch *Channel) { ch.Close() }

// Close tears the channel down. In-flight refetches are not aborted, but
// their results are discarded: the channel context is cancelled and the
// run loop stops rescheduling.
func (ch *Channel) Close() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	ch.mu.Unlock()

	ch.cancel()
	for _, stop := range ch.stops {
		stop()
	}
}

// notify schedules a refetch. At most one refetch runs at a time per
// channel; events arriving while one is in flight coalesce into a single
// trailing refetch.
func (ch *Channel) notify() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	if ch.running {
		ch.trailing = true
		ch.mu.Unlock()
		return
	}
	ch.running = true
	ch.mu.Unlock()

	go ch.run()
}

func (ch *Channel) run() {
	for {
		if err := ch.refetch(ch.ctx); err != nil && ch.ctx.Err() == nil {
			// Last-known-good snapshot stays in place.
			glog.Errorf("feed: refetch %v: %v", ch.resources, err)
		}

		ch.mu.Lock()
		if ch.trailing && !ch.closed {
			ch.trailing = false
			ch.mu.Unlock()
			continue
		}
		ch.running = false
		ch.mu.Unlock()
		return
	}
}
