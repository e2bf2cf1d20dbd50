package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"local.dev/socialfeed-client/internal/backend"
	"local.dev/socialfeed-client/internal/memstore"
	"local.dev/socialfeed-client/internal/models"
	"local.dev/socialfeed-client/internal/session"
)

// minimal real PNG header so content sniffing sees image/png
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

type testEnv struct {
	store    *memstore.Store
	objects  *memstore.ObjectStore
	sessions *session.Manager
	client   *Client
	userID   string
	friendID string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store := memstore.NewStore()
	identity := memstore.NewIdentity()
	objects := memstore.NewObjectStore("")
	sessions := session.NewManager(identity, store)

	sess, err := sessions.SignUp(ctx, "me@example.com", "secret", "me")
	assert.Equal(t, nil, err)

	friendID, err := identity.SignUp(ctx, "friend@example.com", "secret")
	assert.Equal(t, nil, err)
	err = store.InsertProfile(ctx, models.Profile{ID: friendID, Username: "friend"})
	assert.Equal(t, nil, err)

	env := &testEnv{
		store:    store,
		objects:  objects,
		sessions: sessions,
		userID:   sess.UserID,
		friendID: friendID,
	}
	env.client = NewClient(store, objects, sessions, nil)
	return env
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// settled waits until cond holds and keeps holding for a short grace
// period, for assertions about the absence of further changes.
func settled(t *testing.T, cond func() bool) {
	t.Helper()
	waitFor(t, cond)
	time.Sleep(50 * time.Millisecond)
	if !cond() {
		t.Fatal("condition did not hold after settling")
	}
}

func TestToggleLikeOnceThenTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.store.InsertPost(ctx, models.Post{ID: "p1", UserID: env.friendID, Caption: "hi"})
	assert.Equal(t, nil, err)

	closeFeed, err := env.client.OpenFeed(ctx)
	assert.Equal(t, nil, err)
	defer closeFeed()
	waitFor(t, func() bool { return len(env.client.Posts()) == 1 })

	// One toggle: exactly one like for (post, me) after the reconcile.
	err = env.client.ToggleLike(ctx, "p1")
	assert.Equal(t, nil, err)
	waitFor(t, func() bool { return env.client.LikedByMe("p1") })
	assert.Equal(t, 1, len(env.client.Posts()[0].Likes))

	// Second toggle, after the first settled: back to zero.
	err = env.client.ToggleLike(ctx, "p1")
	assert.Equal(t, nil, err)
	waitFor(t, func() bool { return !env.client.LikedByMe("p1") })
	assert.Equal(t, 0, len(env.client.Posts()[0].Likes))
}

func TestToggleLikeConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.store.InsertPost(ctx, models.Post{ID: "p1", UserID: env.friendID})
	assert.Equal(t, nil, err)

	closeFeed, err := env.client.OpenFeed(ctx)
	assert.Equal(t, nil, err)
	defer closeFeed()
	waitFor(t, func() bool { return len(env.client.Posts()) == 1 })

	// Two toggles back to back without awaiting the first. Check-then-act:
	// either net effect is legal, but the reconciled view must never show
	// more than one like for (post, me) and must not crash.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = env.client.ToggleLike(ctx, "p1")
		}()
	}
	wg.Wait()

	settled(t, func() bool {
		posts := env.client.Posts()
		if len(posts) != 1 {
			return false
		}
		mine := 0
		for _, l := range posts[0].Likes {
			if l.UserID == env.userID {
				mine++
			}
		}
		return mine == 0 || mine == 1
	})
}

func TestSendMessageAppendsToConversation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Prior traffic in the conversation.
	for i, content := range []string{"earlier", "before"} {
		err := env.store.InsertMessage(ctx, models.Message{
			Content:    content,
			SenderID:   env.friendID,
			ReceiverID: env.userID,
			CreatedAt:  time.Date(2026, 1, 1, 10, 0, i, 0, time.UTC).Format(time.RFC3339),
		})
		assert.Equal(t, nil, err)
	}

	closeChat, err := env.client.OpenChat(ctx)
	assert.Equal(t, nil, err)
	defer closeChat()
	waitFor(t, func() bool { return len(env.client.Conversation(env.friendID)) == 2 })

	err = env.client.SendMessage(ctx, env.friendID, "hello")
	assert.Equal(t, nil, err)

	waitFor(t, func() bool { return len(env.client.Conversation(env.friendID)) == 3 })
	conv := env.client.Conversation(env.friendID)

	hellos := 0
	for _, m := range conv {
		if m.Content == "hello" {
			hellos++
		}
	}
	assert.Equal(t, 1, hellos)

	last := conv[len(conv)-1]
	assert.Equal(t, "hello", last.Content)
	assert.Equal(t, env.userID, last.SenderID)
	assert.Equal(t, "me", last.SenderName)
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, content := range []string{"", "   ", "\n\t"} {
		err := env.client.SendMessage(ctx, env.friendID, content)
		assert.Equal(t, backend.ErrEmptyMessage, err)
	}

	// Rejected locally: nothing reached the store.
	msgs, err := env.store.MessagesSnapshot(ctx, env.userID)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(msgs))
}

func TestCreatePost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	closeFeed, err := env.client.OpenFeed(ctx)
	assert.Equal(t, nil, err)
	defer closeFeed()

	err = env.client.CreatePost(ctx, "my cat", "cat.png", pngBytes)
	assert.Equal(t, nil, err)

	waitFor(t, func() bool { return len(env.client.Posts()) == 1 })
	post := env.client.Posts()[0]
	assert.Equal(t, "my cat", post.Caption)
	assert.Equal(t, env.userID, post.UserID)

	// The image reference resolves to a stored object.
	assert.Equal(t, true, strings.HasPrefix(post.ImageURL, "mem://uploads/"))
	key := strings.TrimPrefix(post.ImageURL, "mem://uploads/")
	assert.Equal(t, true, strings.HasSuffix(key, ".png"))
	stored, ok := env.objects.Object(key)
	assert.Equal(t, true, ok)
	assert.Equal(t, pngBytes, stored)

	// Newest-first: a later post lands on top.
	err = env.client.CreatePost(ctx, "second", "dog.png", pngBytes)
	assert.Equal(t, nil, err)
	waitFor(t, func() bool {
		posts := env.client.Posts()
		return len(posts) == 2 && posts[0].Caption == "second"
	})
}

func TestCreatePostRequiresImage(t *testing.T) {
	env := newTestEnv(t)
	err := env.client.CreatePost(context.Background(), "caption", "x.png", nil)
	assert.Equal(t, backend.ErrNoImage, err)
}

type failingObjectStore struct{}

func (failingObjectStore) Upload(ctx context.Context, key, contentType string, data []byte) error {
	return &backend.StorageError{Op: "upload", Key: key, Err: errors.New("bucket unavailable")}
}

func (failingObjectStore) PublicURL(key string) string { return "mem://uploads/" + key }

func TestCreatePostUploadFailureAbortsInsert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client := NewClient(env.store, failingObjectStore{}, env.sessions, nil)
	err := client.CreatePost(ctx, "my cat", "cat.png", pngBytes)

	var storageErr *backend.StorageError
	assert.Equal(t, true, errors.As(err, &storageErr))

	// No partial post was created.
	posts, err := env.store.PostsSnapshot(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(posts))
}

func TestMutationsRequireSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.sessions.SignOut(ctx)
	assert.Equal(t, nil, err)

	assert.Equal(t, backend.ErrNoSession, env.client.ToggleLike(ctx, "p1"))
	assert.Equal(t, backend.ErrNoSession, env.client.SendMessage(ctx, env.friendID, "hi"))
	assert.Equal(t, backend.ErrNoSession, env.client.CreatePost(ctx, "c", "x.png", pngBytes))
}

// blockingStore gates PostsSnapshot so a refetch can be held in flight
// across a channel close.
type blockingStore struct {
	*memstore.Store
	gate chan struct{}
}

func (b *blockingStore) PostsSnapshot(ctx context.Context) ([]models.Post, error) {
	<-b.gate
	return b.Store.PostsSnapshot(ctx)
}

func TestCloseDiscardsLateRefetch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var updates int32
	gated := &blockingStore{Store: env.store, gate: make(chan struct{}, 16)}
	client := NewClient(gated, env.objects, env.sessions, func(Resource) {
		atomic.AddInt32(&updates, 1)
	})

	// Let the initial refetch through.
	gated.gate <- struct{}{}
	closeFeed, err := client.OpenFeed(ctx)
	assert.Equal(t, nil, err)
	waitFor(t, func() bool { return atomic.LoadInt32(&updates) >= 1 })

	// A change event starts a refetch that blocks on the gate...
	err = env.store.InsertPost(ctx, models.Post{ID: "p1", UserID: env.friendID})
	assert.Equal(t, nil, err)

	// ...the owning view goes away while it is still in flight...
	closeFeed()

	// ...and when the fetch completes, its result must be discarded.
	close(gated.gate)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, len(client.Posts()))
}

// countingStore tracks refetch concurrency against the posts collection.
type countingStore struct {
	*memstore.Store
	mu     sync.Mutex
	active int
	peak   int
	total  int
}

func (c *countingStore) PostsSnapshot(ctx context.Context) ([]models.Post, error) {
	c.mu.Lock()
	c.active++
	c.total++
	if c.active > c.peak {
		c.peak = c.active
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.active--
		c.mu.Unlock()
	}()

	// Hold the refetch open so a burst would overlap if unserialized.
	time.Sleep(10 * time.Millisecond)
	return c.Store.PostsSnapshot(ctx)
}

func TestRefetchesNeverOverlap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	counting := &countingStore{Store: env.store}
	client := NewClient(counting, env.objects, env.sessions, nil)

	closeFeed, err := client.OpenFeed(ctx)
	assert.Equal(t, nil, err)
	defer closeFeed()

	// Burst of changes across both trigger collections (posts and likes).
	for i := 0; i < 5; i++ {
		err := env.store.InsertPost(ctx, models.Post{UserID: env.friendID})
		assert.Equal(t, nil, err)
		err = env.store.InsertLike(ctx, models.Like{PostID: "p0", UserID: env.friendID})
		assert.Equal(t, nil, err)
	}

	settled(t, func() bool { return len(client.Posts()) == 5 })

	counting.mu.Lock()
	peak, total := counting.peak, counting.total
	counting.mu.Unlock()
	assert.Equal(t, 1, peak)
	// Coalescing: far fewer refetches than the 10 events plus the initial.
	assert.Equal(t, true, total <= 6)
}
