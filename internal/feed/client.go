package feed

import (
	"context"

	"local.dev/socialfeed-client/internal/backend"
	"local.dev/socialfeed-client/internal/models"
	"local.dev/socialfeed-client/internal/session"
)

// UpdateFunc runs after a resource's collection has been reconciled.
// The UI re-renders from the projections; it must not mutate them.
type UpdateFunc func(Resource)

// Client ties the sync core together: channels trigger refetches, the
// reconciler merges snapshots, the coordinator handles writes.
type Client struct {
	store    backend.DataStore
	sessions *session.Manager
	subs     *Manager
	view     *Reconciler
	coord    *Coordinator
	onUpdate UpdateFunc
}

func NewClient(store backend.DataStore, objects backend.ObjectStore, sessions *session.Manager, onUpdate UpdateFunc) *Client {
	if onUpdate == nil {
		onUpdate = func(Resource) {}
	}
	return &Client{
		store:    store,
		sessions: sessions,
		subs:     NewManager(store),
		view:     NewReconciler(),
		coord:    NewCoordinator(store, objects, sessions),
		onUpdate: onUpdate,
	}
}

// OpenFeed opens the live channel backing the post list. Changes to the
// posts collection and to the likes collection both refetch the post
// snapshot, since like lists are embedded per post. Returns the teardown
// func; leaking it past the owning view is a defect.
func (c *Client) OpenFeed(ctx context.Context) (func(), error) {
	ch, err := c.subs.Open(ctx, c.refetchPosts, ResourcePosts, ResourceLikes)
	if err != nil {
		return nil, err
	}
	return ch.Close, nil
}

// OpenChat opens the live channel backing the conversation views.
func (c *Client) OpenChat(ctx context.Context) (func(), error) {
	ch, err := c.subs.Open(ctx, c.refetchMessages, ResourceMessages)
	if err != nil {
		return nil, err
	}
	return ch.Close, nil
}

func (c *Client) refetchPosts(ctx context.Context) error {
	snapshot, err := c.store.PostsSnapshot(ctx)
	if err != nil {
		return err
	}
	// A refetch that lands after teardown must not touch the view.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.view.ReconcilePosts(snapshot)
	c.onUpdate(ResourcePosts)
	return nil
}

func (c *Client) refetchMessages(ctx context.Context) error {
	sess := c.sessions.Current()
	if sess == nil {
		return backend.ErrNoSession
	}
	snapshot, err := c.store.MessagesSnapshot(ctx, sess.UserID)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.view.ReconcileMessages(snapshot)
	c.onUpdate(ResourceMessages)
	return nil
}

// ===== projections =====

func (c *Client) Posts() []models.Post { return c.view.Posts() }

// Conversation projects the messages exchanged with friendID.
func (c *Client) Conversation(friendID string) []models.Message {
	sess := c.sessions.Current()
	if sess == nil {
		return nil
	}
	return c.view.Conversation(sess.UserID, friendID)
}

func (c *Client) LikedByMe(postID string) bool {
	sess := c.sessions.Current()
	if sess == nil {
		return false
	}
	return c.view.LikedBy(postID, sess.UserID)
}

// ===== mutations =====

func (c *Client) ToggleLike(ctx context.Context, postID string) error {
	return c.coord.ToggleLike(ctx, postID)
}

func (c *Client) SendMessage(ctx context.Context, friendID, content string) error {
	return c.coord.SendMessage(ctx, friendID, content)
}

func (c *Client) CreatePost(ctx context.Context, caption, filename string, image []byte) error {
	return c.coord.CreatePost(ctx, caption, filename, image)
}
