package feed

import (
	"sort"
	"sync"

	"local.dev/socialfeed-client/internal/models"
)

// Reconciler owns the canonical in-memory collections. Each reconcile call
// replaces a collection with a freshly fetched snapshot; nothing else ever
// mutates them. Reconciling the same snapshot twice is a no-op.
type Reconciler struct {
	mu       sync.RWMutex
	posts    []models.Post
	messages []models.Message
}

func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// ReconcilePosts replaces the post collection. Order is normalized to
// newest-first by creation timestamp, ties broken by id ascending, and
// each post's like list is deduplicated by (post, user).
func (r *Reconciler) ReconcilePosts(snapshot []models.Post) {
	posts := make([]models.Post, len(snapshot))
	copy(posts, snapshot)
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].CreatedAt == posts[j].CreatedAt {
			return posts[i].ID < posts[j].ID
		}
		return posts[i].CreatedAt > posts[j].CreatedAt
	})
	for i := range posts {
		posts[i].Likes = dedupLikes(posts[i].Likes)
	}

	r.mu.Lock()
	r.posts = posts
	r.mu.Unlock()
}

// ReconcileMessages replaces the message collection. Order is normalized
// to oldest-first (chronological reading order), ties by id ascending.
func (r *Reconciler) ReconcileMessages(snapshot []models.Message) {
	msgs := make([]models.Message, len(snapshot))
	copy(msgs, snapshot)
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt == msgs[j].CreatedAt {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt < msgs[j].CreatedAt
	})

	r.mu.Lock()
	r.messages = msgs
	r.mu.Unlock()
}

// at most one like per user on a post, first record wins
func dedupLikes(likes []models.Like) []models.Like {
	if len(likes) < 2 {
		return likes
	}
	seen := map[string]struct{}{}
	out := make([]models.Like, 0, len(likes))
	for _, l := range likes {
		if _, ok := seen[l.UserID]; ok {
			continue
		}
		seen[l.UserID] = struct{}{}
		out = append(out, l)
	}
	return out
}

// ===== projections (read-only copies) =====

func (r *Reconciler) Posts() []models.Post {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Post(nil), r.posts...)
}

func (r *Reconciler) Messages() []models.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Message(nil), r.messages...)
}

// Conversation projects the messages of the unordered pair {a, b},
// preserving chronological order.
func (r *Reconciler) Conversation(a, b string) []models.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Message, 0)
	for _, m := range r.messages {
		if m.ConversationWith(a, b) {
			out = append(out, m)
		}
	}
	return out
}

// LikedBy reports whether uid has liked the post, from the reconciled view.
func (r *Reconciler) LikedBy(postID, uid string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.posts {
		if p.ID == postID {
			return p.LikedBy(uid)
		}
	}
	return false
}
