// Package backend defines the external collaborators the sync core talks
// to: the identity provider, the object store and the queryable data store.
// The core only ever sees these interfaces; the Firebase implementations
// live in internal/firebase and the in-memory one in internal/memstore.
package backend

import (
	"context"

	"local.dev/socialfeed-client/internal/models"
)

// Collection names in the data store.
const (
	CollectionPosts    = "posts"
	CollectionLikes    = "likes"
	CollectionMessages = "messages"
	CollectionProfiles = "profiles"
)

// Identity is the external identity provider. Credential storage and
// password hashing happen on its side; the core only keeps the returned
// session value.
type Identity interface {
	SignUp(ctx context.Context, email, password string) (userID string, err error)
	SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error)
	SignOut(ctx context.Context, session *models.Session) error
}

// ObjectStore holds uploaded binaries. Keys must be collision-resistant;
// callers generate them.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	PublicURL(key string) string
}

// StopFunc tears down a watch. Safe to call more than once.
type StopFunc func()

// DataStore is the queryable data store. Snapshot reads return full,
// ordered, denormalized copies of a collection; Watch delivers
// coarse-grained "something changed" triggers with no payload fidelity
// guarantee.
type DataStore interface {
	// PostsSnapshot returns all posts newest-first, with author profile
	// fields and the full like list joined in.
	PostsSnapshot(ctx context.Context) ([]models.Post, error)

	// MessagesSnapshot returns all messages involving uid oldest-first,
	// with the sender display name joined in.
	MessagesSnapshot(ctx context.Context, uid string) ([]models.Message, error)

	InsertProfile(ctx context.Context, p models.Profile) error
	ProfileByID(ctx context.Context, uid string) (models.Profile, error)

	// LikeFor returns the like record for (postID, uid), or nil when none
	// exists.
	LikeFor(ctx context.Context, postID, uid string) (*models.Like, error)
	InsertLike(ctx context.Context, l models.Like) error
	DeleteLike(ctx context.Context, l models.Like) error

	InsertPost(ctx context.Context, p models.Post) error
	InsertMessage(ctx context.Context, m models.Message) error

	// Watch registers interest in all change events for a collection.
	// notify runs once per event; the event itself carries no data.
	Watch(ctx context.Context, collection string, notify func()) (StopFunc, error)
}
