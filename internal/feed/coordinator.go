package feed

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"local.dev/socialfeed-client/internal/backend"
	"local.dev/socialfeed-client/internal/models"
	"local.dev/socialfeed-client/internal/session"
)

// Coordinator executes user-initiated writes against the remote store.
// It never touches the canonical collections: the view converges through
// the change notification each write fans out.
type Coordinator struct {
	store    backend.DataStore
	objects  backend.ObjectStore
	sessions *session.Manager
}

func NewCoordinator(store backend.DataStore, objects backend.ObjectStore, sessions *session.Manager) *Coordinator {
	return &Coordinator{store: store, objects: objects, sessions: sessions}
}

// ToggleLike reads the current like state for (post, user) from the store
// and deletes or inserts accordingly. Check-then-act: the existence check
// is authoritative, not the local cache, so a toggle acts on server truth
// rather than a stale view. Two racing toggles settle on one of the two
// legal outcomes.
func (co *Coordinator) ToggleLike(ctx context.Context, postID string) error {
	sess := co.sessions.Current()
	if sess == nil {
		return backend.ErrNoSession
	}

	existing, err := co.store.LikeFor(ctx, postID, sess.UserID)
	if err != nil {
		glog.Errorf("feed: like lookup %s: %v", postID, err)
		return err
	}
	if existing != nil {
		return co.store.DeleteLike(ctx, *existing)
	}
	return co.store.InsertLike(ctx, models.Like{
		PostID: postID,
		UserID: sess.UserID,
	})
}

// SendMessage inserts a message from the current user to friendID.
// Whitespace-only content is rejected locally, no round trip. There is no
// local echo: the message shows up once the notification-triggered
// reconcile fetches it back.
func (co *Coordinator) SendMessage(ctx context.Context, friendID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return backend.ErrEmptyMessage
	}
	sess := co.sessions.Current()
	if sess == nil {
		return backend.ErrNoSession
	}
	return co.store.InsertMessage(ctx, models.Message{
		Content:    content,
		SenderID:   sess.UserID,
		ReceiverID: friendID,
		CreatedAt:  models.NowISO(),
	})
}

// CreatePost uploads the image under a fresh collision-resistant key, then
// inserts a post record referencing its public URL. Not atomic: if the
// record insert fails after the upload succeeded, the stored object is
// orphaned. That gap is logged, not cleaned up.
func (co *Coordinator) CreatePost(ctx context.Context, caption, filename string, image []byte) error {
	if len(image) == 0 {
		return backend.ErrNoImage
	}
	sess := co.sessions.Current()
	if sess == nil {
		return backend.ErrNoSession
	}

	ext, contentType := imageType(filename, image)
	key := ulid.Make().String() + ext

	if err := co.objects.Upload(ctx, key, contentType, image); err != nil {
		glog.Errorf("feed: upload %s: %v", key, err)
		return err
	}

	post := models.Post{
		UserID:    sess.UserID,
		ImageURL:  co.objects.PublicURL(key),
		Caption:   caption,
		CreatedAt: models.NowISO(),
	}
	if err := co.store.InsertPost(ctx, post); err != nil {
		glog.Warningf("feed: post insert failed, object %s orphaned: %v", key, err)
		return err
	}
	return nil
}

// imageType sniffs the content type and picks a file extension, preferring
// the detected type over the original filename.
func imageType(filename string, data []byte) (ext, contentType string) {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	contentType = http.DetectContentType(head)

	switch contentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	case "image/gif":
		ext = ".gif"
	default:
		ext = strings.ToLower(filepath.Ext(filename))
		if ext == "" {
			ext = ".bin"
		}
	}
	return ext, contentType
}
