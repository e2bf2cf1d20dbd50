package firebase

import (
	"context"
	"sync"

	"cloud.google.com/go/firestore"
	"github.com/golang/glog"
	"google.golang.org/api/iterator"

	"local.dev/socialfeed-client/internal/backend"
	"local.dev/socialfeed-client/internal/models"
)

// DataStore is the Firestore-backed queryable store. Snapshots are joined
// client-side: Firestore has no joins, and the change-event payloads do
// not carry the author or like fields the views need, which is exactly why
// events are treated as triggers for a full refetch.
type DataStore struct {
	client *firestore.Client
}

func NewDataStore(client *firestore.Client) *DataStore {
	return &DataStore{client: client}
}

func queryErr(collection, op string, err error) error {
	return &backend.QueryError{Collection: collection, Op: op, Err: err}
}

// ===== snapshot reads =====

func (d *DataStore) PostsSnapshot(ctx context.Context) ([]models.Post, error) {
	profiles, err := d.profilesByID(ctx)
	if err != nil {
		return nil, err
	}
	likesByPost, err := d.likesByPost(ctx)
	if err != nil {
		return nil, err
	}

	it := d.client.Collection(backend.CollectionPosts).
		OrderBy("createdAt", firestore.Desc).
		Documents(ctx)
	defer it.Stop()

	var out []models.Post
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, queryErr(backend.CollectionPosts, "list", err)
		}
		var p models.Post
		if err := doc.DataTo(&p); err != nil {
			return nil, queryErr(backend.CollectionPosts, "decode", err)
		}
		p.ID = doc.Ref.ID
		if prof, ok := profiles[p.UserID]; ok {
			p.Username = prof.Username
			p.AvatarURL = prof.AvatarURL
		} else {
			p.Username = p.UserID
		}
		p.Likes = likesByPost[p.ID]
		out = append(out, p)
	}
	return out, nil
}

func (d *DataStore) MessagesSnapshot(ctx context.Context, uid string) ([]models.Message, error) {
	profiles, err := d.profilesByID(ctx)
	if err != nil {
		return nil, err
	}

	// Mirrors or(senderId.eq.uid, receiverId.eq.uid) on the remote query.
	q := d.client.Collection(backend.CollectionMessages).
		WhereEntity(firestore.OrFilter{
			Filters: []firestore.EntityFilter{
				firestore.PropertyFilter{Path: "senderId", Operator: "==", Value: uid},
				firestore.PropertyFilter{Path: "receiverId", Operator: "==", Value: uid},
			},
		}).
		OrderBy("createdAt", firestore.Asc)

	it := q.Documents(ctx)
	defer it.Stop()

	var out []models.Message
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, queryErr(backend.CollectionMessages, "list", err)
		}
		var m models.Message
		if err := doc.DataTo(&m); err != nil {
			return nil, queryErr(backend.CollectionMessages, "decode", err)
		}
		m.ID = doc.Ref.ID
		if prof, ok := profiles[m.SenderID]; ok {
			m.SenderName = prof.Username
		} else {
			m.SenderName = m.SenderID
		}
		out = append(out, m)
	}
	return out, nil
}

func (d *DataStore) profilesByID(ctx context.Context) (map[string]models.Profile, error) {
	it := d.client.Collection(backend.CollectionProfiles).Documents(ctx)
	defer it.Stop()

	profiles := map[string]models.Profile{}
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, queryErr(backend.CollectionProfiles, "list", err)
		}
		var p models.Profile
		if err := doc.DataTo(&p); err != nil {
			return nil, queryErr(backend.CollectionProfiles, "decode", err)
		}
		p.ID = doc.Ref.ID
		profiles[p.ID] = p
	}
	return profiles, nil
}

func (d *DataStore) likesByPost(ctx context.Context) (map[string][]models.Like, error) {
	it := d.client.Collection(backend.CollectionLikes).Documents(ctx)
	defer it.Stop()

	likes := map[string][]models.Like{}
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, queryErr(backend.CollectionLikes, "list", err)
		}
		var l models.Like
		if err := doc.DataTo(&l); err != nil {
			return nil, queryErr(backend.CollectionLikes, "decode", err)
		}
		l.ID = doc.Ref.ID
		likes[l.PostID] = append(likes[l.PostID], l)
	}
	return likes, nil
}

// ===== writes =====

func (d *DataStore) InsertProfile(ctx context.Context, p models.Profile) error {
	// Profiles are keyed by the identity provider's user id.
	_, err := d.client.Collection(backend.CollectionProfiles).Doc(p.ID).Set(ctx, p)
	if err != nil {
		return queryErr(backend.CollectionProfiles, "insert", err)
	}
	return nil
}

func (d *DataStore) ProfileByID(ctx context.Context, uid string) (models.Profile, error) {
	doc, err := d.client.Collection(backend.CollectionProfiles).Doc(uid).Get(ctx)
	if err != nil {
		return models.Profile{}, queryErr(backend.CollectionProfiles, "get", err)
	}
	var p models.Profile
	if err := doc.DataTo(&p); err != nil {
		return models.Profile{}, queryErr(backend.CollectionProfiles, "decode", err)
	}
	p.ID = doc.Ref.ID
	return p, nil
}

func (d *DataStore) LikeFor(ctx context.Context, postID, uid string) (*models.Like, error) {
	it := d.client.Collection(backend.CollectionLikes).
		Where("postId", "==", postID).
		Where("userId", "==", uid).
		Limit(1).
		Documents(ctx)
	defer it.Stop()

	doc, err := it.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, queryErr(backend.CollectionLikes, "get", err)
	}
	var l models.Like
	if err := doc.DataTo(&l); err != nil {
		return nil, queryErr(backend.CollectionLikes, "decode", err)
	}
	l.ID = doc.Ref.ID
	return &l, nil
}

func (d *DataStore) InsertLike(ctx context.Context, l models.Like) error {
	_, _, err := d.client.Collection(backend.CollectionLikes).Add(ctx, l)
	if err != nil {
		return queryErr(backend.CollectionLikes, "insert", err)
	}
	return nil
}

func (d *DataStore) DeleteLike(ctx context.Context, l models.Like) error {
	_, err := d.client.Collection(backend.CollectionLikes).Doc(l.ID).Delete(ctx)
	if err != nil {
		return queryErr(backend.CollectionLikes, "delete", err)
	}
	return nil
}

func (d *DataStore) InsertPost(ctx context.Context, p models.Post) error {
	_, _, err := d.client.Collection(backend.CollectionPosts).Add(ctx, p)
	if err != nil {
		return queryErr(backend.CollectionPosts, "insert", err)
	}
	return nil
}

func (d *DataStore) InsertMessage(ctx context.Context, m models.Message) error {
	_, _, err := d.client.Collection(backend.CollectionMessages).Add(ctx, m)
	if err != nil {
		return queryErr(backend.CollectionMessages, "insert", err)
	}
	return nil
}

// ===== change notifications =====

// Watch streams collection snapshots and calls notify on each one. The
// snapshot content is discarded; it is only a trigger. If the stream
// drops, the watcher exits and live updates stop until the channel is
// reopened.
func (d *DataStore) Watch(ctx context.Context, collection string, notify func()) (backend.StopFunc, error) {
	snaps := d.client.Collection(collection).Snapshots(ctx)

	var once sync.Once
	stop := func() {
		once.Do(snaps.Stop)
	}

	go func() {
		for {
			_, err := snaps.Next()
			if err != nil {
				if ctx.Err() == nil && err != iterator.Done {
					glog.Errorf("firestore: watch %s dropped: %v", collection, err)
				}
				return
			}
			notify()
		}
	}()
	return stop, nil
}
