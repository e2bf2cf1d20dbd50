// Package memstore is an in-memory data store with JSON-file persistence.
// It backs the offline mode and the test suite with the same DataStore
// contract the Firestore backend implements, including change
// notifications.
package memstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
	"golang.org/x/exp/maps"

	"local.dev/socialfeed-client/internal/backend"
	"local.dev/socialfeed-client/internal/models"
)

type Store struct {
	mu       sync.RWMutex
	profiles map[string]models.Profile // userId -> profile
	posts    map[string]models.Post    // postId -> post (joined fields empty)
	likes    map[string]models.Like    // likeId -> like
	messages map[string]models.Message // messageId -> message

	watchMu   sync.Mutex
	watchers  map[string]map[int]func() // collection -> watcherId -> notify
	nextWatch int
}

func NewStore() *Store {
	return &Store{
		profiles: map[string]models.Profile{},
		posts:    map[string]models.Post{},
		likes:    map[string]models.Like{},
		messages: map[string]models.Message{},
		watchers: map[string]map[int]func(){},
	}
}

func newID() string { return ulid.Make().String() }

// ===== persistence =====

func readJSONFile[T any](path string, out *T) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func writeJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	return os.WriteFile(path, b, 0o644)
}

func (s *Store) LoadAll(profilesFile, postsFile, likesFile, messagesFile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = readJSONFile(profilesFile, &s.profiles)
	_ = readJSONFile(postsFile, &s.posts)
	_ = readJSONFile(likesFile, &s.likes)
	_ = readJSONFile(messagesFile, &s.messages)
}

func (s *Store) SaveAll(profilesFile, postsFile, likesFile, messagesFile string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_ = writeJSONFile(profilesFile, s.profiles)
	_ = writeJSONFile(postsFile, s.posts)
	_ = writeJSONFile(likesFile, s.likes)
	_ = writeJSONFile(messagesFile, s.messages)
}

// ===== watch fan-out =====

// Watch registers notify for every change to a collection. Events carry no
// payload; they are a trigger to refetch.
func (s *Store) Watch(ctx context.Context, collection string, notify func()) (backend.StopFunc, error) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	id := s.nextWatch
	s.nextWatch++
	m := s.watchers[collection]
	if m == nil {
		m = map[int]func(){}
		s.watchers[collection] = m
	}
	m[id] = notify

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.watchMu.Lock()
			defer s.watchMu.Unlock()
			delete(s.watchers[collection], id)
		})
	}
	return stop, nil
}

func (s *Store) notifyAll(collection string) {
	s.watchMu.Lock()
	fns := maps.Values(s.watchers[collection])
	s.watchMu.Unlock()
	for _, fn := range fns {
		go fn()
	}
}

// ===== profiles =====

func (s *Store) InsertProfile(ctx context.Context, p models.Profile) error {
	if p.ID == "" {
		p.ID = newID()
	}
	s.mu.Lock()
	s.profiles[p.ID] = p
	s.mu.Unlock()
	s.notifyAll(backend.CollectionProfiles)
	return nil
}

func (s *Store) ProfileByID(ctx context.Context, uid string) (models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[uid]
	if !ok {
		return models.Profile{}, &backend.QueryError{
			Collection: backend.CollectionProfiles, Op: "get", Err: backend.ErrNotFound,
		}
	}
	return p, nil
}

func (s *Store) displayName(uid string) string {
	if p, ok := s.profiles[uid]; ok && p.Username != "" {
		return p.Username
	}
	return uid
}

// ===== posts =====

func (s *Store) InsertPost(ctx context.Context, p models.Post) error {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = models.NowISO()
	}
	// Joined fields are derived at read time, never stored.
	p.Username = ""
	p.AvatarURL = nil
	p.Likes = nil
	s.mu.Lock()
	s.posts[p.ID] = p
	s.mu.Unlock()
	s.notifyAll(backend.CollectionPosts)
	return nil
}

// PostsSnapshot joins author profile fields and like lists, newest first.
func (s *Store) PostsSnapshot(ctx context.Context) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	likesByPost := map[string][]models.Like{}
	for _, l := range s.likes {
		likesByPost[l.PostID] = append(likesByPost[l.PostID], l)
	}

	out := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		p.Username = s.displayName(p.UserID)
		if prof, ok := s.profiles[p.UserID]; ok {
			p.AvatarURL = prof.AvatarURL
		}
		ls := append([]models.Like(nil), likesByPost[p.ID]...)
		sort.Slice(ls, func(i, j int) bool { return ls[i].ID < ls[j].ID })
		p.Likes = ls
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out, nil
}

// ===== likes =====

func (s *Store) LikeFor(ctx context.Context, postID, uid string) (*models.Like, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.likes {
		if l.PostID == postID && l.UserID == uid {
			cp := l
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) InsertLike(ctx context.Context, l models.Like) error {
	if l.ID == "" {
		l.ID = newID()
	}
	s.mu.Lock()
	s.likes[l.ID] = l
	s.mu.Unlock()
	s.notifyAll(backend.CollectionLikes)
	return nil
}

// DeleteLike removes every like for the record's (postId, userId) pair,
// mirroring the remote delete-by-filter.
func (s *Store) DeleteLike(ctx context.Context, l models.Like) error {
	s.mu.Lock()
	for id, x := range s.likes {
		if x.PostID == l.PostID && x.UserID == l.UserID {
			delete(s.likes, id)
		}
	}
	s.mu.Unlock()
	s.notifyAll(backend.CollectionLikes)
	return nil
}

// ===== messages =====

func (s *Store) InsertMessage(ctx context.Context, m models.Message) error {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.CreatedAt == "" {
		m.CreatedAt = models.NowISO()
	}
	m.SenderName = ""
	s.mu.Lock()
	s.messages[m.ID] = m
	s.mu.Unlock()
	s.notifyAll(backend.CollectionMessages)
	return nil
}

// MessagesSnapshot returns messages involving uid oldest-first with the
// sender display name joined in. Relevance filtering is coarse (any message
// the user sent or received); conversation filtering happens on the
// reconciled view.
func (s *Store) MessagesSnapshot(ctx context.Context, uid string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, 0)
	for _, m := range s.messages {
		if m.SenderID != uid && m.ReceiverID != uid {
			continue
		}
		m.SenderName = s.displayName(m.SenderID)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out, nil
}
