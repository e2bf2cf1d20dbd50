package models

import "time"

// Every value here is an immutable snapshot: records are replaced wholesale
// on reconciliation, never patched field by field.

type Profile struct {
	ID        string  `json:"id" firestore:"-"`
	Username  string  `json:"username" firestore:"username"`
	FullName  string  `json:"fullName" firestore:"fullName"`
	AvatarURL *string `json:"avatarUrl,omitempty" firestore:"avatarUrl,omitempty"`
}

type Like struct {
	ID     string `json:"id" firestore:"-"`
	PostID string `json:"postId" firestore:"postId"`
	UserID string `json:"userId" firestore:"userId"`
}

type Post struct {
	ID        string `json:"id" firestore:"-"`
	UserID    string `json:"userId" firestore:"userId"`
	ImageURL  string `json:"imageUrl" firestore:"imageUrl"`
	Caption   string `json:"caption" firestore:"caption"`
	CreatedAt string `json:"createdAt" firestore:"createdAt"` // ISO 8601

	// Joined fields, denormalized into the snapshot at fetch time.
	Username  string  `json:"username" firestore:"-"`
	AvatarURL *string `json:"avatarUrl,omitempty" firestore:"-"`
	Likes     []Like  `json:"likes" firestore:"-"`
}

type Message struct {
	ID         string `json:"id" firestore:"-"`
	Content    string `json:"content" firestore:"content"`
	SenderID   string `json:"senderId" firestore:"senderId"`
	ReceiverID string `json:"receiverId" firestore:"receiverId"`
	CreatedAt  string `json:"createdAt" firestore:"createdAt"` // ISO 8601

	// Joined sender display name.
	SenderName string `json:"senderName" firestore:"-"`
}

// Session is the authenticated user's identity and credential token.
// Created on sign-in, destroyed on sign-out or expiry; read-only everywhere
// else.
type Session struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	IDToken      string    `json:"idToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (s *Session) Expired() bool {
	return s == nil || (!s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt))
}

// LikedBy reports whether uid has a like record on the post. Linear scan;
// per-post like counts are expected to be small.
func (p Post) LikedBy(uid string) bool {
	for _, l := range p.Likes {
		if l.UserID == uid {
			return true
		}
	}
	return false
}

// ConversationWith reports whether the message belongs to the conversation
// identified by the unordered pair {a, b}.
func (m Message) ConversationWith(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) ||
		(m.SenderID == b && m.ReceiverID == a)
}

func NowISO() string { return time.Now().UTC().Format(time.RFC3339) }

// ParseISO parses an ISO timestamp; zero value on failure.
func ParseISO(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
