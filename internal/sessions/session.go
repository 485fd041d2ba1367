package sessions

import "time"

// Session is a server-side console login. The id is what the session token wraps.
type Session struct {
	ID        string    `bson:"_id" json:"id"`
	Identity  string    `bson:"identity" json:"identity"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
