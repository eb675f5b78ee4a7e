package models

import "time"

// Thread represents a private conversation between exactly two users.
// Participants are stored in canonical order: User1ID < User2ID.
type Thread struct {
	ID           int       `db:"id" json:"id"`
	User1ID      int       `db:"user1_id" json:"user1_id"`
	User2ID      int       `db:"user2_id" json:"user2_id"`
	LastActivity time.Time `db:"last_activity" json:"last_activity"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// OtherParticipant returns the participant that is not userID.
func (t Thread) OtherParticipant(userID int) int {
	if t.User1ID == userID {
		return t.User2ID
	}
	return t.User1ID
}

// HasParticipant reports whether userID belongs to the thread.
func (t Thread) HasParticipant(userID int) bool {
	return t.User1ID == userID || t.User2ID == userID
}

// ThreadSummary is one inbox row for a given user.
type ThreadSummary struct {
	ThreadID     int       `db:"id" json:"thread_id"`
	OtherUserID  int       `json:"other_user_id"`
	LastActivity time.Time `db:"last_activity" json:"last_activity"`
	Created      time.Time `db:"created_at" json:"created_at"`
}
