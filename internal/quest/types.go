package quest

import (
	"time"

	"github.com/google/uuid"
)

// Date is a calendar day in ISO form ("2006-01-02"). All quest state is
// keyed by day, never by instant — a reconnecting client on the same day
// must land on the same assignment and transcript.
type Date = string

// DateOf truncates an instant to its UTC calendar day.
func DateOf(t time.Time) Date {
	return t.UTC().Format("2006-01-02")
}

// PrevDate returns the day before d. Invalid input returns "".
func PrevDate(d Date) Date {
	t, err := time.Parse("2006-01-02", d)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format("2006-01-02")
}

// Message is one turn of a transcript. Ordering is by position in the
// slice, not by timestamp — clock skew must never reorder a transcript.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Assignment binds a calendar day to exactly one persona. Append-only:
// once written for a date it is never mutated or deleted.
type Assignment struct {
	Date      Date
	PersonaID uuid.UUID
	CreatedAt time.Time
}

// Progress is one user's state for one quest day. After Completed flips
// to true the reward fields and the transcript are frozen.
type Progress struct {
	UserID      uuid.UUID
	Date        Date
	PersonaID   uuid.UUID
	Messages    []Message
	Flags       []int // flagged assistant-message indices, never sent to the model
	Completed   bool
	CompletedAt *time.Time
	CoinsEarned int
	XPEarned    int
	CreatedAt   time.Time
}

// Reward is the payout of a completed quest.
type Reward struct {
	CoinsEarned int `json:"coins_earned"`
	XPEarned    int `json:"xp_earned"`
}

// CollectionEntry is the permanent trophy record written at exposure time.
type CollectionEntry struct {
	UserID      uuid.UUID
	PersonaID   uuid.UUID
	Date        Date
	ChatLog     []Message
	PostChatQA  []Message
	ExposedAt   time.Time
}

// LeaderboardRow is one user's aggregate. Counters only ever go up;
// FastestTime only ever goes down.
type LeaderboardRow struct {
	UserID            uuid.UUID
	TotalExposures    int
	StreakDays        int
	FastestTime       *int // seconds, nil until first timed completion
	LastCompletedDate Date
}

// LeaderboardDelta is one completion's contribution to a user's aggregate,
// applied transactionally by the store.
type LeaderboardDelta struct {
	CompletedDate  Date
	CompletionSecs *int // nil when the timing metric is unavailable
}

// Profile is a device-bound user identity.
type Profile struct {
	ID         uuid.UUID
	DeviceID   string
	Name       string
	TotalCoins int
	TotalXP    int
}
