package notifications

import "time"

// Verb describes what the actor did.
type Verb string

// Verbs.
const (
	VerbLiked     Verb = "liked your post"
	VerbCommented Verb = "commented on your post"
	VerbFollowed  Verb = "started following you"
)

// TargetType names the kind of entity a notification points at.
type TargetType string

// Target types.
const (
	TargetPost TargetType = "post"
	TargetUser TargetType = "user"
)

// Notification tells a recipient that an actor did something to a target.
type Notification struct {
	ID            int64      `json:"id"`
	RecipientID   int64      `json:"recipient"`
	ActorID       int64      `json:"actor"`
	ActorUsername string     `json:"actor_username,omitempty"`
	Verb          Verb       `json:"verb"`
	TargetType    TargetType `json:"target_type"`
	TargetID      int64      `json:"target_id"`
	IsRead        bool       `json:"is_read"`
	CreatedAt     time.Time  `json:"created_at"`
}

// MarkAllResult reports how many notifications were flipped to read.
type MarkAllResult struct {
	Message string `json:"message"`
	Updated int64  `json:"updated"`
}
