package types

import "time"

// Road is a single user-owned record. IDs are server-assigned numeric
// strings that only ever grow; Version starts at 1 and is bumped once
// per successful update.
type Road struct {
	ID             string    `json:"id,omitempty"`
	AuthorID       int64     `json:"authorId"`
	Name           string    `json:"name"`
	Lanes          int       `json:"lanes"`
	LastMaintained time.Time `json:"lastMaintained"`
	IsOperational  bool      `json:"isOperational"`
	Version        int64     `json:"version"`
	Base64Photo    string    `json:"base64Photo,omitempty"`
	Lat            *float64  `json:"lat,omitempty"`
	Long           *float64  `json:"long,omitempty"`
}

// User is an account that can own roads and open push connections.
// PasswordHash is never serialized.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// RoadQuery captures the listing parameters for one owner's roads.
type RoadQuery struct {
	Search          string
	OnlyOperational bool
	Page            int
}

// RoadPage is one page of query results. More reports whether records
// remain beyond this window.
type RoadPage struct {
	Page  int    `json:"page"`
	Roads []Road `json:"roads"`
	More  bool   `json:"more"`
}

// Change event names pushed to owners' live connections.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// RoadEvent is the envelope pushed over the websocket channel.
type RoadEvent struct {
	Event   string           `json:"event"`
	Payload RoadEventPayload `json:"payload"`
}

// RoadEventPayload wraps the road a change event refers to.
type RoadEventPayload struct {
	Road Road `json:"road"`
}

// LoginRequest is the POST /login body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Issue is a single entry in the uniform error envelope. Exactly one of
// Error or Warning is set.
type Issue struct {
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// IssueResponse is the error envelope returned on every failure:
// {"issue":[{"error":"..."}]}.
type IssueResponse struct {
	Issue []Issue `json:"issue"`
}
