package domain

import (
	"strings"
	"time"
)

// Role represents a user role
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Segment is the partition tag that decides which downstream profile store
// receives a replica of the user. Immutable after registration.
type Segment string

const (
	SegmentA Segment = "SEGMENT_A"
	SegmentB Segment = "SEGMENT_B"
)

// ParseSegment maps a tag to its Segment, ignoring case. The second return
// is false for tags outside the known set.
func ParseSegment(s string) (Segment, bool) {
	switch Segment(strings.ToUpper(s)) {
	case SegmentA:
		return SegmentA, true
	case SegmentB:
		return SegmentB, true
	}
	return "", false
}

// User represents an identity record
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize password
	Role         Role      `json:"role"`
	Segment      Segment   `json:"segment"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RefreshToken is the persisted rotation credential. At most one live token
// exists per user; issuance deletes all prior rows for the owner first.
type RefreshToken struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Token      string    `json:"token"`
	ExpiryDate time.Time `json:"expiry_date"`
	CreatedAt  time.Time `json:"created_at"`
}

// Claims carries the verified identity extracted from an access token
type Claims struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}
