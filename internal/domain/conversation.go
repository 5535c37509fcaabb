package domain

import "time"

// Conversation is the direct-message channel between two members.
// MemberOneID always sorts before MemberTwoID.
type Conversation struct {
	ID          string    `json:"id"`
	MemberOneID string    `json:"member_one_id"`
	MemberTwoID string    `json:"member_two_id"`
	CreatedAt   time.Time `json:"created_at"`
	// Joined fields
	MemberOne *Member `json:"member_one,omitempty"`
	MemberTwo *Member `json:"member_two,omitempty"`
}

// CanonicalPair orders two member ids so that any unordered pair maps to a
// single (lo, hi) key.
func CanonicalPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// HasMember reports whether memberID is one of the two participants.
func (c *Conversation) HasMember(memberID string) bool {
	return c.MemberOneID == memberID || c.MemberTwoID == memberID
}

// Other returns the participant that is not memberID.
func (c *Conversation) Other(memberID string) *Member {
	if c.MemberOneID == memberID {
		return c.MemberTwo
	}
	return c.MemberOne
}
