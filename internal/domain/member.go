package domain

import "time"

type MemberRole string

const (
	RoleAdmin     MemberRole = "ADMIN"
	RoleModerator MemberRole = "MODERATOR"
	RoleGuest     MemberRole = "GUEST"
)

// Member is a user's identity inside one server.
type Member struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	ServerID  string     `json:"server_id"`
	Role      MemberRole `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	// Joined fields
	User *User `json:"user,omitempty"`
}

// CanModerate reports whether the member may act on other members' messages.
func (m *Member) CanModerate() bool {
	return m.Role == RoleAdmin || m.Role == RoleModerator
}
