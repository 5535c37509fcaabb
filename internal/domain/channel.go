package domain

import "time"

type Channel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	ServerID  string    `json:"server_id"`
	CreatedAt time.Time `json:"created_at"`
}
