package models

import "time"

// Conversion is one finished run as kept in the history table.
type Conversion struct {
	ID        string    `json:"id"`
	WorkName  string    `json:"work_name"`
	Title     string    `json:"title"`
	Chapters  int       `json:"chapters"`
	Failed    int       `json:"failed"`
	Path      string    `json:"path,omitempty"`
	Bytes     int64     `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}
