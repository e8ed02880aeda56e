package models

import "time"

// Comment is a note left on an issue. Comments are never edited.
type Comment struct {
	ID        string    `json:"id"`
	IssueID   string    `json:"issueId"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`

	Author *User `json:"author,omitempty"`
}
