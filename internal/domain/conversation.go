package domain

import "time"

// Document is an uploaded text source. It is immutable once stored.
type Document struct {
	ID       string
	Filename string
	Content  string
}

// Turn is a single recorded question/answer exchange for a document.
type Turn struct {
	Question      string    `json:"question"`
	Answer        string    `json:"answer"`
	SourceSnippet string    `json:"source_snippet"`
	Timestamp     time.Time `json:"timestamp"`
}
