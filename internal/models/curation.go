package models

// Prompt is one named entry of the prompt set.
type Prompt struct {
	Name string
	Text string
}

// Document pairs a local input file with the remote objects created for it.
type Document struct {
	Path         string
	FileID       string
	MembershipID string
}
