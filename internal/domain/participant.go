package domain

type Cursor struct {
	X float64
	Y float64
}

// Participant exists only while joined to a room; its ID is the relay
// connection id of the client it represents.
type Participant struct {
	ID     string
	Name   string
	Avatar string
	Cursor Cursor
	Active bool
}
