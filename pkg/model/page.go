package model

const (
	// FirstPage is the cursor of the first page. Pages are 1-based.
	FirstPage = 1

	// NoCursor marks the end of data: no further page may be requested.
	NoCursor = 0
)

// Page is one batch of characters plus the continuation cursor.
type Page struct {
	Characters []Character `json:"characters"`
	Next       int         `json:"next"`
}

// HasNext reports whether another page may be requested.
func (p Page) HasNext() bool {
	return p.Next != NoCursor
}

// NextCursor returns the cursor following page when it returned n items.
// An empty page ends the sequence.
func NextCursor(page, n int) int {
	if n == 0 {
		return NoCursor
	}
	return page + 1
}
