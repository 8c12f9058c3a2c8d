package model

// TrackCandidate is one search result row: produced by the track search
// service, shown to the user for selection, then discarded.
type TrackCandidate struct {
	ID       string
	Title    string
	Artists  string // display string, joined artist names
	Duration int    // seconds
}
