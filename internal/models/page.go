package models

import "time"

// TimestampLayout renders FetchedAt as ISO-8601 in UTC with microseconds.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

type ExtractedPage struct {
	Title string
	Text  string
}

// FetchedPage is the normalized result of one successful page retrieval.
type FetchedPage struct {
	SourceID   int
	SourceName string
	URL        string
	Title      string
	Text       string
	FetchedAt  time.Time
}

// Timestamp returns FetchedAt exactly as it is written to FETCHED_AT.
func (p FetchedPage) Timestamp() string {
	return p.FetchedAt.UTC().Format(TimestampLayout)
}

// StampTime normalizes a wall-clock reading to the precision kept on disk.
func StampTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
