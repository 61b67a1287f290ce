package models

import (
	"crypto/md5"
	"fmt"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusBlocked = "blocked"
)

// CrawlHistory is one fetch outcome for the audit trail kept in MongoDB.
type CrawlHistory struct {
	ID           string `bson:"_id"`
	RunID        string `bson:"run_id"`
	SourceID     int    `bson:"source_id"`
	Source       string `bson:"source"`
	URL          string `bson:"url"`
	Status       string `bson:"status"` // success, error, blocked
	StatusCode   int    `bson:"status_code"`
	Title        string `bson:"title,omitempty"`
	ContentHash  string `bson:"content_hash,omitempty"`
	StoredPath   string `bson:"stored_path,omitempty"`
	Timestamp    int64  `bson:"timestamp"`
	Duration     int    `bson:"duration_ms"`
	ErrorMessage string `bson:"error_message,omitempty"`
}

func ComputeContentHash(content string) string {
	hash := md5.Sum([]byte(content))
	return fmt.Sprintf("%x", hash)
}
