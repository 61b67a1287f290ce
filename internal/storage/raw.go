// Package storage persists fetched pages as plain-text files laid out as
// <root>/<source dir>/<timestamp>.txt.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"regwatch/internal/models"
)

var (
	reUnsafe     = regexp.MustCompile(`[^A-Za-z0-9_\s-]`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// RawStore writes one file per FetchedPage. It holds no mutable state, so
// concurrent Save calls for different paths need no coordination.
type RawStore struct {
	root string
}

func NewRawStore(root string) *RawStore {
	return &RawStore{root: root}
}

func (s *RawStore) Root() string {
	return s.root
}

// SourceDirName strips everything outside [A-Za-z0-9_\s-], trims, and
// collapses whitespace runs to a single underscore.
func SourceDirName(name string) string {
	cleaned := strings.TrimSpace(reUnsafe.ReplaceAllString(name, ""))
	return reWhitespace.ReplaceAllString(cleaned, "_")
}

// TimestampFileName turns 2023-12-31T15:00:00.123456Z into 2023-12-31_15-00-00.txt.
func TimestampFileName(ts string) string {
	name := strings.ReplaceAll(ts, ":", "-")
	name = strings.ReplaceAll(name, "T", "_")
	name, _, _ = strings.Cut(name, ".")
	return name + ".txt"
}

// PathFor returns the file a page is stored at. Two pages of the same source
// fetched within one wall-clock second map to the same path.
func (s *RawStore) PathFor(page models.FetchedPage) string {
	dir := SourceDirName(page.SourceName)
	if dir == "" {
		dir = "source_" + strconv.Itoa(page.SourceID)
	}
	return filepath.Join(s.root, dir, TimestampFileName(page.Timestamp()))
}

// Render produces the exact file body for a page.
func Render(page models.FetchedPage) string {
	var b strings.Builder
	b.WriteString("URL: " + page.URL + "\n")
	b.WriteString("TITLE: " + page.Title + "\n")
	b.WriteString("FETCHED_AT: " + page.Timestamp() + "\n\n")
	b.WriteString(page.Text)
	return b.String()
}

// Save writes the page, creating its directory and overwriting any existing
// file at the same path. It returns the written path.
func (s *RawStore) Save(page models.FetchedPage) (string, error) {
	path := s.PathFor(page)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create source directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(Render(page)), 0o644); err != nil {
		return "", fmt.Errorf("write raw page: %w", err)
	}
	return path, nil
}
