package models

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type SourceType string

const (
	SourceTypeRegulator SourceType = "REGULATOR"
	SourceTypeNews      SourceType = "NEWS"
)

type SourceCategory string

const (
	CategoryCircular SourceCategory = "CIRCULAR"
	CategoryPress    SourceCategory = "PRESS"
	CategoryNews     SourceCategory = "NEWS"
)

type SourcePriority string

const (
	PriorityHigh   SourcePriority = "HIGH"
	PriorityMedium SourcePriority = "MEDIUM"
	PriorityLow    SourcePriority = "LOW"
)

const (
	FrequencyDaily  = "DAILY"
	FrequencyWeekly = "WEEKLY"
)

// Column names accepted in a source sheet, in canonical order.
const (
	FieldSourceID   = "source_id"
	FieldSourceName = "source_name"
	FieldURL        = "url"
	FieldSourceType = "source_type"
	FieldCategory   = "category"
	FieldFrequency  = "frequency"
	FieldPriority   = "priority"
	FieldEnabled    = "enabled"
	FieldNotes      = "notes"
)

var SourceFields = []string{
	FieldSourceID, FieldSourceName, FieldURL, FieldSourceType, FieldCategory,
	FieldFrequency, FieldPriority, FieldEnabled, FieldNotes,
}

const minNameLength = 3

var (
	sourceTypes = map[SourceType]bool{SourceTypeRegulator: true, SourceTypeNews: true}
	categories  = map[SourceCategory]bool{CategoryCircular: true, CategoryPress: true, CategoryNews: true}
	priorities  = map[SourcePriority]bool{PriorityHigh: true, PriorityMedium: true, PriorityLow: true}
	frequencies = map[string]bool{FrequencyDaily: true, FrequencyWeekly: true}
	knownFields = func() map[string]bool {
		m := make(map[string]bool, len(SourceFields))
		for _, f := range SourceFields {
			m[f] = true
		}
		return m
	}()
)

// Source is one validated monitoring target. Values are only produced by
// NewSource and are never mutated afterwards.
type Source struct {
	ID        int
	Name      string
	URL       string
	Type      SourceType
	Category  SourceCategory
	Frequency string
	Priority  SourcePriority
	Enabled   bool
	Notes     *string
}

// FieldError describes why a single field was rejected.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// ValidationError lists every field that failed validation for one record.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.String())
	}
	return fmt.Sprintf("invalid source: %s", strings.Join(parts, "; "))
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// NewSource validates a raw record keyed by column name and returns a
// normalized Source. A key present with a blank value counts as absent.
// Every rule runs independently so the returned *ValidationError reports all
// offending fields at once.
func NewSource(raw map[string]string) (Source, error) {
	var (
		src  Source
		verr ValidationError
	)

	for key := range raw {
		if !knownFields[key] {
			verr.add(key, "extra fields not permitted")
		}
	}

	value := func(field string) (string, bool) {
		v, ok := raw[field]
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return v, true
	}

	if v, ok := value(FieldSourceID); !ok {
		verr.add(FieldSourceID, "field required")
	} else if id, err := parseID(v); err != nil {
		verr.add(FieldSourceID, "%v", err)
	} else {
		src.ID = id
	}

	if v, ok := value(FieldSourceName); !ok {
		verr.add(FieldSourceName, "field required")
	} else {
		name := strings.TrimSpace(v)
		if len([]rune(name)) < minNameLength {
			verr.add(FieldSourceName, "must be at least %d characters", minNameLength)
		}
		src.Name = name
	}

	if v, ok := value(FieldURL); !ok {
		verr.add(FieldURL, "field required")
	} else if err := validateHTTPURL(v); err != nil {
		verr.add(FieldURL, "%v", err)
	} else {
		src.URL = v
	}

	if v, ok := value(FieldSourceType); !ok {
		verr.add(FieldSourceType, "field required")
	} else if !sourceTypes[SourceType(v)] {
		verr.add(FieldSourceType, "invalid value '%s', allowed: REGULATOR, NEWS", v)
	} else {
		src.Type = SourceType(v)
	}

	if v, ok := value(FieldCategory); !ok {
		verr.add(FieldCategory, "field required")
	} else if !categories[SourceCategory(v)] {
		verr.add(FieldCategory, "invalid value '%s', allowed: CIRCULAR, PRESS, NEWS", v)
	} else {
		src.Category = SourceCategory(v)
	}

	if v, ok := value(FieldFrequency); !ok {
		verr.add(FieldFrequency, "field required")
	} else if freq, err := NormalizeFrequency(v); err != nil {
		verr.add(FieldFrequency, "%v", err)
	} else {
		src.Frequency = freq
	}

	if v, ok := value(FieldPriority); !ok {
		verr.add(FieldPriority, "field required")
	} else if !priorities[SourcePriority(v)] {
		verr.add(FieldPriority, "invalid value '%s', allowed: HIGH, MEDIUM, LOW", v)
	} else {
		src.Priority = SourcePriority(v)
	}

	src.Enabled = true
	if v, ok := value(FieldEnabled); ok {
		enabled, err := parseBool(v)
		if err != nil {
			verr.add(FieldEnabled, "%v", err)
		} else {
			src.Enabled = enabled
		}
	}

	if v, ok := value(FieldNotes); ok {
		notes := v
		src.Notes = &notes
	}

	if len(verr.Errors) > 0 {
		return Source{}, &verr
	}
	return src, nil
}

// NormalizeFrequency upper-cases a frequency and checks it is supported.
func NormalizeFrequency(v string) (string, error) {
	freq := strings.ToUpper(v)
	if !frequencies[freq] {
		return "", fmt.Errorf("invalid frequency '%s', allowed: DAILY, WEEKLY", freq)
	}
	return freq, nil
}

// Spreadsheets render whole numbers as "3" or "3.0" depending on the cell type.
func parseID(v string) (int, error) {
	if id, err := strconv.Atoi(v); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("value '%s' is not a valid integer", v)
	}
	return int(f), nil
}

func validateHTTPURL(v string) error {
	u, err := url.Parse(v)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme should be 'http' or 'https'")
	}
	if u.Host == "" || u.Hostname() == "" {
		return fmt.Errorf("url must have a host")
	}
	return nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y", "on", "t", "1.0":
		return true, nil
	case "false", "0", "no", "n", "off", "f", "0.0":
		return false, nil
	}
	return false, fmt.Errorf("value '%s' is not a valid boolean", v)
}
