// Package crawler is the contract between platform specific deadline
// crawlers and the programs that drive them.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Field describes a login field a crawler needs from the user.
type Field struct {
	Name   string `json:"name"`
	Detail string `json:"detail"`
}

type Course struct {
	Title string `json:"title"`
	Id    string `json:"id"`
}

// Deadline is a deadline record as handed to downstream systems, times are
// unix milliseconds.
type Deadline struct {
	PlatformUuid string `json:"platform_uuid"`
	CourseUuid   string `json:"course_uuid"`
	CreateTime   int64  `json:"create_time"`
	DdlTime      int64  `json:"ddl_time"`
	Title        string `json:"title"`
	Content      string `json:"content"`
}

type Crawler interface {
	// Login replaces any previous session of the crawler.
	Login(ctx context.Context, fields map[string]string) error
	// RequiredFields maps the key of every field Login needs to its description.
	RequiredFields() map[string]Field
	FetchCourses(ctx context.Context) ([]Course, error)
	FetchDeadlines(ctx context.Context) ([]Deadline, error)
}

var (
	ErrMissingField = errors.New("missing required field")
	// ErrTransient marks failures that may succeed when retried later.
	ErrTransient = errors.New("temporary failure")
	// ErrCredential marks failures that will not succeed until the user
	// supplies a different credential.
	ErrCredential = errors.New("credential rejected")
)

// ValidateFields checks that every required field has a non-empty value.
func ValidateFields(required map[string]Field, fields map[string]string) error {
	var missing []string
	for key := range required {
		if strings.TrimSpace(fields[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
}

// Retryable reports whether retrying the same operation later may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// NeedsNewCredential reports whether the user must be asked for a new credential.
func NeedsNewCredential(err error) bool {
	return errors.Is(err, ErrCredential) || errors.Is(err, ErrMissingField)
}
