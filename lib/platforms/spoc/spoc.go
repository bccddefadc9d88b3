// Package spoc lists the courses and assignment deadlines of a user on the
// NJU SPOC platform, on top of a session established by njuauth.
package spoc

import (
	"errors"
	"fmt"

	"spoccrawler/lib/telemetry"

	"github.com/google/uuid"
)

var tracer = telemetry.Tracer("spoccrawler/lib/platforms/spoc")

// PlatformUuid identifies the SPOC platform, it is also the namespace
// course ids are derived in.
var PlatformUuid = uuid.MustParse("68dc1014-7bfe-4ea3-a000-5734303d9f59")

var (
	// ErrSession means a request made with an established session failed,
	// the whole listing should be retried.
	ErrSession = errors.New("failed to communicate with the course platform, try again later")
	// ErrParse means an assignment listing did not have the expected shape.
	ErrParse = errors.New("failed to parse the assignment listing")
)

// CourseId derives the stable id of the course with the numeric `openId`
// the platform uses. The same openId always yields the same id.
func CourseId(openId string) uuid.UUID {
	return uuid.NewSHA1(PlatformUuid, []byte(openId))
}

type Course struct {
	Title string
	Id    uuid.UUID
	// the numeric id used in platform urls
	OpenId string
}

// Deadline is one assignment of a course, timestamps are in unix milliseconds.
type Deadline struct {
	PlatformId uuid.UUID
	CourseId   uuid.UUID
	CreateTime int64
	DueTime    int64
	Title      string
	Content    string
}

func deadlineContent(courseTitle string) string {
	return fmt.Sprintf("来自 SPOC `%s` 的 DDL", courseTitle)
}
