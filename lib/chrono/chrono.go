package chrono

import (
	"time"
)

var shanghai *time.Location

func init() {
	var err error
	shanghai, err = time.LoadLocation("Asia/Shanghai")
	if err != nil {
		// tzdata may be missing in minimal containers, nanjing does not observe dst
		shanghai = time.FixedZone("CST", 8*60*60)
	}
}

// Location returns the timezone the course platform renders its dates in.
func Location() *time.Location {
	return shanghai
}

// TimeAPI is the interface that anything depending on the system clock should use.
type TimeAPI interface {
	// Now returns the current time in the platform's timezone.
	Now() time.Time
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct{}

func (StandardTime) Now() time.Time {
	return time.Now().In(shanghai)
}

// FixedTime always returns the same instant.
type FixedTime time.Time

func (f FixedTime) Now() time.Time {
	return time.Time(f).In(shanghai)
}
