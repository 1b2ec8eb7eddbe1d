package services

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// SystemClock sets the kernel wall clock. Needs CAP_SYS_TIME.
type SystemClock struct{}

func (SystemClock) Set(t time.Time) error {
	if t.Unix() < minSaneUnixTime {
		return fmt.Errorf("refusing to set clock to %s", t.Format(time.RFC3339))
	}
	tv := unix.NsecToTimeval(t.UnixNano())
	if err := unix.Settimeofday(&tv); err != nil {
		return fmt.Errorf("settimeofday: %w", err)
	}
	return nil
}

func (SystemClock) Now() time.Time {
	return time.Now()
}
