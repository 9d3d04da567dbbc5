package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// TimeOfDay is a wall-clock daily trigger time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

var reHHMM = regexp.MustCompile(`^([0-9]{1,2}):([0-9]{2})$`)

var ErrBadTime = errors.New("schedule: time must be HH:MM (00:00..23:59)")

// ParseTimeOfDay parses strict "HH:MM". Validation happens before any
// state changes, so a bad string never clobbers an existing schedule.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	m := reHHMM.FindStringSubmatch(s)
	if m == nil {
		return TimeOfDay{}, ErrBadTime
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	if h > 23 || min > 59 {
		return TimeOfDay{}, ErrBadTime
	}
	return TimeOfDay{Hour: h, Minute: min}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// cronSpec renders the standard 5-field daily expression.
func (t TimeOfDay) cronSpec() string {
	return fmt.Sprintf("%d %d * * *", t.Minute, t.Hour)
}
