package assert

import (
	"fmt"
	"time"
)

// NotNil panics when a required collaborator was not wired.
func NotNil(value any) {
	if value == nil {
		panic("expected value to be not nil")
	}
}

func NotEmptyStr(str string) {
	if str == "" {
		panic("expected string to be non-empty")
	}
}

// Positive panics on a zero or negative duration.
func Positive(name string, d time.Duration) {
	if d <= 0 {
		panic(fmt.Sprintf("expected %s to be a positive duration, got %s", name, d))
	}
}
