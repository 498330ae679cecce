package validate

import (
	"strings"
	"time"
)

func validDuration(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	d, err := time.ParseDuration(s)
	return err == nil && d >= 0
}
