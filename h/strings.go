package h

import (
	"github.com/thoas/go-funk"
)

func IsNotEmpty(s any) bool {
	return !funk.IsEmpty(s)
}

// FirstNonEmpty returns the first value that is not "".
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
