package batch

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MinSerialLength is the shortest serial number accepted locally
	MinSerialLength = 6

	// MaxSerialLength is the longest serial number accepted locally
	MaxSerialLength = 32
)

var serialPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// NormalizeSerial trims whitespace and upper-cases a serial number
func NormalizeSerial(serial string) string {
	return strings.ToUpper(strings.TrimSpace(serial))
}

// ValidateSerialFormat checks a normalized serial before any remote call.
// It returns the inline message to show, or "" when the format is fine.
func ValidateSerialFormat(serial string) string {
	switch {
	case serial == "":
		return "serial number is required"
	case len(serial) < MinSerialLength:
		return fmt.Sprintf("serial number too short (min %d chars)", MinSerialLength)
	case len(serial) > MaxSerialLength:
		return fmt.Sprintf("serial number too long (max %d chars)", MaxSerialLength)
	case !serialPattern.MatchString(serial):
		return "serial number may only contain letters, digits and '-'"
	}
	return ""
}

// DuplicateSerial reports whether another entry than key already carries serial
func (s *Store) DuplicateSerial(key int, serial string) bool {
	if serial == "" {
		return false
	}
	for _, k := range s.order {
		if k != key && s.entries[k].SerialNumber == serial {
			return true
		}
	}
	return false
}
