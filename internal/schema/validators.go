package schema

import (
	"fmt"
	"strings"
	"time"
)

// NonEmptyString rejects missing, non-string, and blank values.
func NonEmptyString(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected a string, got %T", value)
	}
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("must not be empty")
	}
	return nil
}

// Email accepts a loosely well-formed email address.
func Email(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected a string, got %T", value)
	}
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 || !strings.Contains(s[at+1:], ".") {
		return fmt.Errorf("invalid email address %q", s)
	}
	return nil
}

// PositiveInt accepts integers and whole-number JSON floats greater than zero.
func PositiveInt(value any) error {
	switch v := value.(type) {
	case int:
		if v > 0 {
			return nil
		}
	case int64:
		if v > 0 {
			return nil
		}
	case float64:
		// JSON numbers decode as float64.
		if v > 0 && v == float64(int64(v)) {
			return nil
		}
	}
	return fmt.Errorf("expected a positive integer, got %v", value)
}

// ISODate accepts RFC 3339 dates or date-times.
func ISODate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected a string, got %T", value)
	}
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return nil
	}
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return nil
	}
	return fmt.Errorf("invalid date %q; expected YYYY-MM-DD or RFC 3339", s)
}
