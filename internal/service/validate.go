package service

import (
	"regexp"
	"strings"
)

var (
	udidPattern    = regexp.MustCompile(`^[0-9A-F]{8}-[0-9A-F]{16}$`)
	keyCodePattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)
)

const (
	minKeyQuantity = 1
	maxKeyQuantity = 100
)

// NormalizeUDID trims and upper-cases a device identifier and checks its format.
func NormalizeUDID(udid string) (string, error) {
	udid = strings.ToUpper(strings.TrimSpace(udid))
	if !udidPattern.MatchString(udid) {
		return "", invalid("udid", "expected 8 hex digits, a dash, then 16 hex digits")
	}
	return udid, nil
}

// NormalizeKeyCode trims and upper-cases an activation key and checks its format.
func NormalizeKeyCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !keyCodePattern.MatchString(code) {
		return "", invalid("code", "expected 10 letters or digits")
	}
	return code, nil
}

func checkQuantity(n int) error {
	if n < minKeyQuantity || n > maxKeyQuantity {
		return invalid("quantity", "must be between 1 and 100")
	}
	return nil
}
