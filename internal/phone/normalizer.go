package phone

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultCountryCode is Bangladesh, the only country registrations come from.
const DefaultCountryCode = "880"

// ErrInvalidFormat is matched by every FormatError.
var ErrInvalidFormat = errors.New("invalid phone number format")

// FormatError describes a number that matched neither accepted pattern.
type FormatError struct {
	Input    string
	Expected string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %q, expected %s", ErrInvalidFormat, e.Input, e.Expected)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrInvalidFormat
}

// Normalizer canonicalizes numbers for a single country.
type Normalizer struct {
	countryCode   string
	local         *regexp.Regexp
	international *regexp.Regexp
}

// NewNormalizer builds a normalizer for the given calling code (digits only,
// without the leading plus). An empty code selects DefaultCountryCode.
func NewNormalizer(countryCode string) *Normalizer {
	countryCode = strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	quoted := regexp.QuoteMeta(countryCode)
	return &Normalizer{
		countryCode:   countryCode,
		local:         regexp.MustCompile(`^0(\d{9,10})$`),
		international: regexp.MustCompile(`^\+` + quoted + `(\d{9,10})$`),
	}
}

// Expected describes the accepted input patterns.
func (n *Normalizer) Expected() string {
	return fmt.Sprintf("0 followed by 9-10 digits, or +%s followed by 9-10 digits", n.countryCode)
}

// Normalize returns the number in +<country code><digits> form. Already
// canonical numbers are returned unchanged.
func (n *Normalizer) Normalize(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if n.international.MatchString(candidate) {
		return candidate, nil
	}
	if m := n.local.FindStringSubmatch(candidate); m != nil {
		return "+" + n.countryCode + m[1], nil
	}
	return "", &FormatError{Input: raw, Expected: n.Expected()}
}

// Digits strips the leading plus, which is how URL based messaging surfaces
// expect the recipient.
func Digits(normalized string) string {
	return strings.TrimPrefix(normalized, "+")
}
