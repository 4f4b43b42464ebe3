package password

import (
	"strings"
	"unicode"
)

// MinLength is the shortest password the policy accepts.
const MinLength = 8

// AllowedSymbols is the fixed set of characters that satisfy the symbol rule.
const AllowedSymbols = "@$!%*?&#^()-_=+[]{};:,.<>/~"

// Violation identifies one failed strength rule.
type Violation string

const (
	ViolationTooShort         Violation = "too_short"
	ViolationMissingUppercase Violation = "missing_uppercase"
	ViolationMissingLowercase Violation = "missing_lowercase"
	ViolationMissingDigit     Violation = "missing_digit"
	ViolationMissingSymbol    Violation = "missing_symbol"
)

// Message returns a user-facing description of the violation.
func (v Violation) Message() string {
	switch v {
	case ViolationTooShort:
		return "password must be at least 8 characters long"
	case ViolationMissingUppercase:
		return "password must contain at least one uppercase letter"
	case ViolationMissingLowercase:
		return "password must contain at least one lowercase letter"
	case ViolationMissingDigit:
		return "password must contain at least one digit"
	case ViolationMissingSymbol:
		return "password must contain at least one of " + AllowedSymbols
	default:
		return string(v)
	}
}

// StrengthResult reports every violated rule, not just the first.
type StrengthResult struct {
	Valid      bool
	Violations []Violation
}

// Strength evaluates password against the fixed policy: length >= MinLength and at
// least one uppercase, lowercase, digit and symbol from AllowedSymbols.
func Strength(password string) StrengthResult {
	var upper, lower, digit, symbol bool
	length := 0
	for _, r := range password {
		length++
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(AllowedSymbols, r):
			symbol = true
		}
	}

	var violations []Violation
	if length < MinLength {
		violations = append(violations, ViolationTooShort)
	}
	if !upper {
		violations = append(violations, ViolationMissingUppercase)
	}
	if !lower {
		violations = append(violations, ViolationMissingLowercase)
	}
	if !digit {
		violations = append(violations, ViolationMissingDigit)
	}
	if !symbol {
		violations = append(violations, ViolationMissingSymbol)
	}

	return StrengthResult{Valid: len(violations) == 0, Violations: violations}
}

// InHistory reports whether password matches any of the most recent HistorySize
// hashes in pastHashes. Malformed history entries are skipped.
func (h *Hasher) InHistory(password string, pastHashes []string) bool {
	if len(pastHashes) > HistorySize {
		pastHashes = pastHashes[:HistorySize]
	}
	for _, past := range pastHashes {
		if past == "" {
			continue
		}
		if ok, err := h.Verify(password, past); err == nil && ok {
			return true
		}
	}
	return false
}

// HistorySize is the number of previous hashes checked for reuse.
const HistorySize = 5

// PushHistory returns the history with current prepended, trimmed to HistorySize.
// Index 0 is always the most recent previous hash.
func PushHistory(history []string, current string) []string {
	out := make([]string, 0, HistorySize)
	if current != "" {
		out = append(out, current)
	}
	for _, h := range history {
		if len(out) == HistorySize {
			break
		}
		if h == "" || h == current {
			continue
		}
		out = append(out, h)
	}
	return out
}
