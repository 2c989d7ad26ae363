package utils

import (
	"strings"

	"golang.org/x/text/width"
)

func NormalizeString(s string) string {
	return strings.TrimSpace(s)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(width.Narrow.String(email)))
}

// NormalizePhone keeps a leading + and the ASCII digits. Full-width digits
// typed on Japanese keyboards are folded first.
func NormalizePhone(phone string) string {
	cleaned := strings.TrimSpace(width.Narrow.String(phone))
	if cleaned == "" {
		return ""
	}

	var result strings.Builder
	for i, r := range cleaned {
		if i == 0 && r == '+' {
			result.WriteRune(r)
		} else if r >= '0' && r <= '9' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// DigitsOnly strips everything except ASCII digits after width folding.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range width.Narrow.String(s) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsDigits reports whether s is non-empty and made only of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func IsValidEmail(email string) bool {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return false
	}

	parts := strings.Split(normalized, "@")
	if len(parts) != 2 {
		return false
	}

	local, domain := parts[0], parts[1]
	return len(local) > 0 && len(domain) > 2 && strings.Contains(domain, ".")
}

func IsValidPhone(phone string) bool {
	return len(DigitsOnly(phone)) >= 7
}
