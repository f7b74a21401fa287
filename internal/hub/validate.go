package hub

import "strings"

// validUsername checks display names supplied at join time. Names are
// not authenticated; the constraint is purely 3-20 alphanumeric or
// underscore characters.
func validUsername(username string) bool {
	if len(username) < 3 || len(username) > 20 {
		return false
	}
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			return false
		}
	}
	return true
}

func normalizeContent(content string) string {
	return strings.TrimSpace(content)
}

// validContent checks already-normalized chat text, 1-500 characters.
func validContent(content string) bool {
	return len(content) >= 1 && len(content) <= 500
}
