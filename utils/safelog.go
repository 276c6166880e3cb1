package utils

// Masking helpers for log fields. Tokens and ids never reach the log in
// full; these run unconditionally so a misconfigured environment cannot
// leak credentials.

// MaskToken keeps the last 4 characters of a credential for correlation.
func MaskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}

// MaskID shortens an identifier to its first 8 characters.
func MaskID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
