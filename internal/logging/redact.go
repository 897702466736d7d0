package logging

// Redact shortens a credential to a prefix that is safe to log.
func Redact(secret string) string {
	const visible = 8
	if secret == "" {
		return "<empty>"
	}
	if len(secret) <= visible {
		return "***"
	}
	return secret[:visible] + "..."
}
