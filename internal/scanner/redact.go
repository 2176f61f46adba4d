package scanner

// RedactedPlaceholder replaces secrets too short to partially reveal.
const RedactedPlaceholder = "[REDACTED]"

const (
	redactKeep     = 4
	redactMinRunes = 12
)

// Redact hides a secret value, keeping only its first and last four characters.
// Values of twelve characters or fewer become RedactedPlaceholder.
func Redact(secret string) string {
	r := []rune(secret)
	if len(r) <= redactMinRunes {
		return RedactedPlaceholder
	}
	return string(r[:redactKeep]) + "..." + string(r[len(r)-redactKeep:])
}
