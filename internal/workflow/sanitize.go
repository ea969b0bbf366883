package workflow

import (
	"strings"

	"github.com/WolVesz/oic-devops/internal/constants"
)

var unsafeFileChars = strings.NewReplacer(
	`\`, "_", "/", "_", "*", "_", "?", "_", ":", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// SanitizeName makes name usable inside an artifact file name. Names longer
// than the limit keep their first 47 characters followed by "...".
func SanitizeName(name string) string {
	safe := unsafeFileChars.Replace(name)

	runes := []rune(safe)
	if len(runes) > constants.MaxSanitizedNameLength {
		return string(runes[:constants.MaxSanitizedNameLength-3]) + "..."
	}

	return safe
}

// artifactBase is the file name of one exported resource without extension.
func artifactBase(id, name string) string {
	return id + "_" + SanitizeName(name)
}
