package repair

import (
	"fmt"
	"strings"
)

// BuildDeltaPrompt assembles the error-specific delta section appended
// to the unchanged original prompt base (spec §4.9 step 4): the
// previous SQL, the SQLSTATE and message, and whichever hints the
// autocorrect step produced.
func BuildDeltaPrompt(previousSQL string, sqlstate string, errMessage string, hints []Hint) string {
	var b strings.Builder
	b.WriteString("The previous candidate failed:\n\n")
	fmt.Fprintf(&b, "SQL:\n%s\n\n", previousSQL)
	if sqlstate != "" {
		fmt.Fprintf(&b, "SQLSTATE: %s\n", sqlstate)
	}
	fmt.Fprintf(&b, "Error: %s\n", errMessage)

	if len(hints) > 0 {
		b.WriteString("\nHints:\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "- [%s] %s\n", h.Kind, h.Message)
		}
	}

	b.WriteString("\nProduce a corrected query that addresses the error above without otherwise changing the intent of the original question.")
	return b.String()
}
