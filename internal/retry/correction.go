package retry

import (
	"fmt"
	"strings"
)

// Violation is one field of a structured output that failed validation.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	field := v.Field
	if field == "" {
		field = "root"
	}
	return fmt.Sprintf("%s: %s", field, v.Message)
}

// CorrectionPrompt returns the original instruction followed by a directive
// listing every violation of the previous attempt's output.
func CorrectionPrompt(original string, violations []Violation) string {
	if len(violations) == 0 {
		return original
	}

	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\nPREVIOUS OUTPUT WAS INVALID - VALIDATION FAILED\n\n")
	b.WriteString("Correct the following validation errors:\n")
	for _, v := range violations {
		field := v.Field
		if field == "" {
			field = "root"
		}
		fmt.Fprintf(&b, "  - Field %q: %s\n", field, v.Message)
	}
	b.WriteString("\nThe response must match the expected output schema exactly:\n")
	b.WriteString("1. Required fields must be present\n")
	b.WriteString("2. Field types must match (string, number, boolean, array)\n")
	b.WriteString("3. Enum fields must use one of the listed values\n")
	b.WriteString("4. Numeric ranges must be respected\n")
	b.WriteString("\nReply again with a corrected response.")
	return b.String()
}
