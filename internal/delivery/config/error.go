package config

import (
	"fmt"
	"strings"
)

// Error reports every problem found in a configuration at once, so that an
// operator can fix them in a single pass.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid configuration: %s", e.Problems[0])
	}

	var b strings.Builder
	b.WriteString("invalid configuration:\n")
	for i, p := range e.Problems {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, p)
	}
	return b.String()
}
