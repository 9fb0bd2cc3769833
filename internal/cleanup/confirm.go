package cleanup

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirmation phrases the operator must type verbatim before a destructive
// operation executes.
const (
	DropConfirmation   = "DROP DATABASES"
	DeleteConfirmation = "DELETE DATA"
)

// Confirmer runs the multi-step confirmation dialog for destructive
// operations. Reading from an injected io.Reader keeps it testable.
type Confirmer struct {
	In  io.Reader
	Out io.Writer

	scanner *bufio.Scanner
}

func (c *Confirmer) readLine() string {
	if c.scanner == nil {
		c.scanner = bufio.NewScanner(c.In)
	}
	if !c.scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(c.scanner.Text())
}

// YesNo prompts and accepts "yes" or "y" (case-insensitive) as assent;
// anything else declines.
func (c *Confirmer) YesNo(prompt string) bool {
	fmt.Fprintf(c.Out, "%s (yes/no): ", prompt)
	answer := strings.ToLower(c.readLine())
	return answer == "yes" || answer == "y"
}

// Phrase prompts for the exact confirmation phrase. Any mismatch, including
// case, declines.
func (c *Confirmer) Phrase(phrase string) bool {
	fmt.Fprintf(c.Out, "Type '%s' to confirm:\n> ", phrase)
	return c.readLine() == phrase
}

// MultiStep walks the full dialog: an initial acknowledgment, the plan
// display, a second acknowledgment, then the typed phrase. Returns true only
// if every step assents. showPlan is invoked between the first and second
// steps.
func (c *Confirmer) MultiStep(action, phrase string, scope *Scope, showPlan func()) bool {
	fmt.Fprintf(c.Out, "\nDANGER: this will permanently %s on the destination server.\n", action)
	if !c.YesNo(fmt.Sprintf("Do you understand this will %s?", action)) {
		fmt.Fprintln(c.Out, "Cancelled.")
		return false
	}
	showPlan()
	if !c.YesNo("Proceed?") {
		fmt.Fprintln(c.Out, "Cancelled.")
		return false
	}
	fmt.Fprintln(c.Out, "\nFINAL CONFIRMATION REQUIRED")
	if !c.Phrase(phrase) {
		fmt.Fprintf(c.Out, "Cancelled. (You must type exactly: %s)\n", phrase)
		return false
	}
	fmt.Fprintln(c.Out, "Confirmation received.")
	return true
}
