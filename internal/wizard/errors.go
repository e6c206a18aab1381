// internal/wizard/errors.go
package wizard

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownSurface     = errors.New("unknown surface")
	ErrInvalidStep        = errors.New("invalid step")
	ErrTransitionInFlight = errors.New("a transition is already in progress")
	ErrValidationFailed   = errors.New("please correct the errors before navigating")
	ErrPersistenceFailed  = errors.New("failed to save changes")
	ErrSubmitFailed       = errors.New("failed to submit application")
	ErrSkipDisabled       = errors.New("skip navigation is disabled")
	ErrNoChanges          = errors.New("no changes to submit")
	ErrNotOnFinalStep     = errors.New("the application can only be submitted from the final step")
)

// ValidationFailure is returned when a transition is blocked by invalid
// fields. Step is the step that stayed active; FirstInvalidStep is the
// earliest step holding an error.
type ValidationFailure struct {
	Step             int
	FirstInvalidStep int
	Errors           map[Section]ErrorMap
}

func (e *ValidationFailure) Error() string {
	sections := make([]string, 0, len(e.Errors))
	for s := range e.Errors {
		sections = append(sections, string(s))
	}
	sort.Strings(sections)
	return fmt.Sprintf("%s: invalid sections [%s]", ErrValidationFailed, strings.Join(sections, ", "))
}

func (e *ValidationFailure) Unwrap() error {
	return ErrValidationFailed
}
