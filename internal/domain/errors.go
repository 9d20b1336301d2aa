package domain

import (
	"errors"
	"fmt"
)

// TerminalHTTPError is returned for upstream statuses that must not be
// retried (400/403, plus 401 on writes).
type TerminalHTTPError struct {
	Status int
	URL    string
}

func (e *TerminalHTTPError) Error() string {
	return fmt.Sprintf("terminal status %d from %s", e.Status, e.URL)
}

// RetriesExhaustedError is returned when the bounded attempt counter runs
// out. Status is the last status seen (0 for connection-level failures).
type RetriesExhaustedError struct {
	Status   int
	URL      string
	Attempts int
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts, last status %d from %s", e.Attempts, e.Status, e.URL)
}

// PartialPageError is returned when any page of a multi-page fetch failed;
// the whole result is discarded rather than returning a partial snapshot.
type PartialPageError struct {
	Status int
	URL    string
	Page   int
}

func (e *PartialPageError) Error() string {
	return fmt.Sprintf("page %d of %s failed with status %d, discarding result", e.Page, e.URL, e.Status)
}

// IsTerminal reports whether err aborts a fetch with no chance of a retry
// helping. Callers use this to distinguish "alert" from "retry next cycle".
func IsTerminal(err error) bool {
	var terminal *TerminalHTTPError
	return errors.As(err, &terminal)
}
