// Package checkmate holds the shared error taxonomy and domain constants
// used across the CheckMate API packages.
package checkmate

import "errors"

// Sentinel errors returned by the core packages. The HTTP layer maps these
// to status codes; everything else surfaces as a 500.
var (
	// ErrNotFound indicates an unknown scan, flag, or whitelist entry.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input (bad verdict, empty name).
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a concurrent-update conflict.
	ErrConflict = errors.New("conflict")
	// ErrStorage indicates the backing store is unavailable.
	ErrStorage = errors.New("storage unavailable")
	// ErrTimeout indicates a storage operation exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")
)

// Verdict values accepted for human feedback on a flag.
const (
	VerdictValid         = "valid"
	VerdictFalsePositive = "false_positive"
)

// IsValidVerdict checks whether a verdict string is one of the accepted values.
func IsValidVerdict(verdict string) bool {
	switch verdict {
	case VerdictValid, VerdictFalsePositive:
		return true
	default:
		return false
	}
}
