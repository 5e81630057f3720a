// internal/manager/errors.go
package manager

import "fmt"

type OnboardingKind string

const (
	KindMissingPermissions    OnboardingKind = "missing_permissions"
	KindValidationUnreachable OnboardingKind = "validation_unreachable"
	KindConflict              OnboardingKind = "conflict"
	KindInvalidRecord         OnboardingKind = "invalid_record"
)

// OnboardingError propagates to the caller of Onboard/Offboard: those
// are explicit administrative actions that require an explicit decision.
type OnboardingError struct {
	Kind     OnboardingKind
	TenantID string
	Missing  []string // populated for missing_permissions
	Err      error
}

func (e *OnboardingError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("onboarding %s failed (%s): missing %v", e.TenantID, e.Kind, e.Missing)
	}
	return fmt.Sprintf("onboarding %s failed (%s): %v", e.TenantID, e.Kind, e.Err)
}

func (e *OnboardingError) Unwrap() error { return e.Err }
