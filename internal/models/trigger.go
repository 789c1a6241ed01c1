package models

// TriggerKind identifies who started a dispatch sweep.
type TriggerKind int

const (
	TriggerRejected TriggerKind = iota
	TriggerTrusted
	TriggerAdminUser
)

// TriggerIdentity is resolved once at the sweep entry point.
type TriggerIdentity struct {
	Kind   TriggerKind
	UserID string
	// Forbidden distinguishes an authenticated non-admin from an unauthenticated caller.
	Forbidden bool
	Reason    string
}

// TrustedTrigger is the scheduler presenting the shared secret.
func TrustedTrigger() TriggerIdentity {
	return TriggerIdentity{Kind: TriggerTrusted}
}

// AdminTrigger is an authenticated user with the admin capability.
func AdminTrigger(userID string) TriggerIdentity {
	return TriggerIdentity{Kind: TriggerAdminUser, UserID: userID}
}

// Unauthenticated rejects a caller that could not be identified.
func Unauthenticated(reason string) TriggerIdentity {
	return TriggerIdentity{Kind: TriggerRejected, Reason: reason}
}

// Forbidden rejects an identified caller that lacks the admin capability.
func Forbidden(userID, reason string) TriggerIdentity {
	return TriggerIdentity{Kind: TriggerRejected, UserID: userID, Forbidden: true, Reason: reason}
}

// Allowed reports whether the identity may run a sweep.
func (t TriggerIdentity) Allowed() bool {
	return t.Kind == TriggerTrusted || t.Kind == TriggerAdminUser
}

// Label is the short name used in logs, metrics and attempt rows.
func (t TriggerIdentity) Label() string {
	switch t.Kind {
	case TriggerTrusted:
		return "scheduler"
	case TriggerAdminUser:
		return "admin"
	default:
		return "rejected"
	}
}

// Err converts a rejected identity into the matching AppError.
func (t TriggerIdentity) Err() error {
	if t.Allowed() {
		return nil
	}
	if t.Forbidden {
		return NewForbiddenError(t.Reason)
	}
	return NewUnauthorizedError(t.Reason)
}
