package audit

// Action identifies the mutation an entry records.
type Action string

const (
	ActionUserActivated   Action = "user.activated"
	ActionUserDeactivated Action = "user.deactivated"
	ActionUserRoleChanged Action = "user.role_changed"
	ActionUserDeleted     Action = "user.deleted"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// IsValid checks if the action is valid.
func (a Action) IsValid() bool {
	switch a {
	case ActionUserActivated, ActionUserDeactivated, ActionUserRoleChanged, ActionUserDeleted:
		return true
	}
	return false
}

// Result represents the outcome of an action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultDenied  Result = "denied"
)

// String returns the string representation of the result.
func (r Result) String() string {
	return string(r)
}

// IsValid checks if the result is valid.
func (r Result) IsValid() bool {
	switch r {
	case ResultSuccess, ResultFailure, ResultDenied:
		return true
	}
	return false
}

// Severity represents the severity level of an audit event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// SeverityForAction returns the default severity for an action.
func SeverityForAction(a Action) Severity {
	switch a {
	case ActionUserDeleted:
		return SeverityCritical
	case ActionUserDeactivated, ActionUserRoleChanged:
		return SeverityHigh
	case ActionUserActivated:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
