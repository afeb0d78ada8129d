// Package audit defines the audit entry written for every attempted user
// mutation and the Recorder it is handed to.
package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is one attempted mutation of one user.
type Entry struct {
	id           string
	action       Action
	actorID      string
	targetUserID string
	oldValue     *string
	newValue     *string
	reason       string
	result       Result
	errorKind    string
	severity     Severity
	operationID  string
	requestID    string
	timestamp    time.Time
}

// NewEntry creates an audit entry.
func NewEntry(action Action, actorID, targetUserID string, result Result) (*Entry, error) {
	if !action.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if !result.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResult, result)
	}
	if actorID == "" {
		return nil, ErrActorRequired
	}

	return &Entry{
		id:           uuid.New().String(),
		action:       action,
		actorID:      actorID,
		targetUserID: targetUserID,
		result:       result,
		severity:     SeverityForAction(action),
		timestamp:    time.Now().UTC(),
	}, nil
}

// Reconstitute recreates an Entry from persistence.
func Reconstitute(
	id string,
	action Action,
	actorID string,
	targetUserID string,
	oldValue *string,
	newValue *string,
	reason string,
	result Result,
	errorKind string,
	severity Severity,
	operationID string,
	requestID string,
	timestamp time.Time,
) *Entry {
	return &Entry{
		id:           id,
		action:       action,
		actorID:      actorID,
		targetUserID: targetUserID,
		oldValue:     oldValue,
		newValue:     newValue,
		reason:       reason,
		result:       result,
		errorKind:    errorKind,
		severity:     severity,
		operationID:  operationID,
		requestID:    requestID,
		timestamp:    timestamp,
	}
}

// Getters

func (e *Entry) ID() string           { return e.id }
func (e *Entry) Action() Action       { return e.action }
func (e *Entry) ActorID() string      { return e.actorID }
func (e *Entry) TargetUserID() string { return e.targetUserID }
func (e *Entry) OldValue() *string    { return e.oldValue }
func (e *Entry) NewValue() *string    { return e.newValue }
func (e *Entry) Reason() string       { return e.reason }
func (e *Entry) Result() Result       { return e.result }
func (e *Entry) ErrorKind() string    { return e.errorKind }
func (e *Entry) Severity() Severity   { return e.severity }
func (e *Entry) OperationID() string  { return e.operationID }
func (e *Entry) RequestID() string    { return e.requestID }
func (e *Entry) Timestamp() time.Time { return e.timestamp }

// Builder methods

// WithValues sets the value before and after the mutation. Empty strings
// are stored as absent.
func (e *Entry) WithValues(oldValue, newValue string) *Entry {
	e.oldValue = optional(oldValue)
	e.newValue = optional(newValue)
	return e
}

// WithReason sets the caller supplied reason.
func (e *Entry) WithReason(reason string) *Entry {
	e.reason = reason
	return e
}

// WithErrorKind records why the mutation failed.
func (e *Entry) WithErrorKind(kind string) *Entry {
	e.errorKind = kind
	return e
}

// WithOperationID links the entry to the bulk operation that produced it.
func (e *Entry) WithOperationID(id string) *Entry {
	e.operationID = id
	return e
}

// WithRequestID sets the request tracing ID.
func (e *Entry) WithRequestID(id string) *Entry {
	e.requestID = id
	return e
}

// IsSuccess checks if the action was successful.
func (e *Entry) IsSuccess() bool { return e.result == ResultSuccess }

// IsDenied checks if the action was refused by authorization.
func (e *Entry) IsDenied() bool { return e.result == ResultDenied }

// Message returns a one-line description for logs.
func (e *Entry) Message() string {
	msg := fmt.Sprintf("%s by %s on %s: %s", e.action, e.actorID, e.targetUserID, e.result)
	if e.errorKind != "" {
		msg += " (" + e.errorKind + ")"
	}
	return msg
}

// Record is the serialized form of an Entry, used on queues and archives.
type Record struct {
	ID           string    `json:"id"`
	Action       Action    `json:"action"`
	ActorID      string    `json:"actor_id"`
	TargetUserID string    `json:"target_user_id"`
	OldValue     *string   `json:"old_value,omitempty"`
	NewValue     *string   `json:"new_value,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Result       Result    `json:"result"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Severity     Severity  `json:"severity"`
	OperationID  string    `json:"operation_id,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ToRecord converts the entry to its serialized form.
func (e *Entry) ToRecord() Record {
	return Record{
		ID:           e.id,
		Action:       e.action,
		ActorID:      e.actorID,
		TargetUserID: e.targetUserID,
		OldValue:     e.oldValue,
		NewValue:     e.newValue,
		Reason:       e.reason,
		Result:       e.result,
		ErrorKind:    e.errorKind,
		Severity:     e.severity,
		OperationID:  e.operationID,
		RequestID:    e.requestID,
		Timestamp:    e.timestamp,
	}
}

// FromRecord recreates an Entry from its serialized form.
func FromRecord(r Record) (*Entry, error) {
	if !r.Action.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, r.Action)
	}
	if !r.Result.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResult, r.Result)
	}
	return Reconstitute(r.ID, r.Action, r.ActorID, r.TargetUserID, r.OldValue, r.NewValue,
		r.Reason, r.Result, r.ErrorKind, r.Severity, r.OperationID, r.RequestID, r.Timestamp), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
