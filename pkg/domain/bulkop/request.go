package bulkop

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxReasonLength bounds the audit reason attached to a request.
const MaxReasonLength = 1000

// Request is a bulk operation request. It is immutable once built.
type Request struct {
	kind          Kind
	targetUserIDs []string
	targetRole    string
	reason        string
}

// NewRequest builds a request. Target ids are trimmed and deduplicated in
// submission order; the reason is normalized. NewRequest does not validate:
// call Validate before executing.
func NewRequest(kind Kind, targetUserIDs []string, targetRole, reason string) Request {
	seen := make(map[string]struct{}, len(targetUserIDs))
	ids := make([]string, 0, len(targetUserIDs))
	for _, id := range targetUserIDs {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return Request{
		kind:          kind,
		targetUserIDs: ids,
		targetRole:    strings.TrimSpace(targetRole),
		reason:        NormalizeReason(reason),
	}
}

// Kind returns the operation kind.
func (r Request) Kind() Kind { return r.kind }

// TargetUserIDs returns a copy of the deduplicated target ids.
func (r Request) TargetUserIDs() []string {
	out := make([]string, len(r.targetUserIDs))
	copy(out, r.targetUserIDs)
	return out
}

// Len returns the number of distinct targets.
func (r Request) Len() int { return len(r.targetUserIDs) }

// TargetRole returns the role assigned by a role change.
func (r Request) TargetRole() string { return r.targetRole }

// Reason returns the normalized reason.
func (r Request) Reason() string { return r.reason }

// Validate checks the structural rules of the request. Authorization rules
// are checked by the executor against the role hierarchy.
func (r Request) Validate(maxTargets int) error {
	if !r.kind.IsValid() {
		_, err := ParseKind(string(r.kind))
		return err
	}
	if len(r.targetUserIDs) == 0 {
		return ErrNoTargets
	}
	if maxTargets > 0 && len(r.targetUserIDs) > maxTargets {
		return ErrTooManyTargets
	}
	for _, id := range r.targetUserIDs {
		if id == "" {
			return ErrBlankTargetID
		}
	}

	switch r.kind {
	case KindRoleChange:
		if r.targetRole == "" {
			return ErrTargetRoleRequired
		}
	default:
		if r.targetRole != "" {
			return ErrTargetRoleNotAllowed
		}
	}

	if r.kind == KindDelete && r.reason == "" {
		return ErrReasonRequired
	}
	if len([]rune(r.reason)) > MaxReasonLength {
		return ErrReasonTooLong
	}
	return nil
}

var reasonTransformer = transform.Chain(norm.NFKC, runes.Remove(runes.Predicate(isInvisible)))

// NormalizeReason applies NFKC and strips control, zero-width and bidi
// override characters so the stored reason renders as typed.
func NormalizeReason(s string) string {
	out, _, err := transform.String(reasonTransformer, s)
	if err != nil {
		out = s
	}
	return strings.TrimSpace(out)
}

func isInvisible(r rune) bool {
	if r == '\n' || r == '\t' {
		return false
	}
	if unicode.IsControl(r) {
		return true
	}
	switch r {
	case '\u200B', '\u200C', '\u200D', '\u2060', '\uFEFF':
		return true
	}
	return (r >= '\u202A' && r <= '\u202E') || (r >= '\u2066' && r <= '\u2069')
}
