package bulkop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openlearn/admin-api/pkg/domain/authz"
	"github.com/openlearn/admin-api/pkg/domain/shared"
	"github.com/openlearn/admin-api/pkg/domain/user"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewRequest_DedupesInOrder(t *testing.T) {
	r := NewRequest(KindActivate, []string{" u2", "u1", "u2 ", "u3", "u1"}, "", "")
	assert.Equal(t, []string{"u2", "u1", "u3"}, r.TargetUserIDs())
	assert.Equal(t, 3, r.Len())
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		max     int
		wantErr error
	}{
		{name: "activate", req: NewRequest(KindActivate, []string{"u1"}, "", ""), max: 10},
		{name: "empty", req: NewRequest(KindActivate, nil, "", ""), max: 10, wantErr: ErrNoTargets},
		{name: "too many", req: NewRequest(KindActivate, []string{"u1", "u2", "u3"}, "", ""), max: 2, wantErr: ErrTooManyTargets},
		{name: "at max", req: NewRequest(KindActivate, []string{"u1", "u2"}, "", ""), max: 2},
		{name: "duplicates count once", req: NewRequest(KindActivate, []string{"u1", "u1", "u2"}, "", ""), max: 2},
		{name: "blank id", req: NewRequest(KindActivate, []string{"u1", "  "}, "", ""), max: 10, wantErr: ErrBlankTargetID},
		{name: "role change without role", req: NewRequest(KindRoleChange, []string{"u1"}, "", ""), max: 10, wantErr: ErrTargetRoleRequired},
		{name: "role change", req: NewRequest(KindRoleChange, []string{"u1"}, "moderator", ""), max: 10},
		{name: "role on deactivate", req: NewRequest(KindDeactivate, []string{"u1"}, "admin", ""), max: 10, wantErr: ErrTargetRoleNotAllowed},
		{name: "delete without reason", req: NewRequest(KindDelete, []string{"u1"}, "", "  "), max: 10, wantErr: ErrReasonRequired},
		{name: "delete with invisible reason", req: NewRequest(KindDelete, []string{"u1"}, "", "\u200b\u202e"), max: 10, wantErr: ErrReasonRequired},
		{name: "delete", req: NewRequest(KindDelete, []string{"u1"}, "", "spam account"), max: 10},
		{name: "reason too long", req: NewRequest(KindDelete, []string{"u1"}, "", strings.Repeat("x", MaxReasonLength+1)), max: 10, wantErr: ErrReasonTooLong},
		{name: "unknown kind", req: NewRequest(Kind("purge"), []string{"u1"}, "", ""), max: 10, wantErr: shared.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(tt.max)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNormalizeReason(t *testing.T) {
	assert.Equal(t, "spam", NormalizeReason("  sp\u200bam\u202e "))
	assert.Equal(t, "line1\nline2", NormalizeReason("line1\nline2\x00"))
	assert.Equal(t, "ABC", NormalizeReason("\uff21\uff22\uff23"))
}

func TestParseKind(t *testing.T) {
	for _, k := range AllKinds() {
		got, err := ParseKind(strings.ToUpper(k.String()))
		assert.NoError(t, err)
		assert.Equal(t, k, got)
		assert.NotEmpty(t, k.Operation())
	}
	_, err := ParseKind("purge")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{authz.ErrSelfActionForbidden, ErrorKindSelfAction},
		{authz.ErrOwnerRoleImmutable, ErrorKindOwnerRoleImmutable},
		{authz.ErrRoleLevelViolation, ErrorKindRoleLevelViolation},
		{fmt.Errorf("wrapped: %w", authz.ErrPermissionDenied), ErrorKindPermissionDenied},
		{ErrTooManyTargets, ErrorKindTooManyTargets},
		{ErrReasonRequired, ErrorKindValidation},
		{user.NotFoundError("u1"), ErrorKindNotFound},
		{user.UnavailableError(errors.New("dial tcp: refused")), ErrorKindSystemUnavailable},
		{context.DeadlineExceeded, ErrorKindDownstream},
		{context.Canceled, ErrorKindCancelled},
		{errors.New("boom"), ErrorKindDownstream},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
	assert.Empty(t, Classify(nil))
}

func TestNewResult_CountsAndRate(t *testing.T) {
	s := State{
		Phase:      PhaseCompleted,
		Total:      4,
		Successful: []string{"u1", "u2", "u3"},
		Failed:     []ItemFailure{{UserID: "u4", Reason: ErrorKindNotFound}},
	}
	r := NewResult("op-1", KindActivate, s, testTime, testTime)

	assert.Equal(t, 3, r.SuccessfulCount)
	assert.Equal(t, 1, r.FailedCount)
	assert.Equal(t, s.Total, r.SuccessfulCount+r.FailedCount)
	assert.InDelta(t, 75.0, r.SuccessRate, 0.0001)
	assert.Equal(t, map[ErrorKind]int{ErrorKindNotFound: 1}, r.FailuresByReason())

	empty := NewResult("op-2", KindActivate, State{Phase: PhaseCompleted, Total: 0}, testTime, testTime)
	assert.NotNil(t, empty.Successful)
	assert.NotNil(t, empty.Failed)
	assert.Zero(t, empty.SuccessRate)
}
