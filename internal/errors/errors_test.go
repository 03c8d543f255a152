package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "message only",
			err:  Validation("at least one job is required"),
			want: "at least one job is required",
		},
		{
			name: "with field",
			err:  ValidationField("TRACKER_INTERVAL", "must be positive"),
			want: "TRACKER_INTERVAL: must be positive",
		},
		{
			name: "with cause",
			err:  Wrap(errors.New("disk full"), ErrCodeInternal, "write ledger"),
			want: "write ledger: disk full",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAppError_UnwrapAndCodes(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", Wrapf(cause, ErrCodeUnavailable, "store %s", "pg"))

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsUnavailable(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, ErrCodeUnavailable, GetCode(err))
	assert.Equal(t, ErrorCode(""), GetCode(cause))
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
}

func TestConstructors(t *testing.T) {
	assert.True(t, IsNotFound(NotFoundf("job %s", "x")))
	assert.True(t, IsValidation(Validationf("bad %d", 1)))
	assert.Equal(t, "jobs[0].name", GetField(ValidationField("jobs[0].name", "required")))
	assert.Equal(t, ErrCodeInternal, GetCode(Internalf("oops")))
	assert.Empty(t, GetField(errors.New("plain")))
}
