package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeWalksCauseChain(t *testing.T) {
	base := New(ErrCodeAlreadyActed, "level already acted on")
	wrapped := fmt.Errorf("store: %w", Wrap(base, ErrCodeConflict, "update failed"))

	assert.Equal(t, ErrCodeConflict, Code(wrapped))
	assert.Equal(t, ErrCodeInternal, Code(stderrors.New("plain")))
	assert.Equal(t, ErrCodeInternal, Code(nil))
}

func TestIsMatchesByCode(t *testing.T) {
	err := Newf(ErrCodeMissingReason, "comments required for %s", "reject")

	assert.True(t, stderrors.Is(err, New(ErrCodeMissingReason, "")))
	assert.False(t, stderrors.Is(err, New(ErrCodeUnauthorized, "")))
}

func TestWrapNil(t *testing.T) {
	if got := Wrap(nil, ErrCodeInternal, "nothing"); got != nil {
		t.Fatalf("Wrap(nil) = %v, want nil", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{ErrCodeMissingReason, http.StatusBadRequest},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeUnauthorized, http.StatusForbidden},
		{ErrCodeAlreadyFinalized, http.StatusConflict},
		{ErrCodeAlreadyActed, http.StatusConflict},
		{ErrCodeConfiguration, http.StatusUnprocessableEntity},
		{ErrCodeUnresolvedApprover, http.StatusUnprocessableEntity},
		{ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(New(tc.code, "x")), tc.code)
	}
}
