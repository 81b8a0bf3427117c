package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_MapsHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrCodeNotFound:         http.StatusNotFound,
		ErrCodeForbidden:        http.StatusForbidden,
		ErrCodeValidation:       http.StatusBadRequest,
		ErrCodePrecondition:     http.StatusConflict,
		ErrCodeConflict:         http.StatusConflict,
		ErrCodeUpstream:         http.StatusBadGateway,
		ErrCodeTooManyRequests:  http.StatusTooManyRequests,
		ErrCodeTransportFailure: http.StatusServiceUnavailable,
		ErrCodeDatabaseError:    http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, New(code, "x").HTTPStatus, code)
	}
}

func TestIs_MatchesCodeAndMessageThroughWrap(t *testing.T) {
	sentinel := New(ErrCodePrecondition, "действие недоступно")
	wrapped := fmt.Errorf("dispatch: %w", sentinel)

	assert.ErrorIs(t, wrapped, sentinel)
	assert.False(t, errors.Is(wrapped, New(ErrCodePrecondition, "другое")))
	assert.ErrorIs(t, Wrap(errors.New("io"), ErrCodePrecondition, "действие недоступно"), sentinel)
}

func TestClassifiers(t *testing.T) {
	assert.True(t, IsNotFound(New(ErrCodeNotFound, "нет")))
	assert.True(t, IsForbidden(fmt.Errorf("wrap: %w", ErrForbidden)))
	assert.True(t, IsValidation(New(ErrCodeValidation, "плохо")))
	assert.True(t, IsPrecondition(New(ErrCodePrecondition, "рано")))
	assert.True(t, IsConflict(New(ErrCodeConflict, "занято")))

	plain := errors.New("boom")
	assert.False(t, IsNotFound(plain))
	assert.False(t, IsPrecondition(New(ErrCodeConflict, "занято")))
	assert.Equal(t, ErrCodeInternal, CodeOf(plain))
	assert.Equal(t, "внутренняя ошибка сервера", MessageOf(plain))
}
