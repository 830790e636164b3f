package infra_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"voicechat/internal/domain"
	"voicechat/internal/infra"
)

func fastRetry() infra.RetryConfig {
	return infra.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry_RetriesTransientErrors(t *testing.T) {
	attempts := 0
	err := infra.WithRetry(context.Background(), fastRetry(), func() error {
		attempts++
		if attempts < 3 {
			return infra.CheckStatus("test", http.StatusBadGateway, nil)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_StopsOnPermanent(t *testing.T) {
	tests := []struct {
		name string
		code int
	}{
		{name: "rate limited", code: http.StatusTooManyRequests},
		{name: "unauthorized", code: http.StatusUnauthorized},
		{name: "bad request", code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := infra.WithRetry(context.Background(), fastRetry(), func() error {
				attempts++
				return infra.CheckStatus("test", tt.code, []byte("nope"))
			})

			assert.Equal(t, 1, attempts)
			var statusErr *infra.StatusError
			assert.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.code, statusErr.HTTPStatus())
		})
	}
}

func TestWithRetry_ReturnsLastError(t *testing.T) {
	boom := errors.New("connection reset")
	attempts := 0
	err := infra.WithRetry(context.Background(), fastRetry(), func() error {
		attempts++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
}

func TestRateLimited(t *testing.T) {
	limited := infra.RateLimited(&infra.StatusError{Service: "chat", Code: http.StatusTooManyRequests})
	assert.ErrorIs(t, limited, domain.ErrRateLimited)

	other := infra.RateLimited(&infra.StatusError{Service: "chat", Code: http.StatusInternalServerError})
	assert.NotErrorIs(t, other, domain.ErrRateLimited)
}

func TestCheckStatus_Success(t *testing.T) {
	assert.NoError(t, infra.CheckStatus("test", http.StatusOK, nil))
	assert.NoError(t, infra.CheckStatus("test", http.StatusNoContent, nil))
}
