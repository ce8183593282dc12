package xretry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestRetryer_SucceedsAfterFailures(t *testing.T) {
	r := New(WithAttempts(3), WithDelay(time.Millisecond))

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryer_ExhaustedReturnsLastError(t *testing.T) {
	var retried []uint
	r := New(WithAttempts(2), WithDelay(time.Millisecond),
		WithOnRetry(func(n uint, _ error) { retried = append(retried, n) }))

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 2, calls)
	assert.NotEmpty(t, retried)
}

func TestRetryer_Unrecoverable(t *testing.T) {
	r := New(WithAttempts(5), WithDelay(time.Millisecond))

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return Unrecoverable(errTransient)
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestRetryer_RetryIf(t *testing.T) {
	r := New(WithAttempts(5), WithDelay(time.Millisecond),
		WithRetryIf(func(err error) bool { return !errors.Is(err, errTransient) }))

	calls := 0
	_ = r.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	assert.Equal(t, 1, calls)
}

func TestRetryer_StopsOnContextCancel(t *testing.T) {
	r := New(WithAttempts(10), WithDelay(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := r.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})
	require.Error(t, err)
	assert.Less(t, calls, 10)
}

func TestRetryer_NilFunc(t *testing.T) {
	assert.ErrorIs(t, New().Do(context.Background(), nil), ErrNilFunc)
	assert.Equal(t, uint(3), New().Attempts())
}
