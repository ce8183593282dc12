package xid

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sony/sonyflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_UniqueAndDecomposable(t *testing.T) {
	// Given
	g, err := NewGenerator(WithMachineID(func() (uint16, error) { return 42, nil }))
	require.NoError(t, err)

	// When
	var mu sync.Mutex
	seen := make(map[int64]struct{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				id, err := g.New()
				assert.NoError(t, err)
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Then
	assert.Len(t, seen, 800)
	for id := range seen {
		c, err := Decompose(id)
		require.NoError(t, err)
		assert.Equal(t, int64(42), c.Machine)
		break
	}
}

func TestNewGenerator_InvalidConfig(t *testing.T) {
	_, err := NewGenerator(WithMaxWait(-1))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewGenerator(WithMachineID(nil))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewGenerator(WithMachineID(func() (uint16, error) { return 0, errors.New("no id") }))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewWithRetry(t *testing.T) {
	t.Run("retries transient error", func(t *testing.T) {
		calls := 0
		g := &Generator{maxWait: DefaultMaxWait, next: func() (int64, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("clock moved backwards")
			}
			return 7, nil
		}}
		id, err := g.NewWithRetry(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
	})

	t.Run("overflow is not retried", func(t *testing.T) {
		g := &Generator{maxWait: DefaultMaxWait, next: func() (int64, error) {
			return 0, sonyflake.ErrOverTimeLimit
		}}
		_, err := g.NewWithRetry(context.Background())
		assert.ErrorIs(t, err, ErrOverTimeLimit)
	})

	t.Run("gives up after max wait", func(t *testing.T) {
		g := &Generator{maxWait: 0, next: func() (int64, error) {
			return 0, errors.New("still failing")
		}}
		_, err := g.NewWithRetry(context.Background())
		assert.ErrorIs(t, err, ErrWaitTimeout)
	})

	t.Run("context canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		g := &Generator{maxWait: DefaultMaxWait, next: func() (int64, error) {
			return 0, errors.New("still failing")
		}}
		_, err := g.NewWithRetry(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDecompose_Invalid(t *testing.T) {
	_, err := Decompose(0)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestDefaultMachineID(t *testing.T) {
	t.Setenv(EnvMachineID, "1234")
	id, err := DefaultMachineID()
	require.NoError(t, err)
	assert.Equal(t, uint16(1234), id)

	t.Setenv(EnvMachineID, "70000")
	_, err = DefaultMachineID()
	assert.Error(t, err)

	t.Setenv(EnvMachineID, "")
	_, err = DefaultMachineID()
	assert.NoError(t, err)
}
