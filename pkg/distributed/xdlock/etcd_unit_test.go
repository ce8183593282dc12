package xdlock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewEtcdLocker_NilClient(t *testing.T) {
	_, err := NewEtcdLocker(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestLeaseSeconds(t *testing.T) {
	assert.Equal(t, 1, leaseSeconds(100*time.Millisecond))
	assert.Equal(t, 10, leaseSeconds(10*time.Second))
	assert.Equal(t, 11, leaseSeconds(10*time.Second+time.Millisecond))
}
