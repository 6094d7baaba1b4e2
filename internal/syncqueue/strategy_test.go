package syncqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff_GetDelay(t *testing.T) {
	s := &ExponentialBackoff{InitialDelay: time.Second, MaxDelay: 10 * time.Second}

	assert.Equal(t, time.Second, s.GetDelay(-1))
	assert.Equal(t, time.Second, s.GetDelay(0))
	assert.Equal(t, 2*time.Second, s.GetDelay(1))
	assert.Equal(t, 8*time.Second, s.GetDelay(3))
	assert.Equal(t, 10*time.Second, s.GetDelay(4))
	assert.Equal(t, 10*time.Second, s.GetDelay(40))
}

func TestDefaultBackoff(t *testing.T) {
	s := DefaultBackoff()
	assert.Equal(t, 2*time.Second, s.GetDelay(0))
	assert.Equal(t, 5*time.Minute, s.GetDelay(20))
}
