package link

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker(t *testing.T) {
	errOpen := errors.New("open /dev/ttyUSB0: no such file")
	clock := time.Unix(1000, 0)
	b := NewBreaker(2, 5*time.Second)
	b.now = func() time.Time { return clock }

	var transitions []string
	b.OnStateChange(func(from, to State) { transitions = append(transitions, from.String()+"->"+to.String()) })

	t.Run("连续失败触发熔断", func(t *testing.T) {
		assert.ErrorIs(t, b.Call(func() error { return errOpen }), errOpen)
		assert.Equal(t, StateClosed, b.State())
		assert.ErrorIs(t, b.Call(func() error { return errOpen }), errOpen)
		assert.Equal(t, StateOpen, b.State())
		assert.Equal(t, int64(1), b.Trips())
	})

	t.Run("冷却期内拒绝", func(t *testing.T) {
		called := false
		err := b.Call(func() error { called = true; return nil })
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.False(t, called)
	})

	t.Run("试探失败重新熔断", func(t *testing.T) {
		clock = clock.Add(6 * time.Second)
		assert.ErrorIs(t, b.Call(func() error { return errOpen }), errOpen)
		assert.Equal(t, StateOpen, b.State())
		assert.Equal(t, int64(2), b.Trips())
	})

	t.Run("试探成功恢复", func(t *testing.T) {
		clock = clock.Add(6 * time.Second)
		assert.NoError(t, b.Call(func() error { return nil }))
		assert.Equal(t, StateClosed, b.State())
	})

	assert.Equal(t, []string{
		"closed->open", "open->half_open", "half_open->open", "open->half_open", "half_open->closed",
	}, transitions)
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(1, time.Hour)
	_ = b.Call(func() error { return errors.New("boom") })
	assert.Equal(t, StateOpen, b.State())
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Call(func() error { return nil }))
}
