package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReceive(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	ch <- 42
	assert.Equal(t, 42, Receive(t, ch, time.Second))
}

func TestWaitForChannel(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		time.Sleep(time.Millisecond)
		close(done)
	}()
	WaitForChannel(t, done, time.Second, "channel was not closed")
}
