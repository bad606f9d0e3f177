package workerpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSubmitAndStop(t *testing.T) {
	p := New(4, 16, zap.NewNop())

	var ran int32
	for i := 0; i < 10; i++ {
		ok := p.Submit(func() { atomic.AddInt32(&ran, 1) })
		assert.True(t, ok)
	}

	p.Stop()
	assert.Equal(t, int32(10), atomic.LoadInt32(&ran))
}

func TestSubmitDropsWhenFull(t *testing.T) {
	p := New(1, 1, zap.NewNop())
	defer p.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	p.Submit(func() { close(started); <-block })
	// Wait until the worker is actually busy so the queue slot is free.
	<-started

	// Fill the single queue slot, then the next submit must drop.
	filled := p.Submit(func() {})
	dropped := false
	for i := 0; i < 10; i++ {
		if !p.Submit(func() {}) {
			dropped = true
			break
		}
	}
	close(block)

	assert.True(t, filled)
	assert.True(t, dropped, "pool with a busy worker and full queue drops jobs")
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	p := New(1, 4, zap.NewNop())

	p.Submit(func() { panic("boom") })

	var ran int32
	p.Submit(func() { atomic.AddInt32(&ran, 1) })

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&ran) == 0 {
		select {
		case <-deadline:
			t.Fatal("worker did not survive panic")
		case <-time.After(10 * time.Millisecond):
		}
	}
	p.Stop()
}
