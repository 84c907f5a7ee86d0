package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPool_RunsSubmittedJobs(t *testing.T) {
	p := New(4)
	defer p.Close()

	var count int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
		})
	}
	wg.Wait()
	assert.EqualValues(t, 100, count)
}

func TestPool_DefaultSizeWhenNonPositive(t *testing.T) {
	p := New(0)
	defer p.Close()
	assert.NotNil(t, p)
}

func TestPool_SubmitAfterCloseDoesNotBlockForever(t *testing.T) {
	p := New(1)
	p.Close()

	done := make(chan struct{})
	go func() {
		p.Submit(func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked after Close")
	}
}
