package pool

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	p := NewWorkerPool(3, 10, nil)
	p.Start(context.Background())

	var count int32
	for i := 0; i < 10; i++ {
		p.Submit(func() { atomic.AddInt32(&count, 1) })
	}
	p.Stop()

	assert.Equal(t, int32(10), atomic.LoadInt32(&count))
}

func TestWorkerPool_RecoversPanic(t *testing.T) {
	p := NewWorkerPool(1, 2, nil)
	p.Start(context.Background())

	var done int32
	p.Submit(func() { panic("boom") })
	p.Submit(func() { atomic.StoreInt32(&done, 1) })
	p.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&done), "panic 后协程应继续工作")
}

func TestWorkerPool_TrySubmitWhenFull(t *testing.T) {
	p := NewWorkerPool(1, 1, nil)

	assert.True(t, p.TrySubmit(func() {}))
	assert.False(t, p.TrySubmit(func() {}), "队列已满")

	p.Start(context.Background())
	p.Stop()
	p.Stop()
}
