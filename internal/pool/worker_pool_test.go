package pool

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWorkerPool(t *testing.T) {
	t.Run("SubmitWait阻塞到任务完成", func(t *testing.T) {
		p := NewWorkerPool(2, 4, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)
		defer p.Stop()

		executed := false
		p.SubmitWait(func() { executed = true })
		assert.True(t, executed)
	})

	t.Run("任务panic不影响后续任务", func(t *testing.T) {
		p := NewWorkerPool(1, 4, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)
		defer p.Stop()

		assert.NotPanics(t, func() {
			p.SubmitWait(func() { panic("boom") })
		})

		executed := false
		p.SubmitWait(func() { executed = true })
		assert.True(t, executed)
	})

	t.Run("TrySubmit队列满时返回false", func(t *testing.T) {
		p := NewWorkerPool(1, 1, zap.NewNop())
		// 不启动 worker，队列容量 1
		assert.True(t, p.TrySubmit(func() {}))
		assert.False(t, p.TrySubmit(func() {}))
	})

	t.Run("取消后排队中的任务仍被执行", func(t *testing.T) {
		p := NewWorkerPool(1, 4, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		p.Start(ctx)

		// 占住唯一的 worker，让第二个任务停留在队列里
		block := make(chan struct{})
		p.Submit(func() { <-block })

		queuedDone := make(chan struct{})
		go func() {
			p.SubmitWait(func() {})
			close(queuedDone)
		}()
		for len(p.taskQueue) == 0 {
			runtime.Gosched()
		}

		cancel()
		close(block)

		// worker 退出前必须清空队列，否则 SubmitWait 的调用方永久阻塞
		select {
		case <-queuedDone:
		case <-time.After(2 * time.Second):
			t.Fatal("queued task was not executed after cancellation")
		}
		p.wg.Wait()
	})
}
