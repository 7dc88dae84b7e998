package starter

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStart_WaitsForAll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var stopped int32
	worker := StartFunc(func(ctx context.Context) {
		<-ctx.Done()
		atomic.AddInt32(&stopped, 1)
	})
	panicking := StartFunc(func(context.Context) { panic("boom") })

	done := make(chan struct{})
	go func() {
		Start(ctx, worker, nil, panicking, worker)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&stopped))
}
