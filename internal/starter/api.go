package starter

import (
	"context"
	"sync"

	"moff.io/wallet-verify/pkg/log"
)

// Startable runs until ctx is done.
type Startable interface {
	Start(ctx context.Context)
}

type StartFunc func(ctx context.Context)

func (f StartFunc) Start(ctx context.Context) {
	f(ctx)
}

// Start runs every element in its own goroutine and returns once all of them returned.
func Start(ctx context.Context, elems ...Startable) {
	var wg sync.WaitGroup
	for _, ele := range elems {
		if ele == nil {
			continue
		}
		wg.Add(1)
		go func(ele Startable) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("startable %T stopped:%v", ele, r)
				}
			}()
			ele.Start(ctx)
		}(ele)
	}
	wg.Wait()
}
