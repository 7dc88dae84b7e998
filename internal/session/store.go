// Package session keeps the live verification views in memory, in the order
// they were added. A view is added after its page load finished, so that
// order may differ from creation order and a sweep checks every entry.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"moff.io/wallet-verify/internal/verify"
	"moff.io/wallet-verify/pkg/common"
	"moff.io/wallet-verify/pkg/log"
)

type Store struct {
	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu    sync.Mutex
	views *linkedhashmap.Map
}

func NewStore(ttl, sweepInterval time.Duration) *Store {
	return &Store{
		ttl:           ttl,
		sweepInterval: sweepInterval,
		now:           time.Now,
		views:         linkedhashmap.New(),
	}
}

// NewID returns an unguessable view id.
func (s *Store) NewID() string {
	return common.NewCutUUIDString()
}

func (s *Store) Add(v *verify.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views.Put(v.ID(), v)
}

// Get returns a live view. Expired views are reported missing even before
// the sweeper removed them.
func (s *Store) Get(id string) (*verify.View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.views.Get(id)
	if !ok {
		return nil, false
	}
	v := value.(*verify.View)
	if s.expired(v) {
		return nil, false
	}
	return v, true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views.Size()
}

// Sweep drops expired views and releases their wallets. It returns the number of views dropped.
func (s *Store) Sweep() int {
	var expired []*verify.View
	s.mu.Lock()
	it := s.views.Iterator()
	for it.Next() {
		v := it.Value().(*verify.View)
		if s.expired(v) {
			expired = append(expired, v)
		}
	}
	for _, v := range expired {
		s.views.Remove(v.ID())
	}
	s.mu.Unlock()

	for _, v := range expired {
		v.Close()
	}
	return len(expired)
}

// Start sweeps periodically until ctx is done, then closes every view.
func (s *Store) Start(ctx context.Context) {
	interval := s.sweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Infof("View sweeper running every %v, ttl %v", interval, s.ttl)
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			log.Warn("View sweeper stopped...")
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Debugf("swept %v expired views, %v live", n, s.Len())
			}
		}
	}
}

func (s *Store) closeAll() {
	s.mu.Lock()
	values := s.views.Values()
	s.views.Clear()
	s.mu.Unlock()
	for _, value := range values {
		value.(*verify.View).Close()
	}
}

func (s *Store) expired(v *verify.View) bool {
	return s.ttl > 0 && s.now().Sub(v.CreatedAt()) >= s.ttl
}
