package errors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_StackBasedRateLimited(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := newRateLimiter(time.Minute)
	limiter.now = func() time.Time { return now }

	limited, stats := limiter.StackBasedRateLimited("site-a")
	assert.False(t, limited)
	assert.Nil(t, stats.lastReportTime)

	now = now.Add(10 * time.Second)
	limited, _ = limiter.StackBasedRateLimited("site-a")
	assert.True(t, limited)

	limited, _ = limiter.StackBasedRateLimited("site-b")
	assert.False(t, limited, "other call sites are tracked separately")

	now = now.Add(time.Minute)
	limited, stats = limiter.StackBasedRateLimited("site-a")
	assert.False(t, limited)
	assert.Equal(t, 1, stats.occurCountSinceLastReport)
	assert.Equal(t, 2, stats.totalOccurCount)
}

func TestWrapAndReport_Nil(t *testing.T) {
	assert.NoError(t, WrapAndReport(nil, "nothing"))
	assert.NoError(t, Wrap(nil, "nothing"))
}

type captureReporter struct {
	errs []error
}

func (c *captureReporter) Report(err error) {
	c.errs = append(c.errs, err)
}

func TestWrapAndReport_Reports(t *testing.T) {
	t.Setenv(debugMode, "")
	c := &captureReporter{}
	ResetReporters()
	RegisterReporter(c)
	defer ResetReporters()

	base := New("boom")
	err := WrapAndReport(base, "call backend")
	assert.EqualError(t, err, "call backend: boom")
	assert.True(t, Is(err, base))
	assert.Len(t, c.errs, 1)
}

func TestReportSite(t *testing.T) {
	site := reportSite([]string{
		"moff.io/wallet-verify/pkg/errors.(*larkReporter).Report /x/lark.go:10",
		"moff.io/wallet-verify/pkg/errors.report /x/reporter.go:20",
		"moff.io/wallet-verify/internal/backend.(*Client).post /x/client.go:30",
	})
	assert.Equal(t, "moff.io/wallet-verify/internal/backend.(*Client).post /x/client.go:30", site)
	assert.Equal(t, "", reportSite(nil))
}
