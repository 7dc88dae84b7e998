package concurrent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AddContext(t *testing.T) {
	l := NewLimiter(2)
	require.NoError(t, l.AddContext(context.Background()))
	require.NoError(t, l.AddContext(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.AddContext(ctx), context.DeadlineExceeded)

	l.Done()
	assert.NoError(t, l.AddContext(context.Background()))
}
