package background

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"storeadmin/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) SweepIdle() int {
	s.calls.Add(1)
	return 0
}

func TestJobScheduler_RegistersAndRuns(t *testing.T) {
	sweeper := &countingSweeper{}
	var refreshed atomic.Int32
	refresher := CategoryRefresherFunc(func(ctx context.Context) error {
		refreshed.Add(1)
		return nil
	})

	js, err := NewJobScheduler(sweeper, refresher, 5*time.Minute, logger.Nop())
	require.NoError(t, err)

	status := js.GetJobStatus()
	assert.Equal(t, 2, status["total_jobs"])
	assert.ElementsMatch(t, []string{"form-session-sweep", "category-refresh"}, status["jobs"])

	js.Start()
	defer func() { require.NoError(t, js.Stop()) }()

	require.NoError(t, js.RunNow("form-session-sweep"))
	require.NoError(t, js.RunNow("category-refresh"))
	assert.Eventually(t, func() bool {
		return sweeper.calls.Load() >= 1 && refreshed.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, js.RunNow("missing"), ErrJobNotFound)
}

func TestJobScheduler_NoRefreshWithoutInterval(t *testing.T) {
	js, err := NewJobScheduler(&countingSweeper{}, nil, 0, logger.Nop())
	require.NoError(t, err)
	js.Start()
	defer func() { _ = js.Stop() }()

	assert.Equal(t, 1, js.GetJobStatus()["total_jobs"])
}
