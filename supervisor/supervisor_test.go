package supervisor_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrik-labs/lsprotocol/supervisor"
)

func TestSupervisorRestartsOnCleanClose(t *testing.T) {
	var starts int32
	start := func(ctx context.Context) error {
		n := atomic.AddInt32(&starts, 1)
		if n >= 3 {
			return context.Canceled
		}
		return nil
	}
	var cleanups int32
	cleanUp := func() { atomic.AddInt32(&cleanups, 1) }

	sup := supervisor.New(start, cleanUp)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := sup.Run(ctx)
	require.Error(t, err)
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&starts)), 3)
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&cleanups)), 2)
}

func TestSupervisorShutsDownAfterErrorThreshold(t *testing.T) {
	var starts int32
	start := func(ctx context.Context) error {
		atomic.AddInt32(&starts, 1)
		return errors.New("boom")
	}
	sup := supervisor.New(start, func() {})

	err := sup.Run(context.Background())
	require.Error(t, err)
	// Default policy: Continue while count<=3, Shutdown afterwards -> stops on the 4th error.
	assert.Equal(t, int32(4), atomic.LoadInt32(&starts))
	assert.Equal(t, supervisor.StartFailed, sup.CurrentState())
}

func TestSupervisorRestartStormTriggersDoNotRestart(t *testing.T) {
	var starts int32
	start := func(ctx context.Context) error {
		atomic.AddInt32(&starts, 1)
		return nil
	}
	var userMsg string
	sup := supervisor.New(start, func() {}, supervisor.WithUserMessage(func(msg string) {
		userMsg = msg
	}))

	err := sup.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(5), atomic.LoadInt32(&starts))
	assert.NotEmpty(t, userMsg)
}

func TestSupervisorCustomErrorHandlerShutsDownImmediately(t *testing.T) {
	var starts int32
	start := func(ctx context.Context) error {
		atomic.AddInt32(&starts, 1)
		return errors.New("fatal")
	}
	sup := supervisor.New(start, func() {}, supervisor.WithErrorHandler(func(err error, count int) supervisor.Decision {
		return supervisor.Shutdown
	}))

	err := sup.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&starts))
}

func TestSupervisorMarkRunningTransitionsState(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var sup *supervisor.Supervisor
	start := func(ctx context.Context) error {
		sup.MarkRunning()
		close(started)
		<-release
		return context.Canceled
	}
	sup = supervisor.New(start, func() {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	<-started
	require.Eventually(t, func() bool {
		return sup.CurrentState() == supervisor.Running
	}, time.Second, 5*time.Millisecond)

	cancel()
	close(release)
	<-done
}
