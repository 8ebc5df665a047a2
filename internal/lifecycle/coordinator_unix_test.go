//go:build !windows

package lifecycle

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSIGTERMRequestsShutdown(t *testing.T) {
	app := &testApp{}
	logs := &syncBuffer{}
	c := New(app, WithName("tcu-test"), WithConfig(testConfig(t, 10*time.Millisecond)), WithLogWriter(logs))

	done := make(chan int, 1)
	go func() { done <- c.Run(context.Background()) }()
	require.True(t, waitPhase(c, PhaseRunning))

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))
	select {
	case code := <-done:
		assert.Equal(t, ExitOK, code)
	case <-time.After(3 * time.Second):
		t.Fatal("SIGTERM did not stop the coordinator")
	}
	assert.EqualValues(t, 1, app.cleanCalls.Load())
}
