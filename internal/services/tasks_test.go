package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTaskRunnerSuccess(t *testing.T) {
	runner := NewTaskRunner(context.Background(), zap.NewNop(), time.Hour)

	task := runner.Submit("install", "weather", func(ctx context.Context) error { return nil })
	require.NoError(t, task.Wait(context.Background()))

	snap := task.Snapshot()
	assert.Equal(t, TaskSucceeded, snap.State)
	assert.Equal(t, "install", snap.Operation)
	assert.Equal(t, "weather", snap.Server)
	assert.NotNil(t, snap.FinishedAt)
	assert.Empty(t, snap.Error)

	got, ok := runner.Get(task.ID)
	require.True(t, ok)
	assert.Same(t, task, got)
}

func TestTaskRunnerFailure(t *testing.T) {
	runner := NewTaskRunner(context.Background(), zap.NewNop(), time.Hour)
	boom := errors.New("boom")

	task := runner.Submit("uninstall", "weather", func(ctx context.Context) error { return boom })
	err := task.Wait(context.Background())
	assert.ErrorIs(t, err, boom)

	snap := task.Snapshot()
	assert.Equal(t, TaskFailed, snap.State)
	assert.Equal(t, "boom", snap.Error)
}

func TestTaskWaitHonorsContext(t *testing.T) {
	runner := NewTaskRunner(context.Background(), zap.NewNop(), time.Hour)
	release := make(chan struct{})
	task := runner.Submit("install", "slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, task.Wait(ctx), context.DeadlineExceeded)

	close(release)
	runner.Wait()
	assert.Equal(t, TaskSucceeded, task.Snapshot().State)
}

func TestTaskRunnerPrunesFinishedTasks(t *testing.T) {
	runner := NewTaskRunner(context.Background(), zap.NewNop(), time.Nanosecond)

	old := runner.Submit("install", "a", func(ctx context.Context) error { return nil })
	runner.Wait()
	time.Sleep(time.Millisecond)

	runner.Submit("install", "b", func(ctx context.Context) error { return nil })
	_, ok := runner.Get(old.ID)
	assert.False(t, ok)
	runner.Wait()
}
