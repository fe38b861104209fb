package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestEpochScheduler_TickerTriggersProcessing(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newEpochFixture()
	scheduler := NewEpochScheduler(f.svc, zap.NewNop())
	scheduler.SetInterval(10 * time.Millisecond)

	scheduler.Start()

	require.Eventually(t, func() bool {
		current, err := f.epochs.Current(context.Background())
		return err == nil && current >= 1
	}, 2*time.Second, 5*time.Millisecond)

	scheduler.Stop()
}

func TestEpochScheduler_StopIsClean(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newEpochFixture()
	scheduler := NewEpochScheduler(f.svc, zap.NewNop())
	scheduler.SetInterval(time.Hour)

	scheduler.Start()
	scheduler.Stop()

	current, err := f.epochs.Current(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, current)
}

func TestEpochScheduler_BadCronSpecFallsBackToTicker(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newEpochFixture()
	scheduler := NewEpochScheduler(f.svc, zap.NewNop())
	scheduler.SetCronSpec("not a cron expression")
	scheduler.SetInterval(10 * time.Millisecond)

	scheduler.Start()

	require.Eventually(t, func() bool {
		current, err := f.epochs.Current(context.Background())
		return err == nil && current >= 1
	}, 2*time.Second, 5*time.Millisecond)

	scheduler.Stop()
}
