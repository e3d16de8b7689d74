package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/events"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/application"
)

type fakeSweeps struct {
	fail  map[string]bool
	calls []string
}

func (f *fakeSweeps) RunSweep(_ context.Context, name string) (application.SweepReport, error) {
	f.calls = append(f.calls, name)
	if f.fail[name] {
		return application.SweepReport{Name: name}, errors.New("sweep store unavailable")
	}
	return application.SweepReport{Name: name, Scanned: 1, Applied: 1}, nil
}

func TestSweepWorkerContinuesPastFailingSweep(t *testing.T) {
	t.Parallel()

	runner := &fakeSweeps{fail: map[string]bool{application.SweepExpireCheckouts: true}}
	names := []string{application.SweepExpireCheckouts, application.SweepAutoConfirmDeliveries}
	worker := events.NewSweepWorker(quietLogger(), runner, time.Minute, names)

	worker.RunOnce(context.Background())
	if len(runner.calls) != 2 || runner.calls[1] != application.SweepAutoConfirmDeliveries {
		t.Fatalf("every sweep should run despite failures, got %v", runner.calls)
	}
}

func TestSweepWorkerDefaultsToEverySweep(t *testing.T) {
	t.Parallel()

	runner := &fakeSweeps{}
	worker := events.NewSweepWorker(quietLogger(), runner, 0, nil)
	worker.RunOnce(context.Background())
	if len(runner.calls) != len(application.SweepNames()) {
		t.Fatalf("expected %d sweeps, got %v", len(application.SweepNames()), runner.calls)
	}
}

func TestSweepWorkerSkipsWhenCancelled(t *testing.T) {
	t.Parallel()

	runner := &fakeSweeps{}
	worker := events.NewSweepWorker(quietLogger(), runner, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := worker.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("a cancelled worker runs nothing, got %v", runner.calls)
	}
}
