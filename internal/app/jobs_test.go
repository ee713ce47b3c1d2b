package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type sweeperStub struct {
	calls  int
	result SweepResult
	err    error
	ctxErr error
}

func (s *sweeperStub) RunReconciliationSweep(ctx context.Context) (SweepResult, error) {
	s.calls++
	if _, ok := ctx.Deadline(); !ok {
		s.ctxErr = errors.New("sweep context has no deadline")
	}
	return s.result, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJobs_RunReconciliation(t *testing.T) {
	sweeper := &sweeperStub{result: SweepResult{Evaluated: 3, MarkedFailed: 2, Recovered: 1}}
	jobs := NewJobs(sweeper, discardLogger())

	jobs.RunReconciliation()
	sweeper.err = errors.New("database unavailable")
	jobs.RunReconciliation()

	if sweeper.calls != 2 {
		t.Fatalf("expected 2 sweeps, got %d", sweeper.calls)
	}
	if sweeper.ctxErr != nil {
		t.Fatal(sweeper.ctxErr)
	}
}

func TestNewScheduler_RejectsBadSchedule(t *testing.T) {
	jobs := NewJobs(&sweeperStub{}, discardLogger())

	bad := NewScheduler(jobs, discardLogger(), "every day at noon", time.UTC)
	if err := bad.Start(); err == nil {
		bad.Stop()
		t.Fatalf("expected invalid schedule to fail")
	}

	good := NewScheduler(jobs, discardLogger(), "0 0 * * *", time.UTC)
	if err := good.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-good.Stop().Done()
}
