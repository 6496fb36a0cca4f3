package jobs

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

type fakeExpirer struct {
	calls int
	err   error
}

func (f *fakeExpirer) ExpireCards(ctx context.Context) ([]int64, error) {
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("sweep context has no deadline")
	}
	return []int64{1, 2}, f.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewExpirySweeperRejectsBadSpec(t *testing.T) {
	if _, err := NewExpirySweeper("not a cron spec", &fakeExpirer{}, quietLogger()); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestSweep(t *testing.T) {
	expirer := &fakeExpirer{}
	s, err := NewExpirySweeper("0 3 * * *", expirer, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	s.Sweep()
	expirer.err = errors.New("db down")
	s.Sweep()
	if expirer.calls != 2 {
		t.Fatalf("calls=%d want 2", expirer.calls)
	}

	s.Start()
	s.Stop()
}
