package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CardExpirer marks cards past their expiration date as EXPIRED
type CardExpirer interface {
	ExpireCards(ctx context.Context) ([]int64, error)
}

// ExpirySweeper runs CardExpirer on a cron schedule
type ExpirySweeper struct {
	cron    *cron.Cron
	expirer CardExpirer
	logger  *logrus.Logger
	timeout time.Duration
}

// NewExpirySweeper registers the sweep under a standard five-field cron spec
func NewExpirySweeper(spec string, expirer CardExpirer, logger *logrus.Logger) (*ExpirySweeper, error) {
	s := &ExpirySweeper{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		expirer: expirer,
		logger:  logger,
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(spec, s.Sweep); err != nil {
		return nil, fmt.Errorf("failed to schedule expiry sweep %q: %w", spec, err)
	}
	return s, nil
}

// Sweep runs one pass
func (s *ExpirySweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	ids, err := s.expirer.ExpireCards(ctx)
	if err != nil {
		s.logger.Errorf("Expiry sweep failed: %v", err)
		return
	}
	s.logger.WithField("expired", len(ids)).Info("Expiry sweep finished")
}

func (s *ExpirySweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep
func (s *ExpirySweeper) Stop() {
	<-s.cron.Stop().Done()
}
