package scheduler

import (
	"time"

	"golang.org/x/time/rate"

	logx "airsync/pkg/logx"
)

// A connection that keeps failing logs at most one warning per interval;
// the rest go to debug.
const failureWarnEvery = 30 * time.Second

func (s *Service) reportFailure(connectionID string, err error) {
	if err == nil {
		return
	}
	s.warnMu.Lock()
	lim, ok := s.warnLims[connectionID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(failureWarnEvery), 1)
		s.warnLims[connectionID] = lim
	}
	s.warnMu.Unlock()

	if lim.Allow() {
		s.log.Warn("scheduling failed", logx.String("connection_id", connectionID), logx.Err(err))
		return
	}
	s.log.Debug("scheduling failed (warning throttled)", logx.String("connection_id", connectionID), logx.Err(err))
}
