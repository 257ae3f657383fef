package services

import (
	"context"
	"log"
	"time"

	"samadhaan/internal/repositories"
)

// staleWindowAge — окна старше суток уже не участвуют ни в одной проверке.
const staleWindowAge = 48 * time.Hour

// Sweeper удаляет истёкшие челленджи, старые окна лимитера и просроченные сессии.
type Sweeper struct {
	challenges repositories.OTPChallengeRepository
	windows    repositories.RateWindowRepository
	sessions   repositories.SessionRepository
	now        func() time.Time
}

func NewSweeper(
	challenges repositories.OTPChallengeRepository,
	windows repositories.RateWindowRepository,
	sessions repositories.SessionRepository,
	now func() time.Time,
) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{challenges: challenges, windows: windows, sessions: sessions, now: now}
}

type SweepStats struct {
	Challenges int64
	Windows    int64
	Sessions   int64
}

func (s *Sweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	var st SweepStats
	now := s.now()

	n, err := s.challenges.DeleteExpired(ctx, now)
	if err != nil {
		return st, dependency("sweep challenges", err)
	}
	st.Challenges = n

	n, err = s.windows.DeleteBefore(ctx, now.Add(-staleWindowAge))
	if err != nil {
		return st, dependency("sweep rate windows", err)
	}
	st.Windows = n

	n, err = s.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return st, dependency("sweep sessions", err)
	}
	st.Sessions = n
	return st, nil
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := s.SweepOnce(ctx)
			if err != nil {
				log.Printf("[sweeper][run] err=%v", err)
				continue
			}
			if st.Challenges+st.Windows+st.Sessions > 0 {
				log.Printf("[sweeper][run] challenges=%d windows=%d sessions=%d", st.Challenges, st.Windows, st.Sessions)
			}
		}
	}
}
