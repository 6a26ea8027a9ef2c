package service

import (
	"log/slog"
	"time"
)

// HousekeepingService periodically drops expired codes and provider
// sessions.
type HousekeepingService struct {
	Codes    *CodeStore
	Sessions *SessionRegistry
	Logger   *slog.Logger
	Interval time.Duration
	Now      func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to one minute.
func NewHousekeepingService(codes *CodeStore, sessions *SessionRegistry, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &HousekeepingService{
		Codes:    codes,
		Sessions: sessions,
		Logger:   logger,
		Interval: interval,
		Now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the cleanup loop in the background until Stop.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until the loop has exited.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup purges once and reports what went.
func (s *HousekeepingService) Cleanup() (codes, sessions int) {
	now := s.Now()
	codes = s.Codes.Purge(now)
	sessions = s.Sessions.Purge(now)
	if codes > 0 || sessions > 0 {
		s.Logger.Debug("housekeeping cleanup completed", "codes", codes, "sessions", sessions)
	}
	return codes, sessions
}
