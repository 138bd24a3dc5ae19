package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Scheduler periodically checks whether a fresh analysis run is worthwhile
// and triggers one when it is.
type Scheduler struct {
	orchestrator *Orchestrator
	interval     time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler creates a scheduler that polls at the given interval.
// Intervals of zero or less default to one hour.
func NewScheduler(orchestrator *Orchestrator, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		orchestrator: orchestrator,
		interval:     interval,
	}
}

// Start runs the scheduling loop until the context is cancelled or Stop is
// called. It blocks; run it in a goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Analysis scheduler started: interval=%v", s.interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("Analysis scheduler stopping (context cancelled)")
			return ctx.Err()

		case <-s.stopCh:
			log.Println("Analysis scheduler stopping (stop requested)")
			return nil

		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick performs one scheduling decision and, when due, one analysis run.
func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.orchestrator.ShouldRunAnalysis(ctx)
	if err != nil {
		log.Printf("Scheduled analysis check failed: %v", err)
		return
	}
	if !due {
		return
	}

	log.Println("Starting scheduled analysis run...")
	result, err := s.orchestrator.RunFullAnalysis(ctx, nil)
	if err != nil {
		log.Printf("Scheduled analysis run failed: %v", err)
		return
	}
	log.Printf("Scheduled analysis completed: suggestions=%d, api_calls=%d, duration=%dms, analyzer_errors=%d",
		result.TotalSuggestions, result.TotalAPICalls, result.TotalTimeMs, len(result.Errors))
}

// Stop requests a graceful stop and waits for the loop to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	return nil
}
