package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
)

var ErrBusy = errors.New("a run is already in progress")

// ParseClock parses "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("scheduled time %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("scheduled time %q: bad hour", s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("scheduled time %q: bad minute", s)
	}
	return hour, minute, nil
}

// Next returns the first HH:MM in loc strictly after now.
func Next(now time.Time, hour, minute int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

type Job func(ctx context.Context)

type Config struct {
	Hour     int
	Minute   int
	Location *time.Location
	// RunNow triggers one run right after Start.
	RunNow bool
}

// Scheduler runs a job once a day and on explicit requests. Runs never overlap.
type Scheduler struct {
	cfg      Config
	requests chan string
	now      func() time.Time

	mu      sync.Mutex
	running bool
	nextRun time.Time
}

func New(cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		cfg:      cfg,
		requests: make(chan string, 1),
		now:      time.Now,
	}
}

// Request asks for a one-shot run. It fails with ErrBusy while a run is in
// progress or another request is already queued.
func (s *Scheduler) Request(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrBusy
	}
	select {
	case s.requests <- source:
		return nil
	default:
		return ErrBusy
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context, job Job) error {
	if s.cfg.RunNow {
		s.run(ctx, job, "startup")
	}

	for {
		next := Next(s.now(), s.cfg.Hour, s.cfg.Minute, s.cfg.Location)
		s.mu.Lock()
		s.nextRun = next
		s.mu.Unlock()
		log.Printf("[schedule] next run at %s", next.Format("2006-01-02 15:04:05 MST"))

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case src := <-s.requests:
			timer.Stop()
			s.run(ctx, job, src)
		case <-timer.C:
			s.run(ctx, job, "schedule")
		}
	}
}

func (s *Scheduler) run(ctx context.Context, job Job, source string) {
	s.mu.Lock()
	s.running = true
	// a request queued before this run started is served by it
	select {
	case src := <-s.requests:
		log.Printf("[schedule] request from %s merged into this run", src)
	default:
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log.Printf("[schedule] run triggered by %s", source)
	job(ctx)
}
