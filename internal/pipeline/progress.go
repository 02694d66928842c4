package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/logger"
)

// ProgressFunc observes progress events in order.
type ProgressFunc func(domain.ProcessingProgress)

// progressStream records every event of a run and forwards them to an observer
// through a bounded queue. Publishing never blocks the pipeline: when the
// observer falls behind, events are dropped from the stream but kept in the log.
type progressStream struct {
	log     []domain.ProcessingProgress
	ch      chan domain.ProcessingProgress
	done    chan struct{}
	dropped int
	flush   time.Duration
	logger  zerolog.Logger
}

func newProgressStream(ctx context.Context, fn ProgressFunc, buffer int, flush time.Duration) *progressStream {
	s := &progressStream{
		flush:  flush,
		logger: logger.FromContext(ctx),
	}
	if fn == nil {
		return s
	}
	if buffer <= 0 {
		buffer = DefaultProgressBuffer
	}

	s.ch = make(chan domain.ProcessingProgress, buffer)
	s.done = make(chan struct{})
	go s.drain(fn)
	return s
}

func (s *progressStream) drain(fn ProgressFunc) {
	defer close(s.done)
	for ev := range s.ch {
		s.deliver(fn, ev)
	}
}

func (s *progressStream) deliver(fn ProgressFunc, ev domain.ProcessingProgress) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().
				Interface("panic", r).
				Str("step", string(ev.Step)).
				Msg("Progress observer panicked")
		}
	}()
	fn(ev)
}

func (s *progressStream) publish(step domain.Stage, percent int, message string) {
	ev := domain.ProcessingProgress{Step: step, Percent: percent, Message: message}
	s.log = append(s.log, ev)
	if s.ch == nil {
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped++
	}
}

// events returns a copy of everything published so far.
func (s *progressStream) events() []domain.ProcessingProgress {
	out := make([]domain.ProcessingProgress, len(s.log))
	copy(out, s.log)
	return out
}

// close stops the stream and waits up to the flush timeout for the observer
// to catch up. Events still queued after that are delivered in the background.
func (s *progressStream) close() {
	if s.ch == nil {
		return
	}
	close(s.ch)

	timer := time.NewTimer(s.flush)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
		s.logger.Warn().Dur("timeout", s.flush).Msg("Progress observer did not drain in time")
	}
	if s.dropped > 0 {
		s.logger.Debug().Int("dropped", s.dropped).Msg("Progress events dropped for slow observer")
	}
}
