package rxseal

import (
	"errors"
	"io"
	"time"

	"github.com/hengadev/rxseal/internal/monitoring"
	"github.com/hengadev/rxseal/internal/prescription"
)

type Option func(s *Service) error

func WithLogger(logger *monitoring.StructuredLogger) Option {
	return func(s *Service) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

func WithMetrics(metrics monitoring.MetricsCollector) Option {
	return func(s *Service) error {
		if metrics == nil {
			return errors.New("metrics collector cannot be nil")
		}
		s.metrics = metrics
		return nil
	}
}

// WithRepository replaces the store selected by Config.StoreDriver. The
// service closes it on Close.
func WithRepository(repo prescription.Repository) Option {
	return func(s *Service) error {
		if repo == nil {
			return errors.New("repository cannot be nil")
		}
		s.repo = repo
		return nil
	}
}

// WithRandom sets the entropy source for key pairs and IVs.
func WithRandom(random io.Reader) Option {
	return func(s *Service) error {
		s.random = random
		return nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		s.now = now
		return nil
	}
}
