package service

import (
	"time"

	"github.com/okian/kiosk/internal/adapters/mq/worker"
	"github.com/okian/kiosk/internal/capture"
	"github.com/okian/kiosk/internal/domain/dedupe"
	"github.com/okian/kiosk/internal/domain/facedetect"
	"github.com/okian/kiosk/internal/domain/model"
	"github.com/okian/kiosk/internal/domain/recognition"
	"github.com/okian/kiosk/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithCamera sets how the camera is opened and at which resolution.
func WithCamera(opener capture.Opener, req capture.Request) Option {
	return func(s *Service) {
		s.opener = opener
		s.cameraReq = req
	}
}

// WithDetector sets the local face detector.
func WithDetector(d facedetect.Detector) Option {
	return func(s *Service) {
		s.detector = d
	}
}

// WithRecognizer sets the remote recognizer.
func WithRecognizer(r recognition.Recognizer) Option {
	return func(s *Service) {
		s.recognizer = r
	}
}

// WithRosterSource fetches events and employees once per camera session.
func WithRosterSource(src RosterSource) Option {
	return func(s *Service) {
		s.rosterSource = src
	}
}

// WithStaticRoster seeds the roster for runs without a backend.
func WithStaticRoster(events []model.Event, employees []model.Employee) Option {
	return func(s *Service) {
		s.roster.SetEvents(events)
		s.roster.SetEmployees(employees)
	}
}

// WithEvent preselects an event by id.
func WithEvent(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.roster.Preselect(id)
		}
	}
}

// WithAuthorizer checks the operator's role before the camera starts.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Service) {
		s.authorizer = a
	}
}

// WithBroadcaster receives outcome, log and camera updates.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) {
		s.broadcaster = b
	}
}

// WithRenderInterval sets the render tick period.
func WithRenderInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.renderInterval = d
		}
	}
}

// WithRecognitionInterval sets the dispatch tick period.
func WithRecognitionInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.recognitionInterval = d
		}
	}
}

// WithRecognitionTimeout bounds each recognition call.
func WithRecognitionTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.recognitionTimeout = d
		}
	}
}

// WithLabelDurations sets how long recognized and unknown labels stay up.
func WithLabelDurations(recognized, unknown time.Duration) Option {
	return func(s *Service) {
		if recognized > 0 {
			s.recognizedTTL = recognized
		}
		if unknown > 0 {
			s.unknownTTL = unknown
		}
	}
}

// WithDetectionLog sets the log capacity and per-entry display duration.
func WithDetectionLog(capacity int, expiry time.Duration) Option {
	return func(s *Service) {
		if capacity > 0 {
			s.logCapacity = capacity
		}
		if expiry > 0 {
			s.logExpiry = expiry
		}
	}
}

// WithCheckins posts recognized outcomes for the selected event through a
// bounded queue and a rate-limited worker pool.
func WithCheckins(submitter worker.Submitter, workers, queueSize int, ratePerSec float64) Option {
	return func(s *Service) {
		s.submitter = submitter
		if workers > 0 {
			s.checkinWorkers = workers
		}
		if queueSize > 0 {
			s.checkinQueueSize = queueSize
		}
		if ratePerSec > 0 {
			s.checkinRate = ratePerSec
		}
	}
}

// WithDeduper sets the check-in deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
