package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
)

// Provider delivers one task to an outside channel.
type Provider interface {
	Name() string
	Deliver(ctx context.Context, task models.Task) error
}

type Options struct {
	QueueSize  int
	MaxWorkers int
}

// Service drains alert Tasks through a worker pool and hands each one to
// every configured provider.
type Service struct {
	logger    *logging.Logger
	opts      Options
	tasks     chan models.Task
	ctx       context.Context
	cancel    context.CancelFunc
	wg        *sync.WaitGroup
	providers []Provider
	now       func() time.Time
}

// New constructs a notification Service.
func New(logger *logging.Logger, opts Options, providers ...Provider) *Service {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		logger:    logger.Component("notification"),
		opts:      opts,
		tasks:     make(chan models.Task, opts.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		providers: providers,
		now:       time.Now,
	}
}

// Start launches the worker pool.
func (s *Service) Start(wg *sync.WaitGroup) {
	s.wg = wg
	for i := 0; i < s.opts.MaxWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.logger.Infof("Started %d workers for %d providers", s.opts.MaxWorkers, len(s.providers))
}

// Stop cancels the workers. Tasks still queued are dropped.
func (s *Service) Stop() {
	s.cancel()
}

// QueueTask enqueues a Task for processing.
func (s *Service) QueueTask(task models.Task) {
	if len(s.providers) == 0 {
		return
	}
	select {
	case s.tasks <- task:
		s.logger.Debugf("Queued task: request_id=%s event=%s alert=%s", task.RequestID, task.Event, task.Alert.ID)
	default:
		s.logger.Errorf("Queue full, dropping task: request_id=%s alert=%s", task.RequestID, task.Alert.ID)
	}
}

func (s *Service) AlertRaised(a models.Alert) {
	s.QueueTask(s.newTask(models.TaskNewAlert, a))
}

func (s *Service) AlertAcknowledged(a models.Alert) {
	s.QueueTask(s.newTask(models.TaskAlertAcknowledged, a))
}

func (s *Service) newTask(event models.TaskEvent, a models.Alert) models.Task {
	return models.Task{
		RequestID: uuid.NewString(),
		Event:     event,
		Alert:     a,
		Timestamp: s.now(),
	}
}

// worker processes Tasks until context is cancelled.
func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debugf("Worker %d stopped", id)
			return
		case task := <-s.tasks:
			s.handleTask(task)
		}
	}
}

// handleTask dispatches to every provider; one failing provider does not
// stop the others.
func (s *Service) handleTask(task models.Task) {
	log := s.logger.WithField("request_id", task.RequestID)
	for _, p := range s.providers {
		if err := p.Deliver(s.ctx, task); err != nil {
			log.Errorf("Dispatch %s for alert %s via %s failed: %v", task.Event, task.Alert.ID, p.Name(), err)
			continue
		}
		log.Infof("Dispatched %s for alert %s via %s", task.Event, task.Alert.ID, p.Name())
	}
}
