// Package extract turns compiled artifacts into human-readable text: a
// bytecode listing of a class file, decompiled Java, or formatted smali of
// one class from the DEX.
package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/jide/internal/config"
	"github.com/dusk-indust/jide/internal/diag"
	"github.com/dusk-indust/jide/internal/jobs"
	"github.com/dusk-indust/jide/internal/toolchain"
)

// Kind selects an extractor.
type Kind string

const (
	KindDisassemble Kind = "disassemble"
	KindDecompile   Kind = "decompile"
	KindSmali       Kind = "smali"
)

// Kinds lists every extractor.
var Kinds = []Kind{KindDisassemble, KindDecompile, KindSmali}

// ParseKind maps a user-supplied name to a Kind.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", diag.Config("extract", fmt.Errorf("unknown extractor %q (want disassemble, decompile or smali)", name))
}

var (
	ErrClosed    = errors.New("extract: service closed")
	ErrQueueFull = errors.New("extract: queue full")
)

// Request names one class to extract with one extractor.
type Request struct {
	Kind     Kind
	Class    string
	Settings config.Settings
}

// Result is the terminal outcome of one extraction. Exactly one of Text and
// Diagnostic is set.
type Result struct {
	JobID      string
	Kind       Kind
	Class      string
	Text       string
	Diagnostic string
	Err        error
	Duration   time.Duration
}

// Succeeded reports whether the extraction produced text.
func (r Result) Succeeded() bool { return r.Err == nil }

type queued struct {
	job jobs.Job
	req Request
}

// Service runs extractions synchronously through Run or on a bounded worker
// pool through Submit. Every extraction is recorded in the job store.
type Service struct {
	runner toolchain.Runner
	jobs   *jobs.Store
	logger *zap.Logger

	base  context.Context
	stop  context.CancelFunc
	queue chan queued
	g     *errgroup.Group

	mu     sync.Mutex
	closed bool
}

// NewService starts workers goroutines consuming submitted extractions.
func NewService(runner toolchain.Runner, store *jobs.Store, logger *zap.Logger, workers int) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = config.Defaults().Workers
	}
	base, stop := context.WithCancel(context.Background())
	s := &Service{
		runner: runner,
		jobs:   store,
		logger: logger.Named("extract"),
		base:   base,
		stop:   stop,
		queue:  make(chan queued, workers*4),
		g:      new(errgroup.Group),
	}
	for range workers {
		s.g.Go(s.worker)
	}
	return s
}

// Run performs req and blocks until it finishes.
func (s *Service) Run(ctx context.Context, req Request) Result {
	job := s.jobs.Create(string(req.Kind), req.Class)
	return s.process(ctx, job, req)
}

// Submit queues req and returns its idle job. The result is published in the
// job store; use Wait or jobs.Store.Get to collect it.
func (s *Service) Submit(req Request) (jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return jobs.Job{}, ErrClosed
	}

	job := s.jobs.Create(string(req.Kind), req.Class)
	select {
	case s.queue <- queued{job: job, req: req}:
		return job, nil
	default:
		_ = s.jobs.Fail(job.ID, ErrQueueFull.Error())
		return jobs.Job{}, ErrQueueFull
	}
}

// Wait blocks until the job id is terminal.
func (s *Service) Wait(ctx context.Context, id string) (jobs.Job, error) {
	return s.jobs.Wait(ctx, id)
}

// Close stops accepting work, cancels queued and running extractions, and
// waits for the workers to exit.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.stop()
	return s.g.Wait()
}

func (s *Service) worker() error {
	for q := range s.queue {
		s.process(s.base, q.job, q.req)
	}
	return nil
}

func (s *Service) process(ctx context.Context, job jobs.Job, req Request) Result {
	start := time.Now()
	res := Result{JobID: job.ID, Kind: req.Kind, Class: req.Class}
	if err := s.jobs.Start(job.ID); err != nil {
		res.Err = diag.New(diag.KindInternal, "extract", err)
	} else {
		res.Text, res.Err = s.execute(ctx, req)
	}
	res.Duration = time.Since(start)

	fields := []zap.Field{
		zap.String("job", job.ID),
		zap.String("kind", string(req.Kind)),
		zap.String("class", req.Class),
		zap.Duration("duration", res.Duration),
	}
	if res.Err != nil {
		res.Text = ""
		res.Diagnostic = diag.Diagnostic(res.Err)
		_ = s.jobs.Fail(job.ID, res.Diagnostic)
		s.logger.Warn("extraction failed", append(fields, zap.String("error_kind", string(diag.KindOf(res.Err))), zap.Error(res.Err))...)
		return res
	}
	_ = s.jobs.Succeed(job.ID, res.Text)
	s.logger.Info("extraction finished", fields...)
	return res
}

func (s *Service) execute(ctx context.Context, req Request) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", diag.PanicError(string(req.Kind), r)
		}
	}()

	settings := req.Settings.WithDefaults()
	if err := settings.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", diag.Canceled(string(req.Kind), err)
	}

	switch req.Kind {
	case KindDisassemble:
		return s.Disassemble(ctx, settings, req.Class)
	case KindDecompile:
		return s.Decompile(ctx, settings, req.Class)
	case KindSmali:
		return s.ExtractSmali(ctx, settings, req.Class)
	}
	_, err = ParseKind(string(req.Kind))
	return "", err
}
