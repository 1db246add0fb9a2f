package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"detectorx-worker-go/internal/logging"
	"detectorx-worker-go/internal/models"
	"detectorx-worker-go/internal/services/streamcapture"
)

var (
	ErrNotFound   = errors.New("monitor not found")
	ErrLimit      = errors.New("maximum number of running monitors reached")
	ErrNotRunning = errors.New("monitor is not running")
)

// Deps are the collaborators shared by every monitor
type Deps struct {
	Detector  Detector
	Enhancer  Enhancer
	Processor Processor
	Logger    zerolog.Logger
}

// Manager owns the set of running and finished monitors
type Manager struct {
	deps        Deps
	maxMonitors int

	monitors map[string]*Monitor
	mutex    sync.RWMutex

	observers []Observer
	onFinish  []func(models.MonitorStatus)
	obsMutex  sync.RWMutex

	wg sync.WaitGroup
}

// Monitor is one frame loop bound to one source
type Monitor struct {
	status  models.MonitorStatus
	mu      sync.RWMutex
	cancel  context.CancelFunc
	done    chan struct{}
	cleanup func()
}

func NewManager(deps Deps, maxMonitors int) *Manager {
	deps.Logger.Info().Int("max_monitors", maxMonitors).Msg("Monitor manager initialized")
	return &Manager{
		deps:        deps,
		maxMonitors: maxMonitors,
		monitors:    make(map[string]*Monitor),
	}
}

// AddObserver registers an observer for the frames of every monitor
func (m *Manager) AddObserver(o Observer) {
	m.obsMutex.Lock()
	m.observers = append(m.observers, o)
	m.obsMutex.Unlock()
}

// OnFinish registers a hook run after any monitor has finished
func (m *Manager) OnFinish(fn func(models.MonitorStatus)) {
	m.obsMutex.Lock()
	m.onFinish = append(m.onFinish, fn)
	m.obsMutex.Unlock()
}

func (m *Manager) ObserveFrame(report models.FrameReport) {
	m.obsMutex.RLock()
	observers := m.observers
	m.obsMutex.RUnlock()
	for _, o := range observers {
		o.ObserveFrame(report)
	}
}

// Start launches a monitor on src in the background. The manager takes ownership of src
// and runs cleanup, if any, once the loop has finished and the source is closed.
func (m *Manager) Start(src streamcapture.Source, settings models.MonitorSettings, cleanup func()) (models.MonitorStatus, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if running := m.runningLocked(); m.maxMonitors > 0 && running >= m.maxMonitors {
		return models.MonitorStatus{}, fmt.Errorf("%w (%d)", ErrLimit, m.maxMonitors)
	}

	id := uuid.NewString()
	if settings.SourceDescription == "" {
		settings.SourceDescription = src.Describe()
	}

	ctx, cancel := context.WithCancel(context.Background())
	mon := &Monitor{
		status: models.MonitorStatus{
			ID:           id,
			Kind:         src.Kind(),
			Source:       settings.SourceDescription,
			State:        models.MonitorStateRunning,
			Settings:     settings,
			StartedAt:    time.Now(),
			LastLabels:   []string{},
			StreamURL:    fmt.Sprintf("/monitors/%s/stream", id),
			WebSocketURL: fmt.Sprintf("/ws/monitors/%s", id),
		},
		cancel:  cancel,
		done:    make(chan struct{}),
		cleanup: cleanup,
	}
	m.monitors[id] = mon

	logger := logging.WithMonitor(m.deps.Logger, id)
	loop := &Loop{
		ID:           id,
		Source:       src,
		Settings:     settings,
		Detector:     m.deps.Detector,
		Enhancer:     m.deps.Enhancer,
		Processor:    m.deps.Processor,
		Observers:    []Observer{ObserverFunc(mon.record), m},
		RenderFrames: true,
		Logger:       logger,
	}

	m.wg.Add(1)
	go m.run(ctx, mon, loop, logger)

	logger.Info().
		Str("kind", src.Kind().String()).
		Str("source", settings.SourceDescription).
		Str("location", settings.LocationName).
		Dur("cooldown", settings.Cooldown).
		Bool("clahe", settings.EnhanceContrast).
		Msg("Monitor started")

	return mon.snapshot(), nil
}

func (m *Manager) run(ctx context.Context, mon *Monitor, loop *Loop, logger zerolog.Logger) {
	defer m.wg.Done()
	defer close(mon.done)

	var runErr error
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Monitor loop panic recovered")
			runErr = fmt.Errorf("monitor panic: %v", r)
		}
		if err := loop.Source.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close source")
		}
		if mon.cleanup != nil {
			mon.cleanup()
		}
		mon.finish(runErr)
		final := mon.snapshot()
		logger.Info().
			Str("state", string(final.State)).
			Int64("frames", final.FramesRead).
			Int64("alerts", final.AlertsSent).
			Msg("Monitor finished")

		m.obsMutex.RLock()
		hooks := m.onFinish
		m.obsMutex.RUnlock()
		for _, fn := range hooks {
			fn(final)
		}
	}()

	runErr = loop.Run(ctx)
}

func (mon *Monitor) record(report models.FrameReport) {
	dispatched := lo.CountBy(report.Signals, func(s models.Signal) bool {
		return s.Kind == models.SignalDispatched
	})

	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.status.FramesRead++
	mon.status.AlertsSent += int64(dispatched)
	mon.status.LastLabels = report.Labels
	at := report.ProcessedAt
	mon.status.LastFrameAt = &at
}

func (mon *Monitor) finish(err error) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	now := time.Now()
	mon.status.FinishedAt = &now
	if err != nil {
		mon.status.State = models.MonitorStateFailed
		mon.status.Error = err.Error()
		return
	}
	mon.status.State = models.MonitorStateFinished
}

func (mon *Monitor) snapshot() models.MonitorStatus {
	mon.mu.RLock()
	defer mon.mu.RUnlock()
	s := mon.status
	s.LastLabels = append([]string{}, mon.status.LastLabels...)
	return s
}

func (mon *Monitor) isActive() bool {
	mon.mu.RLock()
	defer mon.mu.RUnlock()
	return mon.status.State == models.MonitorStateRunning || mon.status.State == models.MonitorStateStopping
}

func (m *Manager) runningLocked() int {
	return len(lo.Filter(lo.Values(m.monitors), func(mon *Monitor, _ int) bool {
		return mon.isActive()
	}))
}

// Stop requests a monitor to stop. The request takes effect at the next frame boundary.
func (m *Manager) Stop(id string) (models.MonitorStatus, error) {
	m.mutex.RLock()
	mon, ok := m.monitors[id]
	m.mutex.RUnlock()
	if !ok {
		return models.MonitorStatus{}, ErrNotFound
	}

	mon.mu.Lock()
	if mon.status.State != models.MonitorStateRunning {
		mon.mu.Unlock()
		return mon.snapshot(), ErrNotRunning
	}
	mon.status.State = models.MonitorStateStopping
	mon.mu.Unlock()

	mon.cancel()
	log.Info().Str("monitor_id", id).Msg("Monitor stop requested")
	return mon.snapshot(), nil
}

// Wait blocks until the monitor has finished or ctx is done
func (m *Manager) Wait(ctx context.Context, id string) (models.MonitorStatus, error) {
	m.mutex.RLock()
	mon, ok := m.monitors[id]
	m.mutex.RUnlock()
	if !ok {
		return models.MonitorStatus{}, ErrNotFound
	}
	select {
	case <-mon.done:
		return mon.snapshot(), nil
	case <-ctx.Done():
		return mon.snapshot(), ctx.Err()
	}
}

func (m *Manager) Get(id string) (models.MonitorStatus, error) {
	m.mutex.RLock()
	mon, ok := m.monitors[id]
	m.mutex.RUnlock()
	if !ok {
		return models.MonitorStatus{}, ErrNotFound
	}
	return mon.snapshot(), nil
}

// List returns every known monitor, newest first
func (m *Manager) List() []models.MonitorStatus {
	m.mutex.RLock()
	statuses := lo.Map(lo.Values(m.monitors), func(mon *Monitor, _ int) models.MonitorStatus {
		return mon.snapshot()
	})
	m.mutex.RUnlock()

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].StartedAt.After(statuses[j].StartedAt)
	})
	return statuses
}

// Exists reports whether id names a known monitor
func (m *Manager) Exists(id string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.monitors[id]
	return ok
}

// ProcessImage runs a single still image through the pipeline synchronously
func (m *Manager) ProcessImage(ctx context.Context, src streamcapture.Source, settings models.MonitorSettings, render bool) (models.FrameReport, error) {
	defer src.Close()

	if settings.SourceDescription == "" {
		settings.SourceDescription = src.Describe()
	}
	id := uuid.NewString()
	var report models.FrameReport
	loop := &Loop{
		ID:           id,
		Source:       src,
		Settings:     settings,
		Detector:     m.deps.Detector,
		Enhancer:     m.deps.Enhancer,
		Processor:    m.deps.Processor,
		Observers:    []Observer{ObserverFunc(func(r models.FrameReport) { report = r })},
		RenderFrames: render,
		Logger:       logging.WithMonitor(m.deps.Logger, id),
	}
	if err := loop.Run(ctx); err != nil {
		return models.FrameReport{}, err
	}
	if report.MonitorID == "" {
		return models.FrameReport{}, fmt.Errorf("image source %q produced no frame", src.Describe())
	}
	return report, nil
}

// Shutdown stops every running monitor and waits for them to finish
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mutex.RLock()
	ids := lo.Keys(m.monitors)
	m.mutex.RUnlock()

	for _, id := range ids {
		if _, err := m.Stop(id); err != nil && !errors.Is(err, ErrNotRunning) {
			log.Warn().Err(err).Str("monitor_id", id).Msg("Failed to stop monitor")
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Int("monitors", len(ids)).Msg("Monitor manager shutdown complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("monitor shutdown: %w", ctx.Err())
	}
}
