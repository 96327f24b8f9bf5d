// Package progress потребляет события пакета запусков: держит таблицу активных
// запусков, периодически пишет сводку в лог и пересылает события в шину.
package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/annel0/minesim/internal/eventbus"
	"github.com/annel0/minesim/internal/logging"
	"github.com/annel0/minesim/internal/simulation"
)

// RunState - состояние активного запуска
type RunState struct {
	ID        uint32    `json:"id"`
	Technique string    `json:"technique"`
	File      string    `json:"file"`
	Y         int       `json:"y"`
	Phase     string    `json:"phase"`
	Mined     uint32    `json:"mined"`
	Exposed   uint32    `json:"exposed"`
	Lava      uint32    `json:"lava"`
	OreCount  uint32    `json:"ore_count"`
	StartedAt time.Time `json:"started_at"`
}

// Snapshot - копия состояния трекера на момент вызова
type Snapshot struct {
	BatchID   string     `json:"batch_id,omitempty"`
	Active    []RunState `json:"active"`
	Started   int        `json:"started"`
	Completed int        `json:"completed"`
	Failed    int        `json:"failed"`
	Running   bool       `json:"running"`
}

// Tracker - единственный потребитель событий пакета
type Tracker struct {
	mu        sync.RWMutex
	batchID   string
	runs      map[uint32]*RunState
	started   int
	completed int
	failed    int
	running   bool

	bus       eventbus.EventBus
	source    string
	observers []func(simulation.Event)
	interval  time.Duration
	log       *logging.Logger
}

// Option настраивает Tracker
type Option func(*Tracker)

// WithBus включает пересылку событий в шину
func WithBus(bus eventbus.EventBus, source string) Option {
	return func(t *Tracker) {
		t.bus = bus
		t.source = source
	}
}

// WithObserver добавляет функцию, которая видит каждое событие после учёта в трекере
func WithObserver(fn func(simulation.Event)) Option {
	return func(t *Tracker) { t.observers = append(t.observers, fn) }
}

// WithInterval задаёт период сводки в логе
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// WithLogger задаёт логгер сводок
func WithLogger(l *logging.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// NewTracker создаёт трекер
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		runs:     make(map[uint32]*RunState),
		interval: 2 * time.Second,
		source:   "minesim",
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logging.Default()
	}
	return t
}

// Consume вычитывает события пакета до его завершения и возвращает итог.
// Между событиями раз в interval пишет в лог сводку по активным запускам.
func (t *Tracker) Consume(ctx context.Context, b *simulation.Batch) (simulation.Summary, error) {
	t.reset(b.ID)

	var fwd *eventbus.Forwarder
	if t.bus != nil {
		fwd = eventbus.NewForwarder(t.bus, t.source, b.ID)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	events := b.Events()
	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			t.Apply(ev)
			for _, fn := range t.observers {
				fn(ev)
			}
			if fwd != nil {
				if err := fwd.Forward(ctx, ev); err != nil {
					t.log.Warn("⚠️ Событие запуска %d не отправлено в шину: %v", ev.RunID(), err)
				}
			}
		case <-ticker.C:
			t.report()
		}
	}

	summary, err := b.Wait()

	t.mu.Lock()
	t.running = false
	t.mu.Unlock()

	if fwd != nil {
		if ferr := fwd.BatchFinished(ctx, summary, err); ferr != nil {
			t.log.Warn("⚠️ Итог пакета %s не отправлен в шину: %v", b.ID, ferr)
		}
	}
	return summary, err
}

func (t *Tracker) reset(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batchID = batchID
	t.runs = make(map[uint32]*RunState)
	t.started, t.completed, t.failed = 0, 0, 0
	t.running = true
}

// Apply учитывает одно событие. Updated и Finished без предшествующего Started игнорируются.
func (t *Tracker) Apply(ev simulation.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case simulation.Started:
		t.started++
		t.runs[e.ID] = &RunState{
			ID:        e.ID,
			Technique: e.Task(),
			File:      e.File,
			Y:         e.Y,
			Phase:     "Starting",
			StartedAt: e.At,
		}
	case simulation.Updated:
		if run, ok := t.runs[e.ID]; ok {
			run.Phase = string(e.Phase)
			run.Mined, run.Exposed, run.Lava, run.OreCount = e.Mined, e.Exposed, e.Lava, e.OreCount
		}
	case simulation.Finished:
		run, ok := t.runs[e.ID]
		if !ok {
			return
		}
		delete(t.runs, e.ID)
		if e.Err != nil {
			t.failed++
			t.log.Warn("❌ Запуск %d (%s %s y=%d) провалился: %v", e.ID, run.File, run.Technique, run.Y, e.Err)
			return
		}
		t.completed++
		if run.Technique == simulation.ChunkTask {
			t.log.Debug("✅ Запуск %d: чанки %s проанализированы за %s", e.ID, run.File, e.Elapsed)
			return
		}
		t.log.Debug("✅ Запуск %d (%s %s y=%d): добыто %d, открыто %d, лава %d за %s",
			e.ID, run.File, run.Technique, run.Y, e.Row.Mined, e.Row.Exposed, e.Row.Lava, e.Elapsed)
	}
}

// Snapshot возвращает копию текущего состояния; активные запуски отсортированы по ID
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Snapshot{
		BatchID:   t.batchID,
		Active:    make([]RunState, 0, len(t.runs)),
		Started:   t.started,
		Completed: t.completed,
		Failed:    t.failed,
		Running:   t.running,
	}
	for _, run := range t.runs {
		s.Active = append(s.Active, *run)
	}
	sort.Slice(s.Active, func(i, j int) bool { return s.Active[i].ID < s.Active[j].ID })
	return s
}

func (t *Tracker) report() {
	s := t.Snapshot()
	t.log.Info("⏳ Активных запусков: %d, завершено: %d, ошибок: %d", len(s.Active), s.Completed, s.Failed)
	for _, run := range s.Active {
		t.log.Debug("   #%d %s %s y=%d: %s (добыто %d, открыто %d, лава %d, руда %d)",
			run.ID, run.File, run.Technique, run.Y, run.Phase, run.Mined, run.Exposed, run.Lava, run.OreCount)
	}
}
