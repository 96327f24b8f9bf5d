package simulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/minesim/internal/classify"
	"github.com/annel0/minesim/internal/logging"
	"github.com/annel0/minesim/internal/mining"
	"github.com/annel0/minesim/internal/vec"
	"github.com/annel0/minesim/internal/world"
	"github.com/google/uuid"
)

// RegionSource перечисляет и загружает снимки регионов
type RegionSource interface {
	List() ([]string, error)
	Open(name string) (*world.Region, error)
}

// RowSink принимает строки результатов одного (файл, схема) в порядке возрастания y
type RowSink interface {
	WriteRow(row ResultRow) error
	Close() error
}

// ChunkSink принимает строки анализа чанков одного файла
type ChunkSink interface {
	WriteChunkRow(row ChunkRow) error
	Close() error
}

// SinkFactory открывает приёмники результатов
type SinkFactory interface {
	RunSink(file string, technique mining.Technique) (RowSink, error)
	ChunkSink(file string) (ChunkSink, error)
}

// Settings - параметры запуска схем
type Settings struct {
	Direction vec.Direction
	StartX    int // Смещение точки старта от угла региона
	StartZ    int
	Patterns  map[mining.Technique]mining.Pattern
}

// DefaultSettings - старт в (255, y, 255) относительно угла региона, коридор на юг
func DefaultSettings() Settings {
	return Settings{
		Direction: vec.South,
		StartX:    255,
		StartZ:    255,
		Patterns: map[mining.Technique]mining.Pattern{
			mining.Branch:         mining.DefaultBranchPattern(),
			mining.BranchWithPoke: mining.DefaultPokePattern(),
		},
	}
}

// Request - форма запроса к оркестратору: Single, Range, Techniques или Chunks
type Request interface {
	isRequest()
}

// Single - одна схема, один файл, одна высота
type Single struct {
	Technique mining.Technique
	File      string
	Y         int
}

// Range - одна схема, один файл, высоты [YMin, YMax)
type Range struct {
	Technique mining.Technique
	File      string
	YMin      int
	YMax      int
}

// Techniques - перечисленные схемы по всем файлам регионов, высоты [YMin, YMax)
type Techniques struct {
	Techniques []mining.Technique
	YMin       int
	YMax       int
	Threads    int
}

// Chunks - послойный анализ всех чанков всех регионов, высоты [YMin, YMax)
type Chunks struct {
	YMin    int
	YMax    int
	Threads int
}

func (Single) isRequest()     {}
func (Range) isRequest()      {}
func (Techniques) isRequest() {}
func (Chunks) isRequest()     {}

// task - единица работы пула: все высоты одной пары (файл, схема) или анализ одного файла
type task struct {
	file      string
	technique mining.Technique
	chunks    bool
	yMin      int
	yMax      int
}

// Summary - итог пакета запусков
type Summary struct {
	BatchID string
	Tasks   int
	Runs    int
	Failed  int
	Rows    int
	Elapsed time.Duration
}

// Orchestrator раскладывает запросы на задачи и выполняет их фиксированным пулом воркеров
type Orchestrator struct {
	regions  RegionSource
	sinks    SinkFactory
	driver   *Driver
	table    *classify.Table
	settings Settings
	metrics  *Metrics

	nextRunID atomic.Uint32
}

// NewOrchestrator создаёт оркестратор
func NewOrchestrator(regions RegionSource, sinks SinkFactory, driver *Driver, table *classify.Table, settings Settings, metrics *Metrics) *Orchestrator {
	return &Orchestrator{
		regions:  regions,
		sinks:    sinks,
		driver:   driver,
		table:    table,
		settings: settings,
		metrics:  metrics,
	}
}

// Pattern возвращает параметры схемы из настроек
func (o *Orchestrator) Pattern(t mining.Technique) (mining.Pattern, error) {
	p, ok := o.settings.Patterns[t]
	if !ok {
		return nil, fmt.Errorf("%w: no parameters for technique %s", ErrInvalidRequest, t)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// plan проверяет запрос и раскладывает его на задачи. Ошибки здесь возвращаются до начала работы.
func (o *Orchestrator) plan(req Request) ([]task, int, error) {
	switch r := req.(type) {
	case Single:
		return o.plan(Range{Technique: r.Technique, File: r.File, YMin: r.Y, YMax: r.Y + 1})

	case Range:
		if r.YMin >= r.YMax {
			return nil, 0, invalidRequest("y_min %d must be below y_max %d", r.YMin, r.YMax)
		}
		if _, err := o.Pattern(r.Technique); err != nil {
			return nil, 0, err
		}
		files, err := o.files()
		if err != nil {
			return nil, 0, err
		}
		if !contains(files, r.File) {
			return nil, 0, invalidRequest("region file %q not found", r.File)
		}
		return []task{{file: r.File, technique: r.Technique, yMin: r.YMin, yMax: r.YMax}}, 1, nil

	case Techniques:
		if r.YMin >= r.YMax {
			return nil, 0, invalidRequest("y_min %d must be below y_max %d", r.YMin, r.YMax)
		}
		if r.Threads < 1 {
			return nil, 0, invalidRequest("thread count %d must be at least 1", r.Threads)
		}
		if len(r.Techniques) == 0 {
			return nil, 0, invalidRequest("no techniques requested")
		}
		for _, t := range r.Techniques {
			if _, err := o.Pattern(t); err != nil {
				return nil, 0, err
			}
		}
		files, err := o.files()
		if err != nil {
			return nil, 0, err
		}
		var tasks []task
		for _, f := range files {
			for _, t := range r.Techniques {
				tasks = append(tasks, task{file: f, technique: t, yMin: r.YMin, yMax: r.YMax})
			}
		}
		return tasks, r.Threads, nil

	case Chunks:
		if r.YMin >= r.YMax {
			return nil, 0, invalidRequest("y_min %d must be below y_max %d", r.YMin, r.YMax)
		}
		if r.Threads < 1 {
			return nil, 0, invalidRequest("thread count %d must be at least 1", r.Threads)
		}
		files, err := o.files()
		if err != nil {
			return nil, 0, err
		}
		tasks := make([]task, 0, len(files))
		for _, f := range files {
			tasks = append(tasks, task{file: f, chunks: true, yMin: r.YMin, yMax: r.YMax})
		}
		return tasks, r.Threads, nil
	}
	return nil, 0, invalidRequest("unsupported request %T", req)
}

func (o *Orchestrator) files() ([]string, error) {
	files, err := o.regions.List()
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoRegions
	}
	sort.Strings(files)
	return files, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Start проверяет запрос и запускает пул. Возвращает ошибку, если запрос
// неверен; в этом случае ни одна задача не запускается.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*Batch, error) {
	tasks, threads, err := o.plan(req)
	if err != nil {
		return nil, err
	}

	b := &Batch{
		ID:      uuid.NewString(),
		o:       o,
		queue:   NewEventQueue(),
		done:    make(chan struct{}),
		jobs:    make(chan task, len(tasks)),
		regions: newRegionCache(o.regions, tasks),
		began:   time.Now(),
	}
	b.summary.BatchID = b.ID
	b.summary.Tasks = len(tasks)

	// Канал вмещает все задачи, отправка не блокирует
	for _, t := range tasks {
		b.jobs <- t
	}
	close(b.jobs)
	b.pending.Store(int64(len(tasks)))
	o.metrics.setQueued(len(tasks))

	logging.Info("🚀 Пакет %s: %d задач(и), %d воркер(ов)", b.ID, len(tasks), threads)

	for i := 0; i < threads; i++ {
		b.wg.Add(1)
		go b.worker(ctx, i)
	}
	go func() {
		b.wg.Wait()
		b.summary.Elapsed = time.Since(b.began)
		close(b.done)
		b.queue.Close()
		logging.Info("🏁 Пакет %s завершён за %s: запусков %d, ошибок %d", b.ID, b.summary.Elapsed.Round(time.Millisecond), b.summary.Runs, b.summary.Failed)
	}()
	return b, nil
}

// Run запускает запрос и ждёт завершения, отдавая события в sink
func (o *Orchestrator) Run(ctx context.Context, req Request, sink EventSink) (Summary, error) {
	b, err := o.Start(ctx, req)
	if err != nil {
		return Summary{}, err
	}
	if sink == nil {
		sink = Discard
	}
	for ev := range b.Events() {
		sink.Emit(ev)
	}
	return b.Wait()
}

// Batch - выполняющийся пакет задач
type Batch struct {
	ID string

	o       *Orchestrator
	queue   *EventQueue
	done    chan struct{}
	jobs    chan task
	regions *regionCache
	wg      sync.WaitGroup
	began   time.Time
	pending atomic.Int64

	mu      sync.Mutex
	errs    RunErrors
	summary Summary
}

// Events - поток событий всех запусков пакета. Закрывается после Done.
func (b *Batch) Events() <-chan Event {
	return b.queue.Events()
}

// Done закрывается, когда все воркеры завершились
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Wait ждёт завершения и возвращает итог. Ошибка имеет тип RunErrors.
func (b *Batch) Wait() (Summary, error) {
	<-b.done
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.errs) > 0 {
		return b.summary, b.errs
	}
	return b.summary, nil
}

func (b *Batch) fail(err error) {
	var re *RunError
	if !errors.As(err, &re) {
		re = &RunError{Err: err}
	}
	b.mu.Lock()
	b.errs = append(b.errs, re)
	b.summary.Failed++
	b.mu.Unlock()
}

func (b *Batch) count(runs, rows int) {
	b.mu.Lock()
	b.summary.Runs += runs
	b.summary.Rows += rows
	b.mu.Unlock()
}

func (b *Batch) worker(ctx context.Context, id int) {
	defer b.wg.Done()
	for t := range b.jobs {
		b.o.metrics.setQueued(int(b.pending.Add(-1)))
		if t.chunks {
			logging.Debug("🧱 Воркер %d: анализ чанков %s", id, t.file)
			b.runChunks(ctx, t)
		} else {
			logging.Debug("⛏️ Воркер %d: %s/%s y=[%d,%d)", id, t.file, t.technique, t.yMin, t.yMax)
			b.runTechnique(ctx, t)
		}
	}
}

func (b *Batch) runTechnique(ctx context.Context, t task) {
	defer b.regions.release(t.file)
	taskErr := func(err error) {
		b.fail(&RunError{File: t.file, Technique: t.technique.String(), Y: t.yMin, Err: err})
	}

	pattern, err := b.o.Pattern(t.technique)
	if err != nil {
		taskErr(err)
		return
	}
	region, err := b.regions.open(t.file)
	if err != nil {
		taskErr(fmt.Errorf("load region: %w", err))
		return
	}
	sink, err := b.o.sinks.RunSink(t.file, t.technique)
	if err != nil {
		taskErr(fmt.Errorf("open result sink: %w", err))
		return
	}
	defer func() {
		if err := sink.Close(); err != nil {
			taskErr(fmt.Errorf("close result sink: %w", err))
		}
	}()

	origin := region.Origin()
	start := vec.Vec3{X: origin.X + b.o.settings.StartX, Z: origin.Z + b.o.settings.StartZ}

	for y := t.yMin; y < t.yMax; y++ {
		if err := ctx.Err(); err != nil {
			taskErr(fmt.Errorf("cancelled before y=%d: %w", y, err))
			return
		}
		job := Job{
			RunID:     b.o.nextRunID.Add(1),
			File:      t.file,
			Technique: t.technique,
			Pattern:   pattern,
			Direction: b.o.settings.Direction,
			Start:     start,
			Y:         y,
			Source:    world.NewChunkCache(region),
		}
		row, err := b.o.driver.Run(ctx, job, b.queue)
		if err != nil {
			b.count(1, 0)
			b.fail(err)
			continue
		}
		if err := sink.WriteRow(row); err != nil {
			b.count(1, 0)
			b.fail(newRunError(job, fmt.Errorf("write row: %w", err)))
			continue
		}
		b.count(1, 1)
	}
}

// runChunks анализирует все чанки файла как один запуск со своим RunID
func (b *Batch) runChunks(ctx context.Context, t task) {
	defer b.regions.release(t.file)

	id := b.o.nextRunID.Add(1)
	began := time.Now()
	var runErr error
	b.queue.Emit(Started{ID: id, Chunks: true, File: t.file, Y: t.yMin, At: began})
	defer func() {
		b.queue.Emit(Finished{ID: id, Row: ResultRow{Y: t.yMin}, Err: runErr, Elapsed: time.Since(began)})
	}()

	taskErr := func(err error) {
		re := &RunError{RunID: id, File: t.file, Technique: ChunkTask, Y: t.yMin, Err: err}
		if runErr == nil {
			runErr = re
		}
		b.fail(re)
	}

	region, err := b.regions.open(t.file)
	if err != nil {
		taskErr(fmt.Errorf("load region: %w", err))
		b.count(1, 0)
		return
	}
	sink, err := b.o.sinks.ChunkSink(t.file)
	if err != nil {
		taskErr(fmt.Errorf("open chunk sink: %w", err))
		b.count(1, 0)
		return
	}

	rows := 0
	defer func() {
		if err := sink.Close(); err != nil {
			taskErr(fmt.Errorf("close chunk sink: %w", err))
		}
		b.count(1, rows)
	}()

	chunks := region.Chunks()
	b.queue.Emit(Updated{ID: id, Phase: PhaseChunks})
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			taskErr(err)
			return
		}
		for y := t.yMin; y < t.yMax; y++ {
			if err := sink.WriteChunkRow(AnalyzeChunkLayer(c, b.o.table, y)); err != nil {
				taskErr(fmt.Errorf("write chunk row: %w", err))
				return
			}
			rows++
		}
	}
	logging.Info("📊 %s: проанализировано %d чанков", t.file, len(chunks))
}

// regionCache загружает каждый регион один раз на пакет и раздаёт его воркерам только на чтение.
// Регион отпускается, когда завершилась последняя задача его файла.
type regionCache struct {
	src     RegionSource
	mu      sync.Mutex
	entries map[string]*regionEntry
	refs    map[string]int
}

type regionEntry struct {
	once   sync.Once
	region *world.Region
	err    error
}

func newRegionCache(src RegionSource, tasks []task) *regionCache {
	c := &regionCache{
		src:     src,
		entries: make(map[string]*regionEntry),
		refs:    make(map[string]int),
	}
	for _, t := range tasks {
		c.refs[t.file]++
	}
	return c
}

func (c *regionCache) open(name string) (*world.Region, error) {
	c.mu.Lock()
	e, ok := c.entries[name]
	if !ok {
		e = &regionEntry{}
		c.entries[name] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		start := time.Now()
		e.region, e.err = c.src.Open(name)
		if e.err == nil {
			logging.Debug("📦 Регион %s загружен за %s", name, time.Since(start).Round(time.Millisecond))
		}
	})
	return e.region, e.err
}

// release отмечает завершение одной задачи файла name
func (c *regionCache) release(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs[name]--
	if c.refs[name] > 0 {
		return
	}
	delete(c.refs, name)
	if _, ok := c.entries[name]; ok {
		delete(c.entries, name)
		logging.Debug("📦 Регион %s выгружен", name)
	}
}

// loaded возвращает число регионов, которые сейчас держит кэш
func (c *regionCache) loaded() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
