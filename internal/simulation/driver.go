package simulation

import (
	"context"
	"time"

	"github.com/annel0/minesim/internal/classify"
	"github.com/annel0/minesim/internal/logging"
	"github.com/annel0/minesim/internal/mining"
	"github.com/annel0/minesim/internal/vec"
	"github.com/annel0/minesim/internal/world"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/annel0/minesim/internal/simulation"

// Job - один запуск схемы на одной высоте
type Job struct {
	RunID     uint32
	File      string
	Technique mining.Technique
	Pattern   mining.Pattern
	Direction vec.Direction
	Start     vec.Vec3 // Y заменяется на Y задачи
	Y         int
	Source    world.VoxelSource
}

// Driver выполняет одну схему на одной высоте и сводит результат в ResultRow.
// Безопасен для конкурентного использования: таблица классификации только читается.
type Driver struct {
	table   *classify.Table
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// DriverOption настраивает Driver
type DriverOption func(*Driver)

// WithMetrics подключает Prometheus-метрики
func WithMetrics(m *Metrics) DriverOption {
	return func(d *Driver) { d.metrics = m }
}

// WithTracer задаёт трейсер; по умолчанию используется глобальный провайдер otel
func WithTracer(t trace.Tracer) DriverOption {
	return func(d *Driver) { d.tracer = t }
}

// NewDriver создаёт драйвер поверх таблицы классификации
func NewDriver(table *classify.Table, opts ...DriverOption) *Driver {
	d := &Driver{
		table:  table,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run выполняет задачу. События Started и Finished отправляются всегда,
// ошибка возвращается как *RunError и касается только этого запуска.
func (d *Driver) Run(ctx context.Context, job Job, events EventSink) (row ResultRow, err error) {
	if events == nil {
		events = Discard
	}
	began := d.now()
	sampled := 0
	events.Emit(Started{ID: job.RunID, Technique: job.Technique, File: job.File, Y: job.Y, At: began})
	d.metrics.runStarted()

	ctx, span := d.tracer.Start(ctx, "simulation.run", trace.WithAttributes(
		attribute.Int64("run.id", int64(job.RunID)),
		attribute.String("run.file", job.File),
		attribute.String("run.technique", job.Technique.String()),
		attribute.Int("run.y", job.Y),
	))
	defer func() {
		elapsed := d.now().Sub(began)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logging.Warn("⚠️ Запуск %d (%s/%s y=%d) провалился: %v", job.RunID, job.File, job.Technique, job.Y, err)
		}
		span.End()
		d.metrics.runFinished(job.Technique.String(), sampled, row, elapsed, err)
		events.Emit(Finished{ID: job.RunID, Row: row, Err: err, Elapsed: elapsed})
	}()

	row, sampled, err = d.run(ctx, job, events)
	if err != nil {
		return ResultRow{}, newRunError(job, err)
	}
	return row, nil
}

func (d *Driver) run(ctx context.Context, job Job, events EventSink) (ResultRow, int, error) {
	row := ResultRow{Y: job.Y}
	if err := ctx.Err(); err != nil {
		return row, 0, err
	}
	if job.Source == nil {
		return row, 0, invalidRequest("job has no voxel source")
	}

	start := job.Start
	start.Y = job.Y
	out, err := mining.Generate(job.Source, job.Direction, start, job.Pattern)
	if err != nil {
		return row, 0, err
	}
	sampled := len(out.Visited)

	events.Emit(Updated{ID: job.RunID, Phase: PhaseFiltering, Mined: out.Mined, Exposed: out.Exposed})
	visited := mining.Dedupe(out.Visited)
	seen := make(map[vec.Vec3]struct{}, len(visited))
	var seeds []mining.SimpleBlock
	for _, b := range visited {
		seen[b.Pos] = struct{}{}
		switch d.table.Classify(b.ID) {
		case classify.LavaBlock:
			row.Lava++
		case classify.OreBlock:
			seeds = append(seeds, b)
		}
	}

	events.Emit(Updated{
		ID:       job.RunID,
		Phase:    PhaseExpanding,
		Mined:    out.Mined,
		Exposed:  out.Exposed,
		Lava:     row.Lava,
		OreCount: uint32(len(seeds)),
	})
	ores := make(map[vec.Vec3]world.BlockID)
	exposed := make(map[vec.Vec3]struct{})
	for _, seed := range seeds {
		// Повторное расширение из члена уже найденной жилы даст ту же жилу
		if _, done := ores[seed.Pos]; done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return row, sampled, err
		}
		vein, err := mining.Expand(job.Source, d.table, seed)
		if err != nil {
			return row, sampled, err
		}
		for p, id := range vein.Members {
			ores[p] = id
		}
		for p := range vein.Exposed {
			exposed[p] = struct{}{}
		}
	}

	// Руда в выкопанной клетке уже учтена генератором
	var dugSeeds uint32
	for _, seed := range seeds {
		if seed.Dug {
			dugSeeds++
		}
	}
	row.Mined = out.Mined + uint32(len(ores)) - dugSeeds

	var extra uint32
	for p := range exposed {
		if _, ok := seen[p]; ok {
			continue
		}
		if _, ok := ores[p]; ok {
			continue
		}
		extra++
	}
	row.Exposed = out.Exposed + extra

	for _, id := range ores {
		category, ok := d.table.Category(id)
		if !ok {
			continue
		}
		if i, ok := classify.CategoryIndex(category); ok {
			row.Ores[i]++
		}
	}

	events.Emit(Updated{
		ID:       job.RunID,
		Phase:    PhaseCompiling,
		Mined:    row.Mined,
		Exposed:  row.Exposed,
		Lava:     row.Lava,
		OreCount: uint32(len(ores)),
	})
	return row, sampled, nil
}
