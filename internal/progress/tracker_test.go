package progress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/minesim/internal/classify"
	"github.com/annel0/minesim/internal/eventbus"
	"github.com/annel0/minesim/internal/logging"
	"github.com/annel0/minesim/internal/mining"
	"github.com/annel0/minesim/internal/results"
	"github.com/annel0/minesim/internal/simulation"
	"github.com/annel0/minesim/internal/vec"
	"github.com/annel0/minesim/internal/world"
)

type regionMap map[string]*world.Region

func (m regionMap) List() ([]string, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return names, nil
}

func (m regionMap) Open(name string) (*world.Region, error) {
	r, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, world.ErrChunkMissing)
	}
	return r, nil
}

func testRegion() *world.Region {
	g := world.NewGenerator(3)
	g.Height = 64
	r := world.NewRegion(0, 0, g.MinY, g.Height)
	for cz := 0; cz < 2; cz++ {
		for cx := 0; cx < 2; cx++ {
			_ = r.SetChunk(g.GenerateChunk(cx, cz))
		}
	}
	return r
}

func testOrchestrator(t *testing.T, regions regionMap) *simulation.Orchestrator {
	t.Helper()
	table := classify.NewTable(map[world.BlockID]string{world.DiamondOre: classify.Diamonds})
	settings := simulation.Settings{
		Direction: vec.South,
		StartX:    16,
		StartZ:    16,
		Patterns: map[mining.Technique]mining.Pattern{
			mining.Branch:         mining.BranchPattern{Pairs: 1, Length: 4, Spacing: 3},
			mining.BranchWithPoke: mining.PokePattern{Pairs: 1, PokesPerBranch: 1, PokeSpacing: 2, BranchSpacing: 6, PokeDepth: 2},
		},
	}
	sinks := results.Dir{MiningDir: t.TempDir(), ChunkDir: t.TempDir()}
	return simulation.NewOrchestrator(regions, sinks, simulation.NewDriver(table), table, settings, nil)
}

func quietLogger() (*logging.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logging.NewWriterLogger("progress", &syncWriter{w: &buf}, logging.DEBUG), &buf
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func TestApplyTracksRuns(t *testing.T) {
	log, _ := quietLogger()
	tr := NewTracker(WithLogger(log))

	tr.Apply(simulation.Started{ID: 2, Technique: mining.Branch, File: "r.0.0.rgn", Y: -10, At: time.Now()})
	tr.Apply(simulation.Started{ID: 1, Technique: mining.BranchWithPoke, File: "r.0.0.rgn", Y: -11})
	tr.Apply(simulation.Updated{ID: 2, Phase: simulation.PhaseExpanding, Mined: 40, Exposed: 90, Lava: 1, OreCount: 2})

	s := tr.Snapshot()
	require.Len(t, s.Active, 2)
	assert.Equal(t, uint32(1), s.Active[0].ID)
	assert.Equal(t, "Expanding Ores", s.Active[1].Phase)
	assert.Equal(t, uint32(40), s.Active[1].Mined)
	assert.Equal(t, uint32(90), s.Active[1].Exposed)
	assert.Equal(t, uint32(1), s.Active[1].Lava)
	assert.Equal(t, uint32(2), s.Active[1].OreCount)
	assert.Equal(t, 2, s.Started)

	tr.Apply(simulation.Finished{ID: 2})
	tr.Apply(simulation.Finished{ID: 1, Err: errors.New("boom")})
	tr.Apply(simulation.Finished{ID: 99}) // неизвестный запуск

	s = tr.Snapshot()
	assert.Empty(t, s.Active)
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 1, s.Failed)
}

func TestApplyChunkRun(t *testing.T) {
	log, buf := quietLogger()
	tr := NewTracker(WithLogger(log))

	tr.Apply(simulation.Started{ID: 5, Chunks: true, File: "r.1.1.rgn", Y: -64})
	tr.Apply(simulation.Updated{ID: 5, Phase: simulation.PhaseChunks})

	s := tr.Snapshot()
	require.Len(t, s.Active, 1)
	assert.Equal(t, "chunks", s.Active[0].Technique)
	assert.Equal(t, "Processing Chunks", s.Active[0].Phase)

	tr.Apply(simulation.Finished{ID: 5, Elapsed: time.Second})
	assert.Equal(t, 1, tr.Snapshot().Completed)
	assert.Contains(t, buf.String(), "чанки r.1.1.rgn проанализированы")
}

func TestConsumeBatch(t *testing.T) {
	log, _ := quietLogger()
	bus := eventbus.NewMemoryBus(1024)
	var mu sync.Mutex
	counts := map[string]int{}
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{}, func(_ context.Context, ev *eventbus.Envelope) {
		mu.Lock()
		counts[ev.EventType]++
		mu.Unlock()
	})
	require.NoError(t, err)

	tr := NewTracker(WithLogger(log), WithBus(bus, "test"), WithInterval(time.Millisecond))
	o := testOrchestrator(t, regionMap{"r.0.0.rgn": testRegion()})

	batch, err := o.Start(context.Background(), simulation.Range{Technique: mining.Branch, File: "r.0.0.rgn", YMin: -40, YMax: -36})
	require.NoError(t, err)

	summary, err := tr.Consume(context.Background(), batch)
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	assert.Equal(t, 4, summary.Runs)
	s := tr.Snapshot()
	assert.Equal(t, batch.ID, s.BatchID)
	assert.False(t, s.Running)
	assert.Equal(t, 4, s.Started)
	assert.Equal(t, 4, s.Completed)
	assert.Empty(t, s.Active)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 4, counts[eventbus.TypeRunStarted])
	assert.Equal(t, 4, counts[eventbus.TypeRunFinished])
	assert.Equal(t, 1, counts[eventbus.TypeBatchFinished])
}

func TestObserverSeesEvents(t *testing.T) {
	log, _ := quietLogger()
	var finished []simulation.Finished
	tr := NewTracker(WithLogger(log), WithObserver(func(ev simulation.Event) {
		if f, ok := ev.(simulation.Finished); ok {
			finished = append(finished, f)
		}
	}))
	o := testOrchestrator(t, regionMap{"r.0.0.rgn": testRegion()})

	batch, err := o.Start(context.Background(), simulation.Single{Technique: mining.BranchWithPoke, File: "r.0.0.rgn", Y: -30})
	require.NoError(t, err)
	_, err = tr.Consume(context.Background(), batch)
	require.NoError(t, err)

	require.Len(t, finished, 1)
	assert.Equal(t, -30, finished[0].Row.Y)
	assert.NoError(t, finished[0].Err)
	mined, _ := mining.Expected(mining.PokePattern{Pairs: 1, PokesPerBranch: 1, PokeSpacing: 2, BranchSpacing: 6, PokeDepth: 2})
	assert.GreaterOrEqual(t, finished[0].Row.Mined, mined, "жилы только добавляют к добытому")
}

func TestConsumeReportsFailures(t *testing.T) {
	log, _ := quietLogger()
	tr := NewTracker(WithLogger(log))

	// В регионе есть только чанк (0,0), а старт схемы лежит в чанке (1,1)
	full := testRegion()
	sparse := world.NewRegion(0, 0, full.MinY, full.Height)
	c, err := full.Chunk(0, 0)
	require.NoError(t, err)
	require.NoError(t, sparse.SetChunk(c))
	o := testOrchestrator(t, regionMap{"r.0.0.rgn": sparse})

	batch, err := o.Start(context.Background(), simulation.Techniques{
		Techniques: []mining.Technique{mining.Branch}, YMin: -40, YMax: -38, Threads: 1,
	})
	require.NoError(t, err)

	_, err = tr.Consume(context.Background(), batch)
	var runErrs simulation.RunErrors
	require.ErrorAs(t, err, &runErrs)
	assert.Len(t, runErrs, 2)
	assert.ErrorIs(t, err, world.ErrChunkMissing)

	s := tr.Snapshot()
	assert.Equal(t, 2, s.Started)
	assert.Equal(t, 2, s.Failed)
	assert.Zero(t, s.Completed)
}
