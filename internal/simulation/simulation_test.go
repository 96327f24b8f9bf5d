package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/annel0/minesim/internal/classify"
	"github.com/annel0/minesim/internal/mining"
	"github.com/annel0/minesim/internal/vec"
	"github.com/annel0/minesim/internal/world"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() *classify.Table {
	return classify.NewTable(map[world.BlockID]string{
		world.DiamondOre:                         classify.Diamonds,
		world.IronOre:                            classify.Iron,
		world.DeepslateVariant(world.DiamondOre): classify.Diamonds,
		world.DeepslateVariant(world.IronOre):    classify.Iron,
		world.DeepslateVariant(world.CoalOre):    classify.Coal,
		"nether_quartz_ore":                      "quartz",
	})
}

// Схема из одной пары коротких ответвлений: коридор на юг, ответвления на восток и запад
var smallBranch = mining.BranchPattern{Pairs: 1, Length: 3, Spacing: 5}

func smallJob(src world.VoxelSource) Job {
	return Job{
		RunID:     7,
		File:      "r.0.0.rgn",
		Technique: mining.Branch,
		Pattern:   smallBranch,
		Direction: vec.South,
		Start:     vec.Vec3{X: 0, Y: 0, Z: 0},
		Y:         10,
		Source:    src,
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) byRun() map[uint32][]Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uint32][]Event)
	for _, ev := range r.events {
		out[ev.RunID()] = append(out[ev.RunID()], ev)
	}
	return out
}

func TestDriverNoOre(t *testing.T) {
	d := NewDriver(testTable())
	row, err := d.Run(context.Background(), smallJob(world.NewMemoryWorld(world.Stone)), nil)
	require.NoError(t, err)

	mined, exposed := mining.Expected(smallBranch)
	assert.Equal(t, 10, row.Y)
	assert.Equal(t, mined, row.Mined, "без руды счётчики совпадают с генератором")
	assert.Equal(t, exposed, row.Exposed)
	assert.Zero(t, row.Lava)
	assert.Zero(t, row.TotalOre())
}

// Две пары ответвлений длиной 10 через 4 блока на высоте 64
func surfaceJob(src world.VoxelSource) Job {
	return Job{
		RunID:     11,
		File:      "r.0.0.rgn",
		Technique: mining.Branch,
		Pattern:   mining.BranchPattern{Pairs: 2, Length: 10, Spacing: 4},
		Direction: vec.South,
		Start:     vec.Vec3{X: 0, Y: 0, Z: 0},
		Y:         64,
		Source:    src,
	}
}

func TestDriverSurfaceNoOre(t *testing.T) {
	row, err := NewDriver(testTable()).Run(context.Background(), surfaceJob(world.NewMemoryWorld(world.Stone)), nil)
	require.NoError(t, err)

	assert.Equal(t, 64, row.Y)
	for _, c := range classify.Categories {
		assert.Zero(t, row.Ore(c), "категория %s", c)
	}
	assert.Zero(t, row.Lava)
	assert.Equal(t, uint32(90), row.Mined)
	assert.Equal(t, uint32(176), row.Exposed)
	mined, exposed := mining.Expected(surfaceJob(nil).Pattern)
	assert.Equal(t, mined, row.Mined)
	assert.Equal(t, exposed, row.Exposed)
}

func TestDriverSurfaceOneDiamond(t *testing.T) {
	src := world.NewMemoryWorld(world.Stone)
	// Нижний блок первого среза восточного ответвления первой пары
	src.Set(vec.Vec3{X: 1, Y: 64, Z: 0}, world.DiamondOre)

	row, err := NewDriver(testTable()).Run(context.Background(), surfaceJob(src), nil)
	require.NoError(t, err)

	for _, c := range classify.Categories {
		want := uint32(0)
		if c == classify.Diamonds {
			want = 1
		}
		assert.Equal(t, want, row.Ore(c), "категория %s", c)
	}
	assert.Zero(t, row.Lava)
	mined, exposed := mining.Expected(surfaceJob(nil).Pattern)
	assert.Equal(t, mined, row.Mined, "руда на пути уже выкопана генератором")
	assert.Greater(t, row.Exposed, exposed, "раскопка жилы открывает блоки вокруг неё")
}

func TestDriverIsolatedDiamondInWall(t *testing.T) {
	src := world.NewMemoryWorld(world.Stone)
	// Боковая стена первого среза восточного ответвления
	src.Set(vec.Vec3{X: 1, Y: 10, Z: -1}, world.DiamondOre)

	row, err := NewDriver(testTable()).Run(context.Background(), smallJob(src), nil)
	require.NoError(t, err)

	mined, exposed := mining.Expected(smallBranch)
	assert.Equal(t, mined+1, row.Mined, "руда в стене добавляет один выкопанный блок")
	assert.Equal(t, uint32(1), row.Ore(classify.Diamonds))
	assert.Greater(t, row.Exposed, exposed, "раскопка жилы открывает блоки за стеной")
}

func TestDriverDiamondInsideTunnel(t *testing.T) {
	src := world.NewMemoryWorld(world.Stone)
	src.Set(vec.Vec3{X: 1, Y: 10, Z: 0}, world.DiamondOre)

	row, err := NewDriver(testTable()).Run(context.Background(), smallJob(src), nil)
	require.NoError(t, err)

	mined, _ := mining.Expected(smallBranch)
	assert.Equal(t, mined, row.Mined, "руда внутри туннеля уже выкопана генератором")
	assert.Equal(t, uint32(1), row.Ore(classify.Diamonds))
}

func TestDriverVeinCountedOnce(t *testing.T) {
	src := world.NewMemoryWorld(world.Stone)
	src.Set(vec.Vec3{X: 1, Y: 10, Z: -1}, world.DiamondOre)
	src.Set(vec.Vec3{X: 2, Y: 10, Z: -1}, world.DiamondOre)
	src.Set(vec.Vec3{X: 3, Y: 11, Z: -2}, world.IronOre) // за стеной, связан с жилой

	row, err := NewDriver(testTable()).Run(context.Background(), smallJob(src), nil)
	require.NoError(t, err)

	mined, _ := mining.Expected(smallBranch)
	assert.Equal(t, mined+3, row.Mined)
	assert.Equal(t, uint32(2), row.Ore(classify.Diamonds))
	assert.Equal(t, uint32(1), row.Ore(classify.Iron))
}

func TestDriverUncountedCategory(t *testing.T) {
	src := world.NewMemoryWorld(world.Stone)
	src.Set(vec.Vec3{X: 1, Y: 10, Z: -1}, "nether_quartz_ore")

	row, err := NewDriver(testTable()).Run(context.Background(), smallJob(src), nil)
	require.NoError(t, err)
	assert.Zero(t, row.TotalOre(), "категория вне списка не попадает в колонки")
}

func TestDriverLava(t *testing.T) {
	src := world.NewMemoryWorld(world.Stone)
	src.Set(vec.Vec3{X: 1, Y: 9, Z: 0}, world.Lava)        // пол ответвления
	src.Set(vec.Vec3{X: -1, Y: 12, Z: 0}, world.FlowingLava) // потолок западного ответвления

	row, err := NewDriver(testTable()).Run(context.Background(), smallJob(src), nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), row.Lava)
}

func TestDriverEventOrder(t *testing.T) {
	src := world.NewMemoryWorld(world.Stone)
	src.Set(vec.Vec3{X: 1, Y: 9, Z: 0}, world.Lava)         // пол восточного ответвления
	src.Set(vec.Vec3{X: 1, Y: 10, Z: -1}, world.DiamondOre) // стена восточного ответвления
	src.Set(vec.Vec3{X: 1, Y: 10, Z: -2}, world.DiamondOre) // за стеной, та же жила

	rec := &recorder{}
	row, err := NewDriver(testTable()).Run(context.Background(), smallJob(src), rec)
	require.NoError(t, err)

	require.Len(t, rec.events, 5)
	started, ok := rec.events[0].(Started)
	require.True(t, ok, "первым приходит Started")
	assert.Equal(t, uint32(7), started.ID)
	assert.Equal(t, 10, started.Y)
	assert.Equal(t, mining.Branch, started.Technique)

	mined, exposed := mining.Expected(smallBranch)
	want := []Updated{
		{ID: 7, Phase: PhaseFiltering, Mined: mined, Exposed: exposed},
		{ID: 7, Phase: PhaseExpanding, Mined: mined, Exposed: exposed, Lava: 1, OreCount: 1},
		{ID: 7, Phase: PhaseCompiling, Mined: row.Mined, Exposed: row.Exposed, Lava: 1, OreCount: 2},
	}
	for i, w := range want {
		u, ok := rec.events[i+1].(Updated)
		require.True(t, ok)
		assert.Equal(t, w, u)
	}
	assert.Equal(t, mined+2, row.Mined)
	assert.Equal(t, uint32(2), row.Ore(classify.Diamonds))

	fin, ok := rec.events[4].(Finished)
	require.True(t, ok, "последним приходит Finished")
	assert.NoError(t, fin.Err)
	assert.Equal(t, 10, fin.Row.Y)
	assert.Equal(t, row, fin.Row)
}

func TestDriverFailureStillFinishes(t *testing.T) {
	src := world.NewMemoryWorld(world.Stone)
	src.SetBounds(vec.Vec3{X: -2, Z: -2}, vec.Vec3{X: 2, Z: 2})
	rec := &recorder{}

	_, err := NewDriver(testTable()).Run(context.Background(), smallJob(src), rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, world.ErrOutOfBounds))

	var re *RunError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, uint32(7), re.RunID)
	assert.Equal(t, "branch", re.Technique)

	require.GreaterOrEqual(t, len(rec.events), 2)
	_, ok := rec.events[0].(Started)
	assert.True(t, ok)
	fin, ok := rec.events[len(rec.events)-1].(Finished)
	require.True(t, ok)
	assert.Error(t, fin.Err)
}

func TestDriverRejectsBadPattern(t *testing.T) {
	job := smallJob(world.NewMemoryWorld(world.Stone))
	job.Pattern = mining.BranchPattern{Pairs: 1, Length: 3, Spacing: 0}

	_, err := NewDriver(testTable()).Run(context.Background(), job, nil)
	assert.True(t, errors.Is(err, mining.ErrInvalidParameter))
}

func TestDriverMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	src := world.NewMemoryWorld(world.Stone)
	src.Set(vec.Vec3{X: 1, Y: 10, Z: -1}, world.DiamondOre)

	_, err := NewDriver(testTable(), WithMetrics(m)).Run(context.Background(), smallJob(src), nil)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["minesim_runs_total"])
	assert.True(t, names["minesim_ore_blocks_total"])
}

func TestResultRecords(t *testing.T) {
	row := ResultRow{Y: -58, Mined: 10, Exposed: 20, Lava: 1}
	row.Ores[7] = 3

	assert.Equal(t, []string{"y", "blocks mined", "blocks exposed", "lava", "coal", "copper", "iron", "lapis", "redstone", "gold", "emeralds", "diamonds"}, ResultHeader())
	assert.Equal(t, []string{"-58", "10", "20", "1", "0", "0", "0", "0", "0", "0", "0", "3"}, row.Record())

	assert.Equal(t, []string{"chunk_x", "chunk_z", "y", "air", "lava", "coal", "copper", "iron", "lapis", "redstone", "gold", "emeralds", "diamonds"}, ChunkHeader())
	assert.Len(t, ChunkRow{}.Record(), len(ChunkHeader()))
}

func TestEventQueue(t *testing.T) {
	q := NewEventQueue()
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				q.Emit(Updated{ID: uint32(p*1000 + i), Phase: PhaseMining})
			}
		}(p)
	}
	wg.Wait()
	q.Close()
	q.Emit(Updated{ID: 99999}) // после Close отбрасывается

	n := 0
	for range q.Events() {
		n++
	}
	assert.Equal(t, 2000, n, "ни одно событие не теряется")
}

func TestAnalyzeChunkLayer(t *testing.T) {
	c := world.NewChunk(3, 4, 0, 8)
	for x := 0; x < world.ChunkSize; x++ {
		for z := 0; z < world.ChunkSize; z++ {
			c.Set(x, 1, z, world.Stone)
		}
	}
	c.Set(0, 1, 0, world.Lava)
	c.Set(1, 1, 0, world.DiamondOre)
	c.Set(2, 1, 0, world.IronOre)

	row := AnalyzeChunkLayer(c, testTable(), 1)
	assert.Equal(t, 3, row.ChunkX)
	assert.Equal(t, 4, row.ChunkZ)
	assert.Zero(t, row.Air)
	assert.Equal(t, uint32(1), row.Lava)
	assert.Equal(t, uint32(1), row.Ores[7])
	assert.Equal(t, uint32(1), row.Ores[2])

	assert.Equal(t, uint32(256), AnalyzeChunkLayer(c, testTable(), 5).Air)
}

// --- оркестратор ---

type memRegions struct {
	regions map[string]*world.Region
	broken  map[string]error

	mu    sync.Mutex
	opens map[string]int
}

func (m *memRegions) List() ([]string, error) {
	var names []string
	for n := range m.regions {
		names = append(names, n)
	}
	for n := range m.broken {
		names = append(names, n)
	}
	return names, nil
}

func (m *memRegions) Open(name string) (*world.Region, error) {
	m.mu.Lock()
	if m.opens == nil {
		m.opens = make(map[string]int)
	}
	m.opens[name]++
	m.mu.Unlock()

	if err, ok := m.broken[name]; ok {
		return nil, err
	}
	r, ok := m.regions[name]
	if !ok {
		return nil, fmt.Errorf("no region %s", name)
	}
	return r, nil
}

type memSinks struct {
	mu     sync.Mutex
	rows   map[string][]ResultRow
	chunks map[string][]ChunkRow
	closed int
}

func newMemSinks() *memSinks {
	return &memSinks{rows: make(map[string][]ResultRow), chunks: make(map[string][]ChunkRow)}
}

type memRowSink struct {
	s   *memSinks
	key string
}

func (m memRowSink) WriteRow(row ResultRow) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.rows[m.key] = append(m.s.rows[m.key], row)
	return nil
}

func (m memRowSink) WriteChunkRow(row ChunkRow) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.chunks[m.key] = append(m.s.chunks[m.key], row)
	return nil
}

func (m memRowSink) Close() error {
	m.s.mu.Lock()
	m.s.closed++
	m.s.mu.Unlock()
	return nil
}

func (s *memSinks) RunSink(file string, technique mining.Technique) (RowSink, error) {
	return memRowSink{s: s, key: file + "/" + technique.String()}, nil
}

func (s *memSinks) ChunkSink(file string) (ChunkSink, error) {
	return memRowSink{s: s, key: file}, nil
}

// makeRegion генерирует 2x2 чанка в северо-западном углу региона
func makeRegion(rx int) *world.Region {
	g := world.NewGenerator(11)
	g.Height = 64
	r := world.NewRegion(rx, 0, g.MinY, g.Height)
	for cz := 0; cz < 2; cz++ {
		for cx := 0; cx < 2; cx++ {
			_ = r.SetChunk(g.GenerateChunk(rx*world.RegionChunks+cx, cz))
		}
	}
	return r
}

func testSettings() Settings {
	return Settings{
		Direction: vec.South,
		StartX:    16,
		StartZ:    16,
		Patterns: map[mining.Technique]mining.Pattern{
			mining.Branch:         mining.BranchPattern{Pairs: 1, Length: 4, Spacing: 3},
			mining.BranchWithPoke: mining.PokePattern{Pairs: 1, PokesPerBranch: 1, PokeSpacing: 2, BranchSpacing: 6, PokeDepth: 2},
		},
	}
}

// В тестовых регионах всё ниже нуля - сланец, а эта таблица знает только обычные руды,
// поэтому жилы не расширяются за пределы сгенерированных чанков
func newTestOrchestrator(regions RegionSource, sinks SinkFactory, settings Settings) *Orchestrator {
	table := classify.NewTable(map[world.BlockID]string{world.DiamondOre: classify.Diamonds})
	return NewOrchestrator(regions, sinks, NewDriver(table), table, settings, NewMetrics(nil))
}

func TestOrchestratorTechniques(t *testing.T) {
	regions := &memRegions{regions: map[string]*world.Region{
		"r.0.0.rgn": makeRegion(0),
		"r.1.0.rgn": makeRegion(1),
	}}
	sinks := newMemSinks()
	o := newTestOrchestrator(regions, sinks, testSettings())
	rec := &recorder{}

	req := Techniques{Techniques: mining.Techniques, YMin: -40, YMax: -35, Threads: 3}
	summary, err := o.Run(context.Background(), req, rec)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Tasks)
	assert.Equal(t, 20, summary.Runs)
	assert.Equal(t, 20, summary.Rows)
	assert.NotEmpty(t, summary.BatchID)
	assert.Equal(t, 4, sinks.closed, "каждый приёмник закрывается")

	for _, key := range []string{"r.0.0.rgn/branch", "r.0.0.rgn/poke", "r.1.0.rgn/branch", "r.1.0.rgn/poke"} {
		rows := sinks.rows[key]
		require.Len(t, rows, 5, key)
		for i, row := range rows {
			assert.Equal(t, -40+i, row.Y, "строки %s идут по возрастанию y", key)
		}
	}

	runs := rec.byRun()
	assert.Len(t, runs, 20, "у каждого запуска свой идентификатор")
	for id, evs := range runs {
		_, first := evs[0].(Started)
		_, last := evs[len(evs)-1].(Finished)
		assert.True(t, first, "run %d начинается со Started", id)
		assert.True(t, last, "run %d заканчивается Finished", id)
	}
}

func TestOrchestratorFailureIsolation(t *testing.T) {
	boom := errors.New("corrupt region")
	regions := &memRegions{
		regions: map[string]*world.Region{"r.0.0.rgn": makeRegion(0)},
		broken:  map[string]error{"r.5.0.rgn": boom},
	}
	sinks := newMemSinks()
	o := newTestOrchestrator(regions, sinks, testSettings())

	b, err := o.Start(context.Background(), Techniques{Techniques: mining.Techniques, YMin: -40, YMax: -38, Threads: 2})
	require.NoError(t, err)
	for range b.Events() {
	}
	<-b.Done()
	summary, err := b.Wait()

	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	var errs RunErrors
	require.True(t, errors.As(err, &errs))
	assert.Len(t, errs, 2, "по ошибке на каждую схему сломанного файла")
	assert.Equal(t, 2, summary.Failed)
	assert.Len(t, sinks.rows["r.0.0.rgn/branch"], 2, "исправный файл обработан полностью")
	assert.Len(t, sinks.rows["r.0.0.rgn/poke"], 2)
}

func TestOrchestratorRunFailureFinishes(t *testing.T) {
	r := makeRegion(0)
	settings := testSettings()
	// Ответвление длиной 40 выходит за пределы сгенерированных чанков
	settings.Patterns[mining.Branch] = mining.BranchPattern{Pairs: 1, Length: 40, Spacing: 3}
	sinks := newMemSinks()
	o := newTestOrchestrator(&memRegions{regions: map[string]*world.Region{"r.0.0.rgn": r}}, sinks, settings)
	rec := &recorder{}

	summary, err := o.Run(context.Background(), Range{Technique: mining.Branch, File: "r.0.0.rgn", YMin: -40, YMax: -37}, rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, world.ErrChunkMissing))
	assert.Equal(t, 3, summary.Runs)
	assert.Equal(t, 3, summary.Failed)
	assert.Empty(t, sinks.rows["r.0.0.rgn/branch"])

	for _, evs := range rec.byRun() {
		fin, ok := evs[len(evs)-1].(Finished)
		require.True(t, ok)
		assert.Error(t, fin.Err)
	}
}

func TestOrchestratorSingle(t *testing.T) {
	sinks := newMemSinks()
	o := newTestOrchestrator(&memRegions{regions: map[string]*world.Region{"r.0.0.rgn": makeRegion(0)}}, sinks, testSettings())

	summary, err := o.Run(context.Background(), Single{Technique: mining.BranchWithPoke, File: "r.0.0.rgn", Y: -30}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Runs)
	require.Len(t, sinks.rows["r.0.0.rgn/poke"], 1)
	assert.Equal(t, -30, sinks.rows["r.0.0.rgn/poke"][0].Y)
}

func TestOrchestratorChunks(t *testing.T) {
	sinks := newMemSinks()
	o := newTestOrchestrator(&memRegions{regions: map[string]*world.Region{"r.0.0.rgn": makeRegion(0)}}, sinks, testSettings())
	rec := &recorder{}

	summary, err := o.Run(context.Background(), Chunks{YMin: -64, YMax: -62, Threads: 1}, rec)
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Rows)
	assert.Equal(t, 1, summary.Runs, "анализ файла - один запуск")

	rows := sinks.chunks["r.0.0.rgn"]
	require.Len(t, rows, 8, "4 чанка по 2 слоя")
	assert.Zero(t, rows[0].Air, "нижний слой - коренная порода")

	runs := rec.byRun()
	require.Len(t, runs, 1)
	for id, evs := range runs {
		assert.NotZero(t, id)
		require.Len(t, evs, 3)
		started, ok := evs[0].(Started)
		require.True(t, ok)
		assert.True(t, started.Chunks)
		assert.Equal(t, ChunkTask, started.Task())
		assert.Equal(t, "r.0.0.rgn", started.File)
		assert.Equal(t, -64, started.Y)

		updated, ok := evs[1].(Updated)
		require.True(t, ok)
		assert.Equal(t, PhaseChunks, updated.Phase)

		fin, ok := evs[2].(Finished)
		require.True(t, ok)
		assert.NoError(t, fin.Err)
	}
}

func TestOrchestratorChunksFailureFinishes(t *testing.T) {
	boom := errors.New("corrupt region")
	o := newTestOrchestrator(&memRegions{broken: map[string]error{"r.3.3.rgn": boom}}, newMemSinks(), testSettings())
	rec := &recorder{}

	summary, err := o.Run(context.Background(), Chunks{YMin: 0, YMax: 1, Threads: 1}, rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 1, summary.Failed)

	for _, evs := range rec.byRun() {
		require.Len(t, evs, 2, "без региона нет этапа обработки")
		_, ok := evs[0].(Started)
		assert.True(t, ok)
		fin, ok := evs[1].(Finished)
		require.True(t, ok)
		var re *RunError
		require.True(t, errors.As(fin.Err, &re))
		assert.Equal(t, ChunkTask, re.Technique)
		assert.Equal(t, "r.3.3.rgn", re.File)
	}
}

func TestRegionCacheRelease(t *testing.T) {
	regions := &memRegions{regions: map[string]*world.Region{
		"r.0.0.rgn": makeRegion(0),
		"r.1.0.rgn": makeRegion(1),
	}}
	tasks := []task{
		{file: "r.0.0.rgn", technique: mining.Branch},
		{file: "r.0.0.rgn", technique: mining.BranchWithPoke},
		{file: "r.1.0.rgn", technique: mining.Branch},
	}
	c := newRegionCache(regions, tasks)

	_, err := c.open("r.0.0.rgn")
	require.NoError(t, err)
	_, err = c.open("r.0.0.rgn")
	require.NoError(t, err)
	_, err = c.open("r.1.0.rgn")
	require.NoError(t, err)
	assert.Equal(t, 2, c.loaded())
	assert.Equal(t, 1, regions.opens["r.0.0.rgn"], "регион читается один раз")

	c.release("r.0.0.rgn")
	assert.Equal(t, 2, c.loaded(), "вторая задача файла ещё не завершена")
	c.release("r.0.0.rgn")
	assert.Equal(t, 1, c.loaded(), "после последней задачи регион отпущен")
	c.release("r.1.0.rgn")
	assert.Zero(t, c.loaded())
}

func TestOrchestratorReleasesRegions(t *testing.T) {
	regions := &memRegions{regions: map[string]*world.Region{
		"r.0.0.rgn": makeRegion(0),
		"r.1.0.rgn": makeRegion(1),
		"r.2.0.rgn": makeRegion(2),
	}}
	o := newTestOrchestrator(regions, newMemSinks(), testSettings())

	b, err := o.Start(context.Background(), Techniques{Techniques: mining.Techniques, YMin: -40, YMax: -39, Threads: 2})
	require.NoError(t, err)
	for range b.Events() {
	}
	_, err = b.Wait()
	require.NoError(t, err)

	assert.Zero(t, b.regions.loaded(), "к концу пакета кэш пуст")
	regions.mu.Lock()
	defer regions.mu.Unlock()
	for name, n := range regions.opens {
		assert.Equal(t, 1, n, "%s читается один раз на пакет", name)
	}
}

func TestOrchestratorValidation(t *testing.T) {
	regions := &memRegions{regions: map[string]*world.Region{"r.0.0.rgn": makeRegion(0)}}
	o := newTestOrchestrator(regions, newMemSinks(), testSettings())
	ctx := context.Background()

	_, err := o.Start(ctx, Range{Technique: mining.Branch, File: "r.0.0.rgn", YMin: 5, YMax: 5})
	assert.True(t, errors.Is(err, ErrInvalidRequest), "пустой диапазон высот")

	_, err = o.Start(ctx, Techniques{Techniques: mining.Techniques, YMin: 0, YMax: 5, Threads: 0})
	assert.True(t, errors.Is(err, ErrInvalidRequest), "нулевое число потоков")

	_, err = o.Start(ctx, Techniques{YMin: 0, YMax: 5, Threads: 1})
	assert.True(t, errors.Is(err, ErrInvalidRequest), "пустой список схем")

	_, err = o.Start(ctx, Single{Technique: mining.Branch, File: "r.9.9.rgn", Y: 0})
	assert.True(t, errors.Is(err, ErrInvalidRequest), "неизвестный файл")

	_, err = o.Start(ctx, Chunks{YMin: 3, YMax: 1, Threads: 1})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	bad := testSettings()
	bad.Patterns[mining.Branch] = mining.BranchPattern{Pairs: 1, Length: 1, Spacing: 1}
	o = newTestOrchestrator(regions, newMemSinks(), bad)
	_, err = o.Start(ctx, Single{Technique: mining.Branch, File: "r.0.0.rgn", Y: 0})
	assert.True(t, errors.Is(err, mining.ErrInvalidParameter))

	empty := newTestOrchestrator(&memRegions{}, newMemSinks(), testSettings())
	_, err = empty.Start(ctx, Chunks{YMin: 0, YMax: 1, Threads: 1})
	assert.True(t, errors.Is(err, ErrNoRegions))
}

func TestOrchestratorCancelled(t *testing.T) {
	regions := &memRegions{regions: map[string]*world.Region{"r.0.0.rgn": makeRegion(0)}}
	o := newTestOrchestrator(regions, newMemSinks(), testSettings())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, Range{Technique: mining.Branch, File: "r.0.0.rgn", YMin: 0, YMax: 3}, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}
