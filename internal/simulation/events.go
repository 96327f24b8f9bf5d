package simulation

import (
	"time"

	"github.com/annel0/minesim/internal/mining"
)

// Phase - этап выполнения одного запуска
type Phase string

const (
	PhaseMining    Phase = "Mining"
	PhaseFiltering Phase = "Filtering Blocks"
	PhaseExpanding Phase = "Expanding Ores"
	PhaseCompiling Phase = "Compiling Results"
	PhaseChunks    Phase = "Processing Chunks"
)

// ChunkTask - имя задачи анализа чанков в событиях и ошибках
const ChunkTask = "chunks"

// Event - сообщение о ходе запуска. Для каждого RunID сначала приходит Started,
// затем любое число Updated и ровно один Finished, даже при ошибке.
type Event interface {
	RunID() uint32
	Kind() string
}

// Started - запуск начат. Для анализа чанков Chunks=true, Technique не задан,
// а Y - нижняя граница диапазона слоёв.
type Started struct {
	ID        uint32
	Technique mining.Technique
	Chunks    bool
	File      string
	Y         int
	At        time.Time
}

// Task - имя схемы или ChunkTask
func (e Started) Task() string {
	if e.Chunks {
		return ChunkTask
	}
	return e.Technique.String()
}

// Updated - запуск перешёл к новому этапу. Счётчики отражают то, что известно
// к началу этапа: после генератора только Mined и Exposed, после классификации
// ещё Lava и OreCount (число найденных рудных блоков), на этапе сборки итог.
type Updated struct {
	ID       uint32
	Phase    Phase
	Mined    uint32
	Exposed  uint32
	Lava     uint32
	OreCount uint32
}

// Finished - запуск завершён. Err не nil, если запуск провалился.
type Finished struct {
	ID      uint32
	Row     ResultRow
	Err     error
	Elapsed time.Duration
}

func (e Started) RunID() uint32  { return e.ID }
func (e Updated) RunID() uint32  { return e.ID }
func (e Finished) RunID() uint32 { return e.ID }

func (Started) Kind() string  { return "started" }
func (Updated) Kind() string  { return "updated" }
func (Finished) Kind() string { return "finished" }

// EventSink принимает события. Emit не должен блокировать производителя надолго.
type EventSink interface {
	Emit(ev Event)
}

// EventFunc позволяет использовать функцию как EventSink
type EventFunc func(ev Event)

func (f EventFunc) Emit(ev Event) { f(ev) }

// Discard - приёмник, который отбрасывает все события
var Discard EventSink = EventFunc(func(Event) {})
