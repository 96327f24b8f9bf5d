package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/minesim/internal/classify"
	"github.com/annel0/minesim/internal/simulation"
)

// Типы событий хода симуляции
const (
	TypeRunStarted    = "RunStarted"
	TypeRunUpdated    = "RunUpdated"
	TypeRunFinished   = "RunFinished"
	TypeBatchFinished = "BatchFinished"
)

// PayloadVersion - версия схемы RunPayload
const PayloadVersion = 1

// RunPayload - полезная нагрузка событий запуска
type RunPayload struct {
	RunID     uint32            `json:"run_id"`
	Technique string            `json:"technique,omitempty"`
	File      string            `json:"file,omitempty"`
	Y         *int              `json:"y,omitempty"`
	Phase     string            `json:"phase,omitempty"`
	Mined     uint32            `json:"mined,omitempty"`
	Exposed   uint32            `json:"exposed,omitempty"`
	Lava      uint32            `json:"lava,omitempty"`
	Ores      map[string]uint32 `json:"ores,omitempty"`
	OreCount  uint32            `json:"ore_count,omitempty"`
	Error     string            `json:"error,omitempty"`
	ElapsedMs int64             `json:"elapsed_ms,omitempty"`
}

// BatchPayload - полезная нагрузка события завершения пакета
type BatchPayload struct {
	Tasks     int    `json:"tasks"`
	Runs      int    `json:"runs"`
	Failed    int    `json:"failed"`
	Rows      int    `json:"rows"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

// Forwarder превращает события симуляции в конверты и публикует их в шину
type Forwarder struct {
	bus     EventBus
	source  string
	batchID string
}

// NewForwarder создаёт пересыльщик событий одного пакета
func NewForwarder(bus EventBus, source, batchID string) *Forwarder {
	return &Forwarder{bus: bus, source: source, batchID: batchID}
}

// Envelope строит конверт для события симуляции
func (f *Forwarder) Envelope(ev simulation.Event) (*Envelope, error) {
	p := RunPayload{RunID: ev.RunID()}
	var eventType string
	priority := 5

	switch e := ev.(type) {
	case simulation.Started:
		eventType = TypeRunStarted
		p.Technique = e.Task()
		p.File = e.File
		y := e.Y
		p.Y = &y
	case simulation.Updated:
		eventType = TypeRunUpdated
		p.Phase = string(e.Phase)
		p.Mined, p.Exposed, p.Lava, p.OreCount = e.Mined, e.Exposed, e.Lava, e.OreCount
		priority = 1 // промежуточные этапы можно потерять
	case simulation.Finished:
		eventType = TypeRunFinished
		p.ElapsedMs = e.Elapsed.Milliseconds()
		if e.Err != nil {
			p.Error = e.Err.Error()
			priority = 7
		} else {
			y := e.Row.Y
			p.Y = &y
			p.Mined, p.Exposed, p.Lava = e.Row.Mined, e.Row.Exposed, e.Row.Lava
			p.Ores = make(map[string]uint32, classify.NumCategories)
			for i, c := range classify.Categories {
				p.Ores[c] = e.Row.Ores[i]
			}
		}
	default:
		eventType = ev.Kind()
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return f.wrap(eventType, priority, data), nil
}

func (f *Forwarder) wrap(eventType string, priority int, payload []byte) *Envelope {
	return &Envelope{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Source:        f.source,
		EventType:     eventType,
		Version:       PayloadVersion,
		CorrelationID: f.batchID,
		Priority:      priority,
		Payload:       payload,
	}
}

// Forward публикует событие симуляции
func (f *Forwarder) Forward(ctx context.Context, ev simulation.Event) error {
	env, err := f.Envelope(ev)
	if err != nil {
		return err
	}
	return f.bus.Publish(ctx, env)
}

// BatchFinished публикует итог пакета
func (f *Forwarder) BatchFinished(ctx context.Context, s simulation.Summary, batchErr error) error {
	p := BatchPayload{
		Tasks:     s.Tasks,
		Runs:      s.Runs,
		Failed:    s.Failed,
		Rows:      s.Rows,
		ElapsedMs: s.Elapsed.Milliseconds(),
	}
	if batchErr != nil {
		p.Error = batchErr.Error()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return f.bus.Publish(ctx, f.wrap(TypeBatchFinished, 9, data))
}
