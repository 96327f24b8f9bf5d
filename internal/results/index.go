package results

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/annel0/minesim/internal/classify"
	"github.com/annel0/minesim/internal/logging"
	"github.com/annel0/minesim/internal/mining"
	"github.com/annel0/minesim/internal/simulation"
)

// Index - вторичный индекс результатов в SQLite. Запись идёт через одну
// горутину-писателя, чтение - напрямую через пул соединений.
type Index struct {
	db *sql.DB

	ch     chan indexedRow
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex // защищает ch от записи после закрытия
	closed bool

	dropped atomic.Uint64
}

type indexedRow struct {
	file      string
	technique string
	row       simulation.ResultRow
	at        time.Time
	barrier   chan struct{}
}

// StoredRow - строка индекса
type StoredRow struct {
	File       string               `json:"file"`
	Technique  string               `json:"technique"`
	Y          int                  `json:"y"`
	Mined      uint32               `json:"mined"`
	Exposed    uint32               `json:"exposed"`
	Lava       uint32               `json:"lava"`
	Ores       map[string]uint32    `json:"ores"`
	RecordedAt time.Time            `json:"recorded_at"`
	Row        simulation.ResultRow `json:"-"`
}

// Query - фильтр выборки; пустые поля не ограничивают
type Query struct {
	File      string
	Technique string
	Limit     int
}

// OpenIndex открывает или создаёт базу
func OpenIndex(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	idx := &Index{
		db: db,
		ch: make(chan indexedRow, 4096),
	}
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		idx.loop()
	}()
	return idx, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS results (
		file        TEXT NOT NULL,
		technique   TEXT NOT NULL,
		y           INTEGER NOT NULL,
		mined       INTEGER NOT NULL,
		exposed     INTEGER NOT NULL,
		lava        INTEGER NOT NULL,
		coal        INTEGER NOT NULL,
		copper      INTEGER NOT NULL,
		iron        INTEGER NOT NULL,
		lapis       INTEGER NOT NULL,
		redstone    INTEGER NOT NULL,
		gold        INTEGER NOT NULL,
		emeralds    INTEGER NOT NULL,
		diamonds    INTEGER NOT NULL,
		recorded_at TEXT NOT NULL,
		PRIMARY KEY (file, technique, y)
	);`)
	return err
}

// Record ставит строку в очередь записи. Не блокирует: при переполнении строка
// отбрасывается и учитывается в Dropped, CSV остаётся источником истины.
func (idx *Index) Record(file string, technique mining.Technique, row simulation.ResultRow) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return
	}
	select {
	case idx.ch <- indexedRow{file: file, technique: technique.String(), row: row, at: time.Now().UTC()}:
	default:
		idx.dropped.Add(1)
	}
}

// Dropped возвращает количество строк, не попавших в индекс
func (idx *Index) Dropped() uint64 {
	return idx.dropped.Load()
}

func (idx *Index) loop() {
	const upsert = `INSERT INTO results
		(file, technique, y, mined, exposed, lava, coal, copper, iron, lapis, redstone, gold, emeralds, diamonds, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file, technique, y) DO UPDATE SET
			mined=excluded.mined, exposed=excluded.exposed, lava=excluded.lava,
			coal=excluded.coal, copper=excluded.copper, iron=excluded.iron, lapis=excluded.lapis,
			redstone=excluded.redstone, gold=excluded.gold, emeralds=excluded.emeralds,
			diamonds=excluded.diamonds, recorded_at=excluded.recorded_at;`

	for r := range idx.ch {
		if r.barrier != nil {
			close(r.barrier)
			continue
		}
		o := r.row.Ores
		_, err := idx.db.Exec(upsert,
			r.file, r.technique, r.row.Y, r.row.Mined, r.row.Exposed, r.row.Lava,
			o[0], o[1], o[2], o[3], o[4], o[5], o[6], o[7],
			r.at.Format(time.RFC3339Nano),
		)
		if err != nil {
			idx.dropped.Add(1)
			logging.Warn("⚠️ Индекс результатов: %s/%s y=%d не записан: %v", r.file, r.technique, r.row.Y, err)
		}
	}
}

// Flush дожидается записи всех строк, поставленных в очередь до вызова
func (idx *Index) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	idx.mu.RLock()
	if idx.closed {
		idx.mu.RUnlock()
		return nil
	}
	select {
	case idx.ch <- indexedRow{barrier: barrier}:
		idx.mu.RUnlock()
	case <-ctx.Done():
		idx.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rows выбирает строки по фильтру в порядке файла, схемы и высоты
func (idx *Index) Rows(ctx context.Context, q Query) ([]StoredRow, error) {
	query := `SELECT file, technique, y, mined, exposed, lava, coal, copper, iron, lapis, redstone, gold, emeralds, diamonds, recorded_at
		FROM results WHERE (? = '' OR file = ?) AND (? = '' OR technique = ?)
		ORDER BY file, technique, y`
	args := []any{q.File, q.File, q.Technique, q.Technique}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredRow
	for rows.Next() {
		var s StoredRow
		var at string
		o := &s.Row.Ores
		if err := rows.Scan(&s.File, &s.Technique, &s.Row.Y, &s.Row.Mined, &s.Row.Exposed, &s.Row.Lava,
			&o[0], &o[1], &o[2], &o[3], &o[4], &o[5], &o[6], &o[7], &at); err != nil {
			return nil, err
		}
		s.Y, s.Mined, s.Exposed, s.Lava = s.Row.Y, s.Row.Mined, s.Row.Exposed, s.Row.Lava
		s.Ores = make(map[string]uint32, classify.NumCategories)
		for i, c := range classify.Categories {
			s.Ores[c] = o[i]
		}
		s.RecordedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close останавливает писателя, дописывает очередь и закрывает базу
func (idx *Index) Close() error {
	var err error
	idx.once.Do(func() {
		idx.mu.Lock()
		idx.closed = true
		close(idx.ch)
		idx.mu.Unlock()
		idx.wg.Wait()
		err = idx.db.Close()
	})
	return err
}

// Indexed оборачивает фабрику приёмников так, что каждая записанная строка
// результатов дополнительно попадает в индекс
func Indexed(base simulation.SinkFactory, idx *Index) simulation.SinkFactory {
	return indexedSinks{base: base, idx: idx}
}

type indexedSinks struct {
	base simulation.SinkFactory
	idx  *Index
}

func (s indexedSinks) RunSink(file string, technique mining.Technique) (simulation.RowSink, error) {
	inner, err := s.base.RunSink(file, technique)
	if err != nil {
		return nil, err
	}
	return &indexedRowSink{RowSink: inner, idx: s.idx, file: file, technique: technique}, nil
}

func (s indexedSinks) ChunkSink(file string) (simulation.ChunkSink, error) {
	return s.base.ChunkSink(file)
}

type indexedRowSink struct {
	simulation.RowSink
	idx       *Index
	file      string
	technique mining.Technique
}

func (s *indexedRowSink) WriteRow(row simulation.ResultRow) error {
	if err := s.RowSink.WriteRow(row); err != nil {
		return err
	}
	s.idx.Record(s.file, s.technique, row)
	return nil
}
