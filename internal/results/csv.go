// Package results пишет результаты симуляции в CSV файлы и во вторичный индекс SQLite.
package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/annel0/minesim/internal/mining"
	"github.com/annel0/minesim/internal/simulation"
)

// Dir раскладывает CSV файлы по каталогам результатов и анализа чанков
type Dir struct {
	MiningDir string // result-<файл>-<схема>.csv
	ChunkDir  string // <файл>_chunks.csv
}

// Stem убирает расширение снимка из имени файла региона
func Stem(file string) string {
	base := filepath.Base(file)
	if i := strings.Index(base, ".rgn"); i > 0 {
		return base[:i]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RunPath возвращает путь CSV файла результатов пары (файл, схема)
func (d Dir) RunPath(file string, technique mining.Technique) string {
	return filepath.Join(d.MiningDir, fmt.Sprintf("result-%s-%s.csv", Stem(file), technique))
}

// ChunkPath возвращает путь CSV файла анализа чанков
func (d Dir) ChunkPath(file string) string {
	return filepath.Join(d.ChunkDir, fmt.Sprintf("%s_chunks.csv", Stem(file)))
}

// RunSink реализует simulation.SinkFactory
func (d Dir) RunSink(file string, technique mining.Technique) (simulation.RowSink, error) {
	w, err := createCSV(d.RunPath(file, technique), simulation.ResultHeader())
	if err != nil {
		return nil, err
	}
	return &csvRowSink{csvFile: w}, nil
}

// ChunkSink реализует simulation.SinkFactory
func (d Dir) ChunkSink(file string) (simulation.ChunkSink, error) {
	w, err := createCSV(d.ChunkPath(file), simulation.ChunkHeader())
	if err != nil {
		return nil, err
	}
	return &csvChunkSink{csvFile: w}, nil
}

// csvFile - CSV файл, который сбрасывается на диск после каждой строки,
// чтобы прерванный пакет оставлял уже посчитанные строки
type csvFile struct {
	f *os.File
	w *csv.Writer
}

func createCSV(path string, header []string) (*csvFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	c := &csvFile{f: f, w: csv.NewWriter(f)}
	if err := c.write(header); err != nil {
		_ = f.Close()
		return nil, err
	}
	return c, nil
}

func (c *csvFile) write(record []string) error {
	if err := c.w.Write(record); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *csvFile) Close() error {
	c.w.Flush()
	return errors.Join(c.w.Error(), c.f.Close())
}

type csvRowSink struct{ *csvFile }

func (s *csvRowSink) WriteRow(row simulation.ResultRow) error {
	return s.write(row.Record())
}

type csvChunkSink struct{ *csvFile }

func (s *csvChunkSink) WriteChunkRow(row simulation.ChunkRow) error {
	return s.write(row.Record())
}
