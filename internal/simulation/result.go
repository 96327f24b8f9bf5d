package simulation

import (
	"strconv"

	"github.com/annel0/minesim/internal/classify"
)

// ResultRow - итог одного запуска схемы на одной высоте
type ResultRow struct {
	Y       int
	Mined   uint32
	Exposed uint32
	Lava    uint32
	Ores    [classify.NumCategories]uint32 // В порядке classify.Categories
}

// ResultHeader - заголовок CSV файла результатов
func ResultHeader() []string {
	header := []string{"y", "blocks mined", "blocks exposed", "lava"}
	return append(header, classify.Categories[:]...)
}

// Record возвращает строку CSV в порядке ResultHeader
func (r ResultRow) Record() []string {
	rec := make([]string, 0, 4+len(r.Ores))
	rec = append(rec,
		strconv.Itoa(r.Y),
		strconv.FormatUint(uint64(r.Mined), 10),
		strconv.FormatUint(uint64(r.Exposed), 10),
		strconv.FormatUint(uint64(r.Lava), 10),
	)
	for _, n := range r.Ores {
		rec = append(rec, strconv.FormatUint(uint64(n), 10))
	}
	return rec
}

// Ore возвращает количество руды категории category
func (r ResultRow) Ore(category string) uint32 {
	if i, ok := classify.CategoryIndex(category); ok {
		return r.Ores[i]
	}
	return 0
}

// TotalOre возвращает суммарное количество учтённой руды
func (r ResultRow) TotalOre() uint32 {
	var total uint32
	for _, n := range r.Ores {
		total += n
	}
	return total
}

// ChunkRow - состав одного слоя одного чанка
type ChunkRow struct {
	ChunkX int
	ChunkZ int
	Y      int
	Air    uint32
	Lava   uint32
	Ores   [classify.NumCategories]uint32
}

// ChunkHeader - заголовок CSV анализа чанков
func ChunkHeader() []string {
	header := []string{"chunk_x", "chunk_z", "y", "air", "lava"}
	return append(header, classify.Categories[:]...)
}

// Record возвращает строку CSV в порядке ChunkHeader
func (r ChunkRow) Record() []string {
	rec := make([]string, 0, 5+len(r.Ores))
	rec = append(rec,
		strconv.Itoa(r.ChunkX),
		strconv.Itoa(r.ChunkZ),
		strconv.Itoa(r.Y),
		strconv.FormatUint(uint64(r.Air), 10),
		strconv.FormatUint(uint64(r.Lava), 10),
	)
	for _, n := range r.Ores {
		rec = append(rec, strconv.FormatUint(uint64(n), 10))
	}
	return rec
}
