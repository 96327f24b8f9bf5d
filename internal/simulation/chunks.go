package simulation

import (
	"github.com/annel0/minesim/internal/classify"
	"github.com/annel0/minesim/internal/world"
)

// AnalyzeChunkLayer подсчитывает воздух, лаву и руды в слое y чанка
func AnalyzeChunkLayer(c *world.Chunk, table *classify.Table, y int) ChunkRow {
	row := ChunkRow{ChunkX: c.X, ChunkZ: c.Z, Y: y}
	for lz := 0; lz < world.ChunkSize; lz++ {
		for lx := 0; lx < world.ChunkSize; lx++ {
			id := c.Get(lx, y, lz)
			switch {
			case id.IsAir():
				row.Air++
			case id.IsLava():
				row.Lava++
			default:
				category, ok := table.Category(id)
				if !ok {
					continue
				}
				if i, ok := classify.CategoryIndex(category); ok {
					row.Ores[i]++
				}
			}
		}
	}
	return row
}
