package world

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/annel0/minesim/internal/vec"
)

const (
	// RegionChunks - ширина региона в чанках
	RegionChunks = 32
	// RegionBlocks - ширина региона в блоках
	RegionBlocks = RegionChunks * ChunkSize
	// RegionExt - расширение файлов снимков регионов
	RegionExt = ".rgn"
)

// Region - неизменяемый снимок 32x32 чанков. После загрузки разделяется
// между всеми задачами на чтение; изменять его может только загрузчик.
type Region struct {
	Name   string // Имя файла без каталога, например "r.0.0.rgn"
	X, Z   int    // Координаты региона
	MinY   int
	Height int

	chunks [RegionChunks * RegionChunks]*Chunk
}

// NewRegion создаёт пустой регион
func NewRegion(x, z, minY, height int) *Region {
	return &Region{
		Name:   RegionFileName(x, z),
		X:      x,
		Z:      z,
		MinY:   minY,
		Height: height,
	}
}

// RegionFileName возвращает каноничное имя файла региона
func RegionFileName(x, z int) string {
	return fmt.Sprintf("r.%d.%d%s", x, z, RegionExt)
}

// ParseRegionFileName извлекает координаты региона из имени файла
func ParseRegionFileName(name string) (x, z int, ok bool) {
	if !strings.HasSuffix(name, RegionExt) {
		return 0, 0, false
	}
	parts := strings.Split(strings.TrimSuffix(name, RegionExt), ".")
	if len(parts) != 3 || parts[0] != "r" {
		return 0, 0, false
	}
	x, errX := strconv.Atoi(parts[1])
	z, errZ := strconv.Atoi(parts[2])
	if errX != nil || errZ != nil {
		return 0, 0, false
	}
	return x, z, true
}

// Origin возвращает мировые координаты северо-западного угла региона на высоте 0
func (r *Region) Origin() vec.Vec3 {
	return vec.Vec3{X: r.X * RegionBlocks, Y: 0, Z: r.Z * RegionBlocks}
}

func (r *Region) slot(cx, cz int) (int, bool) {
	lx, lz := cx-r.X*RegionChunks, cz-r.Z*RegionChunks
	if lx < 0 || lx >= RegionChunks || lz < 0 || lz >= RegionChunks {
		return 0, false
	}
	return lz*RegionChunks + lx, true
}

// SetChunk помещает чанк в регион. Чанк должен принадлежать региону и совпадать по высоте.
func (r *Region) SetChunk(c *Chunk) error {
	i, ok := r.slot(c.X, c.Z)
	if !ok {
		return fmt.Errorf("%w: %s does not belong to region (%d,%d)", ErrOutOfBounds, c, r.X, r.Z)
	}
	if c.MinY != r.MinY || c.Height != r.Height {
		return fmt.Errorf("%w: %s height range differs from region", ErrBadRegionFile, c)
	}
	r.chunks[i] = c
	return nil
}

// Chunk возвращает чанк по мировым координатам чанка
func (r *Region) Chunk(cx, cz int) (*Chunk, error) {
	i, ok := r.slot(cx, cz)
	if !ok {
		return nil, fmt.Errorf("%w: chunk (%d,%d) in region %s", ErrOutOfBounds, cx, cz, r.Name)
	}
	c := r.chunks[i]
	if c == nil {
		return nil, fmt.Errorf("%w: (%d,%d) in %s", ErrChunkMissing, cx, cz, r.Name)
	}
	return c, nil
}

// Chunks возвращает все присутствующие чанки в порядке z, затем x
func (r *Region) Chunks() []*Chunk {
	out := make([]*Chunk, 0, len(r.chunks))
	for _, c := range r.chunks {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// BlockAt читает блок напрямую из региона, без кеша
func (r *Region) BlockAt(pos vec.Vec3) (BlockID, error) {
	cp := pos.ToVec2().ToChunkCoords()
	c, err := r.Chunk(cp.X, cp.Y)
	if err != nil {
		return "", err
	}
	local := pos.ToVec2().LocalInChunk()
	return c.Get(local.X, pos.Y, local.Y), nil
}
