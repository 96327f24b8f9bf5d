package world

import "fmt"

// ChunkSize - ширина чанка в блоках по X и Z
const ChunkSize = 16

// Chunk - вертикальный столб 16xHx16 блоков с палитрой.
// Индексы блоков хранятся как uint16, поэтому в палитре не больше 65536 записей.
// После загрузки чанк только читается, поэтому блокировок нет.
type Chunk struct {
	X, Z   int // Координаты чанка (не блоков)
	MinY   int // Нижняя граница по высоте включительно
	Height int // Количество уровней

	palette []BlockID
	index   map[BlockID]uint16
	blocks  []uint16 // [(y-MinY)*256 + z*16 + x]
}

// NewChunk создаёт чанк, заполненный воздухом
func NewChunk(x, z, minY, height int) *Chunk {
	c := &Chunk{
		X:      x,
		Z:      z,
		MinY:   minY,
		Height: height,
		index:  make(map[BlockID]uint16),
		blocks: make([]uint16, height*ChunkSize*ChunkSize),
	}
	c.paletteIndex(Air)
	return c
}

func (c *Chunk) paletteIndex(id BlockID) uint16 {
	if i, ok := c.index[id]; ok {
		return i
	}
	i := uint16(len(c.palette))
	c.palette = append(c.palette, id)
	c.index[id] = i
	return i
}

func (c *Chunk) offset(lx, y, lz int) (int, bool) {
	if lx < 0 || lx >= ChunkSize || lz < 0 || lz >= ChunkSize {
		return 0, false
	}
	if y < c.MinY || y >= c.MinY+c.Height {
		return 0, false
	}
	return (y-c.MinY)*ChunkSize*ChunkSize + lz*ChunkSize + lx, true
}

// Get возвращает блок по локальным координатам. Вне вертикального диапазона - воздух.
func (c *Chunk) Get(lx, y, lz int) BlockID {
	off, ok := c.offset(lx, y, lz)
	if !ok {
		return Air
	}
	return c.palette[c.blocks[off]]
}

// Set записывает блок по локальным координатам. Используется только генератором и загрузчиком.
func (c *Chunk) Set(lx, y, lz int, id BlockID) {
	off, ok := c.offset(lx, y, lz)
	if !ok {
		return
	}
	c.blocks[off] = c.paletteIndex(id)
}

// Palette возвращает копию палитры чанка
func (c *Chunk) Palette() []BlockID {
	out := make([]BlockID, len(c.palette))
	copy(out, c.palette)
	return out
}

// Contains сообщает, лежит ли высота y внутри чанка
func (c *Chunk) Contains(y int) bool {
	return y >= c.MinY && y < c.MinY+c.Height
}

func (c *Chunk) String() string {
	return fmt.Sprintf("chunk(%d,%d)", c.X, c.Z)
}

// rawChunk собирает чанк из палитры и индексов, проверяя их согласованность
func rawChunk(x, z, minY, height int, palette []BlockID, blocks []uint16) (*Chunk, error) {
	if height <= 0 || len(blocks) != height*ChunkSize*ChunkSize {
		return nil, fmt.Errorf("%w: chunk (%d,%d) has %d blocks for height %d", ErrBadRegionFile, x, z, len(blocks), height)
	}
	if len(palette) == 0 {
		return nil, fmt.Errorf("%w: chunk (%d,%d) has empty palette", ErrBadRegionFile, x, z)
	}
	for _, b := range blocks {
		if int(b) >= len(palette) {
			return nil, fmt.Errorf("%w: chunk (%d,%d) references palette entry %d of %d", ErrBadRegionFile, x, z, b, len(palette))
		}
	}
	c := &Chunk{
		X:       x,
		Z:       z,
		MinY:    minY,
		Height:  height,
		palette: palette,
		index:   make(map[BlockID]uint16, len(palette)),
		blocks:  blocks,
	}
	for i, id := range palette {
		if _, dup := c.index[id]; !dup {
			c.index[id] = uint16(i)
		}
	}
	return c, nil
}
