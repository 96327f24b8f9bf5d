package world

import (
	"fmt"

	"github.com/annel0/minesim/internal/vec"
)

// MemoryWorld - разреженный мир в памяти. Все незаданные точки равны Fill.
// Применяется в тестах и для небольших синтетических сцен.
type MemoryWorld struct {
	Fill   BlockID
	blocks map[vec.Vec3]BlockID

	bounded  bool
	min, max vec.Vec3 // включительно, только X и Z
}

// NewMemoryWorld создаёт мир, заполненный блоком fill
func NewMemoryWorld(fill BlockID) *MemoryWorld {
	return &MemoryWorld{
		Fill:   fill,
		blocks: make(map[vec.Vec3]BlockID),
	}
}

// Set записывает блок
func (m *MemoryWorld) Set(pos vec.Vec3, id BlockID) {
	m.blocks[pos] = id
}

// SetBounds ограничивает мир по горизонтали; чтение за границей вернёт ErrOutOfBounds
func (m *MemoryWorld) SetBounds(min, max vec.Vec3) {
	m.bounded = true
	m.min, m.max = min, max
}

// BlockAt реализует VoxelSource
func (m *MemoryWorld) BlockAt(pos vec.Vec3) (BlockID, error) {
	if m.bounded && (pos.X < m.min.X || pos.X > m.max.X || pos.Z < m.min.Z || pos.Z > m.max.Z) {
		return "", fmt.Errorf("%w: %s", ErrOutOfBounds, pos)
	}
	if id, ok := m.blocks[pos]; ok {
		return id, nil
	}
	return m.Fill, nil
}

// Len возвращает количество явно заданных блоков
func (m *MemoryWorld) Len() int {
	return len(m.blocks)
}
