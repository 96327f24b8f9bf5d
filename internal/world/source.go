package world

import (
	"github.com/annel0/minesim/internal/vec"
)

// VoxelSource отдаёт идентификатор блока по мировым координатам.
// Вне вертикального диапазона мира возвращается воздух, вне горизонтальных
// границ - ошибка ErrOutOfBounds.
type VoxelSource interface {
	BlockAt(pos vec.Vec3) (BlockID, error)
}

// ChunkProvider отдаёт чанки по координатам чанка. Реализуется Region и хранилищем.
type ChunkProvider interface {
	Chunk(cx, cz int) (*Chunk, error)
}

// ChunkCache - приватный кеш чанков одной задачи поверх общего снимка.
// Не потокобезопасен: каждая задача создаёт свой экземпляр.
type ChunkCache struct {
	provider ChunkProvider
	chunks   map[vec.Vec2]*Chunk

	last    *Chunk
	lastKey vec.Vec2

	hits   uint64
	misses uint64
}

// NewChunkCache создаёт кеш поверх провайдера чанков
func NewChunkCache(p ChunkProvider) *ChunkCache {
	return &ChunkCache{
		provider: p,
		chunks:   make(map[vec.Vec2]*Chunk),
	}
}

// BlockAt реализует VoxelSource
func (c *ChunkCache) BlockAt(pos vec.Vec3) (BlockID, error) {
	key := pos.ToVec2().ToChunkCoords()
	chunk, err := c.chunk(key)
	if err != nil {
		return "", err
	}
	local := pos.ToVec2().LocalInChunk()
	return chunk.Get(local.X, pos.Y, local.Y), nil
}

func (c *ChunkCache) chunk(key vec.Vec2) (*Chunk, error) {
	// Генераторы идут вдоль туннеля, так что чаще всего нужен тот же чанк
	if c.last != nil && c.lastKey == key {
		c.hits++
		return c.last, nil
	}
	if ch, ok := c.chunks[key]; ok {
		c.hits++
		c.last, c.lastKey = ch, key
		return ch, nil
	}
	c.misses++
	ch, err := c.provider.Chunk(key.X, key.Y)
	if err != nil {
		return nil, err
	}
	c.chunks[key] = ch
	c.last, c.lastKey = ch, key
	return ch, nil
}

// Stats возвращает число попаданий и промахов кеша
func (c *ChunkCache) Stats() (hits, misses uint64) {
	return c.hits, c.misses
}
