package world

import (
	"github.com/annel0/minesim/internal/util"
)

// Константы генерации по умолчанию
const (
	DefaultMinY      = -64
	DefaultHeight    = 384
	DefaultSurface   = 64  // Средняя высота поверхности
	SurfaceAmplitude = 24  // Разброс высоты поверхности
	DeepslateLevel   = 0   // Ниже - глубинный сланец
	DefaultLavaLevel = -54 // Пещеры ниже заполняются лавой

	terrainScale  = 0.01 // Масштаб шума поверхности
	caveScale     = 0.06 // Масштаб шума пещер
	caveThreshold = 0.74 // Выше - пещера
)

// OreConfig описывает распределение одной руды
type OreConfig struct {
	Block    BlockID
	MinY     int
	MaxY     int
	VeinSize int // Длина случайного блуждания жилы
	Attempts int // Жил на чанк
}

// DefaultOres - распределение руд по высотам, близкое к современной игре
var DefaultOres = []OreConfig{
	{CoalOre, 0, 192, 17, 20},
	{CopperOre, -16, 112, 10, 16},
	{IronOre, -64, 72, 9, 20},
	{LapisOre, -64, 64, 7, 4},
	{RedstoneOre, -64, 16, 8, 8},
	{GoldOre, -64, 32, 9, 4},
	{EmeraldOre, -16, 232, 3, 1},
	{DiamondOre, -64, 16, 8, 2},
}

// Generator создаёт синтетические регионы: рельеф и пещеры по шуму Перлина,
// лава в глубоких пещерах, рудные жилы случайным блужданием.
type Generator struct {
	Seed      int64
	MinY      int
	Height    int
	LavaLevel int
	Ores      []OreConfig

	terrain *util.Noise
	caves   *util.Noise
}

// NewGenerator создаёт генератор с параметрами по умолчанию
func NewGenerator(seed int64) *Generator {
	return &Generator{
		Seed:      seed,
		MinY:      DefaultMinY,
		Height:    DefaultHeight,
		LavaLevel: DefaultLavaLevel,
		Ores:      DefaultOres,
		terrain:   util.NewNoise(seed),
		caves:     util.NewNoise(seed ^ 0x5DEECE66D),
	}
}

// GenerateRegion генерирует все 32x32 чанка региона
func (g *Generator) GenerateRegion(rx, rz int) *Region {
	r := NewRegion(rx, rz, g.MinY, g.Height)
	for cz := 0; cz < RegionChunks; cz++ {
		for cx := 0; cx < RegionChunks; cx++ {
			// Координаты всегда внутри региона, ошибки быть не может
			_ = r.SetChunk(g.GenerateChunk(rx*RegionChunks+cx, rz*RegionChunks+cz))
		}
	}
	return r
}

// GenerateChunk генерирует чанк по его координатам
func (g *Generator) GenerateChunk(cx, cz int) *Chunk {
	c := NewChunk(cx, cz, g.MinY, g.Height)
	var surface [ChunkSize][ChunkSize]int

	for lz := 0; lz < ChunkSize; lz++ {
		for lx := 0; lx < ChunkSize; lx++ {
			wx := float64(cx*ChunkSize + lx)
			wz := float64(cz*ChunkSize + lz)

			top := DefaultSurface + int((g.terrain.Noise2D(wx*terrainScale, wz*terrainScale)-0.5)*2*SurfaceAmplitude)
			surface[lx][lz] = top

			for y := g.MinY; y <= top && y < g.MinY+g.Height; y++ {
				c.Set(lx, y, lz, g.baseBlock(y, top))
				if y <= g.MinY || y >= top-3 {
					continue
				}
				if g.caves.Noise3D(wx*caveScale, float64(y)*caveScale, wz*caveScale) > caveThreshold {
					if y <= g.LavaLevel {
						c.Set(lx, y, lz, Lava)
					} else {
						c.Set(lx, y, lz, CaveAir)
					}
				}
			}
		}
	}

	g.placeOres(c, &surface)
	return c
}

func (g *Generator) baseBlock(y, top int) BlockID {
	switch {
	case y <= g.MinY:
		return Bedrock
	case y == top:
		return Grass
	case y >= top-3:
		return Dirt
	case y < DeepslateLevel:
		return Deepslate
	}
	return Stone
}

func (g *Generator) placeOres(c *Chunk, surface *[ChunkSize][ChunkSize]int) {
	rng := newChunkRNG(g.Seed, c.X, c.Z, 500)

	for _, ore := range g.Ores {
		if ore.MaxY <= ore.MinY {
			continue
		}
		for i := 0; i < ore.Attempts; i++ {
			x := rng.nextN(ChunkSize)
			y := ore.MinY + rng.nextN(ore.MaxY-ore.MinY)
			z := rng.nextN(ChunkSize)
			if y >= surface[x][z] {
				continue
			}
			placeVein(c, x, y, z, ore.Block, ore.VeinSize, rng)
		}
	}
}

// placeVein ведёт случайное блуждание и заменяет только камень и сланец
func placeVein(c *Chunk, x, y, z int, ore BlockID, size int, rng *chunkRNG) {
	for i := 0; i < size; i++ {
		switch c.Get(x, y, z) {
		case Stone:
			c.Set(x, y, z, ore)
		case Deepslate:
			c.Set(x, y, z, DeepslateVariant(ore))
		}

		switch rng.nextN(6) {
		case 0:
			x++
		case 1:
			x--
		case 2:
			y++
		case 3:
			y--
		case 4:
			z++
		case 5:
			z--
		}
	}
}

// chunkRNG - детерминированный LCG для генерации одного чанка
type chunkRNG struct {
	state int64
}

func newChunkRNG(seed int64, cx, cz int, salt int64) *chunkRNG {
	return &chunkRNG{state: seed ^ (int64(cx)*341873128712 + int64(cz)*132897987541 + salt)}
}

func (r *chunkRNG) next() int64 {
	r.state = r.state*6364136223846793005 + 1442695040888963407
	return r.state
}

func (r *chunkRNG) nextN(n int) int {
	v := int(r.next()>>33) % n
	if v < 0 {
		v = -v
	}
	return v
}
