package mining

import (
	"github.com/annel0/minesim/internal/vec"
	"github.com/annel0/minesim/internal/world"
)

// SimpleBlock - посещённый блок. Два блока равны, если совпадают координаты,
// идентификатор при сравнении не учитывается.
type SimpleBlock struct {
	Pos vec.Vec3
	ID  world.BlockID
	Dug bool // Блок выкапывается схемой, а не только открывается
}

// Equal сравнивает блоки по координатам
func (b SimpleBlock) Equal(other SimpleBlock) bool {
	return b.Pos == other.Pos
}

// Key возвращает ключ для множеств по координатам
func (b SimpleBlock) Key() vec.Vec3 {
	return b.Pos
}

// Outcome - результат генератора схемы
type Outcome struct {
	Visited []SimpleBlock // В порядке обхода, возможны повторы координат
	Mined   uint32
	Exposed uint32
}

// Dedupe оставляет первое вхождение каждой координаты, сохраняя порядок.
// Флаг Dug объединяется: блок выкопан, если его выкопал хоть один шаг.
func Dedupe(blocks []SimpleBlock) []SimpleBlock {
	index := make(map[vec.Vec3]int, len(blocks))
	out := make([]SimpleBlock, 0, len(blocks))
	for _, b := range blocks {
		if i, ok := index[b.Pos]; ok {
			out[i].Dug = out[i].Dug || b.Dug
			continue
		}
		index[b.Pos] = len(out)
		out = append(out, b)
	}
	return out
}
