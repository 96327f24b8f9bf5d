package mining

import (
	"fmt"

	"github.com/annel0/minesim/internal/vec"
	"github.com/annel0/minesim/internal/world"
)

// OreTable отвечает, является ли блок рудой. Реализуется *classify.Table.
type OreTable interface {
	IsOre(id world.BlockID) bool
}

// OreVein - связная по 26 соседям жила и все точки, открытые её раскопкой
type OreVein struct {
	Members map[vec.Vec3]world.BlockID
	Exposed map[vec.Vec3]struct{}
}

// Size возвращает количество блоков жилы
func (v OreVein) Size() int {
	return len(v.Members)
}

// Contains сообщает, входит ли точка в жилу
func (v OreVein) Contains(p vec.Vec3) bool {
	_, ok := v.Members[p]
	return ok
}

// Expand находит жилу, содержащую seed, обходом в ширину. Для каждого блока
// фронта опрашиваются все 27 точек его куба 3x3x3: они попадают в Exposed,
// а соседние руды, ещё не входящие в жилу, ставятся в очередь.
func Expand(src world.VoxelSource, table OreTable, seed SimpleBlock) (OreVein, error) {
	vein := OreVein{
		Members: map[vec.Vec3]world.BlockID{seed.Pos: seed.ID},
		Exposed: make(map[vec.Vec3]struct{}),
	}

	queue := []vec.Vec3{seed.Pos}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, p := range cur.Cube() {
			id, err := src.BlockAt(p)
			if err != nil {
				return OreVein{}, fmt.Errorf("expand vein at %s: %w", seed.Pos, err)
			}
			vein.Exposed[p] = struct{}{}
			if p == cur {
				continue
			}
			if _, member := vein.Members[p]; member {
				continue
			}
			if table.IsOre(id) {
				vein.Members[p] = id
				queue = append(queue, p)
			}
		}
	}
	return vein, nil
}
