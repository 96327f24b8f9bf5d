package mining

import (
	"fmt"

	"github.com/annel0/minesim/internal/vec"
	"github.com/annel0/minesim/internal/world"
)

// Приращения счётчиков для каждого вида среза.
// Стены считаются открытыми, пол и потолок только опрашиваются.
const (
	// Срез туннеля 2x1: две выкопанные клетки, по две стены с каждой стороны
	TunnelSliceMined   = 2
	TunnelSliceExposed = 4
	// Торец туннеля 2x1, в том числе оба торца коридора
	TunnelEndMined   = 0
	TunnelEndExposed = 2
	// Срез коридора на стыке с ответвлениями: стены уже учтены ответвлениями
	ColumnMined   = 2
	ColumnExposed = 0
	// Вход прощупа в стене ответвления
	PokeMouthMined   = 1
	PokeMouthExposed = 0
	// Срез прощупа 1x1
	PokeSliceMined   = 1
	PokeSliceExposed = 2
	// Торец прощупа
	PokeEndMined   = 0
	PokeEndExposed = 1

	// MinBranchSpacing - минимальный шаг между парами ответвлений
	MinBranchSpacing = 2
	// MinPokeSpacing - минимальный шаг прощупов: первый прощуп не касается коридора
	MinPokeSpacing = 2
)

// digger накапливает результат генератора и запоминает первую ошибку чтения
type digger struct {
	src world.VoxelSource
	out Outcome
	err error
}

func (d *digger) sample(p vec.Vec3, dug bool) {
	if d.err != nil {
		return
	}
	id, err := d.src.BlockAt(p)
	if err != nil {
		d.err = fmt.Errorf("sample %s: %w", p, err)
		return
	}
	d.out.Visited = append(d.out.Visited, SimpleBlock{Pos: p, ID: id, Dug: dug})
}

func (d *digger) count(mined, exposed uint32) {
	d.out.Mined += mined
	d.out.Exposed += exposed
}

// tunnelSlice - поперечный срез туннеля 2x1 в точке p (p - уровень ног)
func (d *digger) tunnelSlice(dir vec.Direction, p vec.Vec3) {
	for l := -1; l <= 1; l++ {
		side := dir.Lateral(p, l)
		d.sample(side, l == 0)
		d.sample(side.Up(1), l == 0)
	}
	d.sample(p.Up(-1), false)
	d.sample(p.Up(2), false)
	d.count(TunnelSliceMined, TunnelSliceExposed)
}

// endWall - глухая стена 2x1, q - нижний блок стены
func (d *digger) endWall(q vec.Vec3) {
	d.sample(q, false)
	d.sample(q.Up(1), false)
	d.count(TunnelEndMined, TunnelEndExposed)
}

// tunnelEnd - торец за последним срезом p
func (d *digger) tunnelEnd(dir vec.Direction, p vec.Vec3) {
	d.endWall(vec.Shift(dir, p, 1))
}

// column - срез коридора, боковые стены которого принадлежат ответвлениям
func (d *digger) column(p vec.Vec3) {
	d.sample(p.Up(-1), false)
	d.sample(p, true)
	d.sample(p.Up(1), true)
	d.sample(p.Up(2), false)
	d.count(ColumnMined, ColumnExposed)
}

// tunnel - прямой туннель 2x1 из length срезов, начиная с from, с торцом
func (d *digger) tunnel(dir vec.Direction, from vec.Vec3, length int) {
	for i := 0; i < length; i++ {
		d.tunnelSlice(dir, vec.Shift(dir, from, i))
	}
	d.tunnelEnd(dir, vec.Shift(dir, from, length-1))
}

// poke - прощуп 1x1 глубины depth, mouth - блок в стене ответвления
func (d *digger) poke(dir vec.Direction, mouth vec.Vec3, depth int) {
	d.sample(mouth, true)
	d.count(PokeMouthMined, PokeMouthExposed)

	for i := 1; i < depth; i++ {
		p := vec.Shift(dir, mouth, i)
		for l := -1; l <= 1; l++ {
			d.sample(dir.Lateral(p, l), l == 0)
		}
		d.sample(p.Up(-1), false)
		d.sample(p.Up(1), false)
		d.count(PokeSliceMined, PokeSliceExposed)
	}

	d.sample(vec.Shift(dir, mouth, depth), false)
	d.count(PokeEndMined, PokeEndExposed)
}

// skeleton - общий каркас обеих схем: пары ответвлений от коридора вдоль base.
// Пара k стоит на расстоянии k*spacing от start; между соседними парами
// коридор выкапывается срезами. Коридор закрыт торцами за start и за последней парой.
func (d *digger) skeleton(base vec.Direction, start vec.Vec3, pairs, spacing int, branch func(dir vec.Direction, from vec.Vec3)) {
	left, right := base.Perpendicular()
	d.endWall(vec.Shift(base, start, -1))
	for k := 0; k < pairs && d.err == nil; k++ {
		junction := vec.Shift(base, start, k*spacing)
		d.column(junction)
		branch(left, vec.Shift(left, junction, 1))
		branch(right, vec.Shift(right, junction, 1))

		if k == pairs-1 {
			break
		}
		d.column(vec.Shift(base, junction, 1))
		for i := 2; i <= spacing-2; i++ {
			d.tunnelSlice(base, vec.Shift(base, junction, i))
		}
		if spacing >= 3 {
			d.column(vec.Shift(base, junction, spacing-1))
		}
	}
	d.endWall(vec.Shift(base, start, (pairs-1)*spacing+1))
}

func (p BranchPattern) dig(d *digger, base vec.Direction, start vec.Vec3) {
	d.skeleton(base, start, p.Pairs, p.Spacing, func(dir vec.Direction, from vec.Vec3) {
		d.tunnel(dir, from, p.Length)
	})
}

func (p PokePattern) dig(d *digger, base vec.Direction, start vec.Vec3) {
	length := p.BranchLength()
	d.skeleton(base, start, p.Pairs, p.BranchSpacing, func(dir vec.Direction, from vec.Vec3) {
		d.tunnel(dir, from, length)
		a, b := dir.Perpendicular()
		for n := 0; n < p.PokesPerBranch; n++ {
			at := vec.Shift(dir, from, (n+1)*p.PokeSpacing-1)
			d.poke(a, vec.Shift(a, at, 1), p.PokeDepth)
			d.poke(b, vec.Shift(b, at, 1), p.PokeDepth)
		}
	})
}

// Generate прокладывает схему p от точки start в направлении base и возвращает
// все опрошенные блоки с аналитическими счётчиками. Мир не изменяется.
// Возвращает первую ошибку источника или *ParamError для неверных параметров.
func Generate(src world.VoxelSource, base vec.Direction, start vec.Vec3, p Pattern) (Outcome, error) {
	if p == nil {
		return Outcome{}, fmt.Errorf("%w: nil pattern", ErrInvalidParameter)
	}
	if err := p.Validate(); err != nil {
		return Outcome{}, err
	}
	d := &digger{src: src}
	p.dig(d, base, start)
	if d.err != nil {
		return Outcome{}, d.err
	}
	return d.out, nil
}

// Expected возвращает счётчики, которые Generate выдаст для корректных параметров
func Expected(p Pattern) (mined, exposed uint32) {
	switch p := p.(type) {
	case BranchPattern:
		n, l, s := uint32(p.Pairs), uint32(p.Length), p.Spacing
		branch := [2]uint32{TunnelSliceMined*l + TunnelEndMined, TunnelSliceExposed*l + TunnelEndExposed}
		return corridorTotals(n, s, branch)
	case PokePattern:
		n, l, s := uint32(p.Pairs), uint32(p.BranchLength()), p.BranchSpacing
		pokes, depth := uint32(p.PokesPerBranch), uint32(p.PokeDepth)
		pokeMined := PokeMouthMined + PokeSliceMined*(depth-1) + PokeEndMined
		pokeExposed := PokeMouthExposed + PokeSliceExposed*(depth-1) + PokeEndExposed
		branch := [2]uint32{
			TunnelSliceMined*l + TunnelEndMined + 2*pokes*pokeMined,
			TunnelSliceExposed*l + TunnelEndExposed + 2*pokes*pokeExposed,
		}
		return corridorTotals(n, s, branch)
	}
	return 0, 0
}

func corridorTotals(pairs uint32, spacing int, branch [2]uint32) (mined, exposed uint32) {
	mined = pairs * (ColumnMined + 2*branch[0])
	exposed = pairs * (ColumnExposed + 2*branch[1])

	segMined, segExposed := uint32(ColumnMined), uint32(ColumnExposed)
	if spacing >= 3 {
		slices := uint32(spacing - 3)
		segMined += TunnelSliceMined*slices + ColumnMined
		segExposed += TunnelSliceExposed*slices + ColumnExposed
	}
	mined += (pairs-1)*segMined + 2*TunnelEndMined
	exposed += (pairs-1)*segExposed + 2*TunnelEndExposed
	return mined, exposed
}
