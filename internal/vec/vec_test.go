package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShift(t *testing.T) {
	origin := Vec3{X: 10, Y: 64, Z: 10}

	assert.Equal(t, Vec3{X: 10, Y: 64, Z: 7}, Shift(North, origin, 3), "север уменьшает Z")
	assert.Equal(t, Vec3{X: 10, Y: 64, Z: 13}, Shift(South, origin, 3), "юг увеличивает Z")
	assert.Equal(t, Vec3{X: 13, Y: 64, Z: 10}, Shift(East, origin, 3), "восток увеличивает X")
	assert.Equal(t, Vec3{X: 7, Y: 64, Z: 10}, Shift(West, origin, 3), "запад уменьшает X")
}

func TestShiftEdgeCases(t *testing.T) {
	origin := Vec3{X: 1, Y: 2, Z: 3}

	for _, d := range []Direction{North, South, East, West} {
		assert.Equal(t, origin, Shift(d, origin, 0), "нулевой сдвиг для %s", d)
		assert.Equal(t, Shift(d, origin, -4), Shift(opposite(d), origin, 4), "отрицательный сдвиг для %s", d)
	}
}

func opposite(d Direction) Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	}
	return East
}

func TestPerpendicular(t *testing.T) {
	a, b := South.Perpendicular()
	assert.Equal(t, East, a)
	assert.Equal(t, West, b)

	a, b = West.Perpendicular()
	assert.Equal(t, North, a)
	assert.Equal(t, South, b)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("South")
	require.NoError(t, err)
	assert.Equal(t, South, d)

	_, err = ParseDirection("up")
	assert.Error(t, err, "вертикальных направлений нет")
}

func TestCube(t *testing.T) {
	c := Vec3{X: 0, Y: 0, Z: 0}.Cube()
	seen := make(map[Vec3]struct{}, len(c))
	for _, p := range c {
		seen[p] = struct{}{}
	}
	assert.Len(t, seen, 27, "все точки куба должны быть различны")
	assert.Contains(t, seen, Vec3{})
	assert.Contains(t, seen, Vec3{X: -1, Y: 1, Z: -1})
}

func TestChunkCoordsNegative(t *testing.T) {
	p := Vec2{X: -1, Y: 17}
	assert.Equal(t, Vec2{X: -1, Y: 1}, p.ToChunkCoords())
	assert.Equal(t, Vec2{X: 15, Y: 1}, p.LocalInChunk())
	assert.Equal(t, Vec2{X: -1, Y: 0}, Vec2{X: -1, Y: 31}.ToRegionCoords())
}
