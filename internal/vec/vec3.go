package vec

import "fmt"

// Vec3 представляет точку воксельного мира с целочисленными координатами.
// Y растёт вверх, Z растёт на юг, X растёт на восток.
type Vec3 struct {
	X int
	Y int
	Z int
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Up возвращает точку, смещённую по вертикали на dy
func (v Vec3) Up(dy int) Vec3 {
	return Vec3{X: v.X, Y: v.Y + dy, Z: v.Z}
}

// ToVec2 отбрасывает высоту и возвращает проекцию на плоскость XZ
func (v Vec3) ToVec2() Vec2 {
	return Vec2{X: v.X, Y: v.Z}
}

// Cube возвращает все 27 точек куба 3x3x3 с центром в v, включая сам центр.
// Порядок обхода: x, затем y, затем z.
func (v Vec3) Cube() [27]Vec3 {
	var out [27]Vec3
	i := 0
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				out[i] = Vec3{X: v.X + dx, Y: v.Y + dy, Z: v.Z + dz}
				i++
			}
		}
	}
	return out
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d, %d, %d)", v.X, v.Y, v.Z)
}
