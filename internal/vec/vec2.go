package vec

// Vec2 представляет 2D координаты на плоскости XZ (поле Y хранит Z)
type Vec2 struct {
	X, Y int
}

// ToChunkCoords преобразует глобальные координаты в координаты чанка
func (v Vec2) ToChunkCoords() Vec2 {
	return Vec2{X: v.X >> 4, Y: v.Y >> 4} // Деление на 16 с округлением вниз
}

// ToRegionCoords преобразует координаты чанка в координаты региона (32x32 чанка)
func (v Vec2) ToRegionCoords() Vec2 {
	return Vec2{X: v.X >> 5, Y: v.Y >> 5}
}

// LocalInChunk возвращает локальные координаты внутри чанка
func (v Vec2) LocalInChunk() Vec2 {
	return Vec2{X: v.X & 0xF, Y: v.Y & 0xF} // Модуль 16
}
