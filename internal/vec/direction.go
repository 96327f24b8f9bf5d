package vec

import (
	"fmt"
	"strings"
)

// Direction - сторона света на горизонтальной плоскости.
type Direction uint8

const (
	North Direction = iota // -Z
	South                  // +Z
	East                   // +X
	West                   // -X
)

var directionNames = [...]string{"north", "south", "east", "west"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// ParseDirection разбирает название направления без учёта регистра
func ParseDirection(s string) (Direction, error) {
	for i, name := range directionNames {
		if strings.EqualFold(s, name) {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("неизвестное направление %q", s)
}

// Shift сдвигает точку на amount блоков в направлении dir.
// Y не меняется. Отрицательный amount сдвигает в обратную сторону.
func Shift(dir Direction, c Vec3, amount int) Vec3 {
	switch dir {
	case North:
		c.Z -= amount
	case South:
		c.Z += amount
	case East:
		c.X += amount
	case West:
		c.X -= amount
	}
	return c
}

// Perpendicular возвращает два направления, перпендикулярных d.
// Для оси север-юг это (East, West), для оси восток-запад (North, South).
func (d Direction) Perpendicular() (Direction, Direction) {
	if d == North || d == South {
		return East, West
	}
	return North, South
}

// Lateral возвращает единичное смещение поперёк направления движения.
func (d Direction) Lateral(c Vec3, amount int) Vec3 {
	if d == North || d == South {
		c.X += amount
	} else {
		c.Z += amount
	}
	return c
}
