package mining

import (
	"errors"
	"fmt"
	"strings"

	"github.com/annel0/minesim/internal/vec"
)

// Technique - схема добычи
type Technique uint8

const (
	Branch         Technique = iota // Ветвистая добыча
	BranchWithPoke                  // Ветвистая добыча с боковыми прощупами
)

// Techniques - все поддерживаемые схемы
var Techniques = []Technique{Branch, BranchWithPoke}

func (t Technique) String() string {
	switch t {
	case Branch:
		return "branch"
	case BranchWithPoke:
		return "poke"
	}
	return fmt.Sprintf("technique(%d)", uint8(t))
}

// ParseTechnique разбирает имя схемы ("branch" или "poke")
func ParseTechnique(s string) (Technique, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "branch":
		return Branch, nil
	case "poke", "branch_with_poke", "branchwithpoke":
		return BranchWithPoke, nil
	}
	return 0, fmt.Errorf("%w: unknown technique %q", ErrInvalidParameter, s)
}

// ErrInvalidParameter - базовая ошибка неверных параметров схемы
var ErrInvalidParameter = errors.New("invalid mining parameter")

// ParamError описывает конкретный неверный параметр
type ParamError struct {
	Technique Technique
	Param     string
	Value     int
	Min       int
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: parameter %s=%d must be at least %d", e.Technique, e.Param, e.Value, e.Min)
}

func (e *ParamError) Unwrap() error { return ErrInvalidParameter }

func atLeast(t Technique, name string, value, min int) error {
	if value < min {
		return &ParamError{Technique: t, Param: name, Value: value, Min: min}
	}
	return nil
}

// Pattern - параметры одной из схем. Закрытый набор реализаций: BranchPattern и PokePattern.
type Pattern interface {
	Technique() Technique
	Validate() error
	dig(d *digger, base vec.Direction, start vec.Vec3)
}

// BranchPattern - пары ответвлений длины Length от центрального коридора через каждые Spacing блоков
type BranchPattern struct {
	Pairs   int `yaml:"pairs" json:"pairs"`
	Length  int `yaml:"length" json:"length"`
	Spacing int `yaml:"spacing" json:"spacing"`
}

// DefaultBranchPattern - 16 пар ответвлений по 160 блоков через 5 блоков
func DefaultBranchPattern() BranchPattern {
	return BranchPattern{Pairs: 16, Length: 160, Spacing: 5}
}

func (BranchPattern) Technique() Technique { return Branch }

// Validate проверяет параметры
func (p BranchPattern) Validate() error {
	return errors.Join(
		atLeast(Branch, "pairs", p.Pairs, 1),
		atLeast(Branch, "length", p.Length, 1),
		atLeast(Branch, "spacing", p.Spacing, MinBranchSpacing),
	)
}

// PokePattern - ответвления с прощупами глубины PokeDepth в обе стороны через каждые PokeSpacing блоков
type PokePattern struct {
	Pairs          int `yaml:"pairs" json:"pairs"`
	PokesPerBranch int `yaml:"pokes_per_branch" json:"pokes_per_branch"`
	PokeSpacing    int `yaml:"poke_spacing" json:"poke_spacing"`
	BranchSpacing  int `yaml:"branch_spacing" json:"branch_spacing"`
	PokeDepth      int `yaml:"poke_depth" json:"poke_depth"`
}

// DefaultPokePattern - 10 пар по 25 прощупов через 5 блоков, пары через 12 блоков, глубина 5
func DefaultPokePattern() PokePattern {
	return PokePattern{Pairs: 10, PokesPerBranch: 25, PokeSpacing: 5, BranchSpacing: 12, PokeDepth: 5}
}

func (PokePattern) Technique() Technique { return BranchWithPoke }

// Validate проверяет параметры. Прощупы не должны касаться коридора,
// а встречные прощупы соседних пар не должны сходиться.
func (p PokePattern) Validate() error {
	return errors.Join(
		atLeast(BranchWithPoke, "pairs", p.Pairs, 1),
		atLeast(BranchWithPoke, "pokes_per_branch", p.PokesPerBranch, 1),
		atLeast(BranchWithPoke, "poke_spacing", p.PokeSpacing, MinPokeSpacing),
		atLeast(BranchWithPoke, "branch_spacing", p.BranchSpacing, p.MinBranchSpacing()),
		atLeast(BranchWithPoke, "poke_depth", p.PokeDepth, 1),
	)
}

// MinBranchSpacing - наименьший шаг пар, при котором прощупы глубины PokeDepth
// от соседних пар не пересекаются
func (p PokePattern) MinBranchSpacing() int {
	if p.PokeDepth < 1 {
		return MinBranchSpacing
	}
	return max(MinBranchSpacing, 2*p.PokeDepth+2)
}

// BranchLength - длина каждого ответвления
func (p PokePattern) BranchLength() int {
	return p.PokesPerBranch * p.PokeSpacing
}

// DefaultPattern возвращает параметры схемы по умолчанию
func DefaultPattern(t Technique) (Pattern, error) {
	switch t {
	case Branch:
		return DefaultBranchPattern(), nil
	case BranchWithPoke:
		return DefaultPokePattern(), nil
	}
	return nil, fmt.Errorf("%w: unknown technique %d", ErrInvalidParameter, t)
}
