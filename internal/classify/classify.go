// Package classify загружает таблицу соответствия "идентификатор блока -> категория руды".
package classify

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/annel0/minesim/internal/world"
)

// Категории руд в порядке колонок CSV
const (
	Coal     = "coal"
	Copper   = "copper"
	Iron     = "iron"
	Lapis    = "lapis"
	Redstone = "redstone"
	Gold     = "gold"
	Emeralds = "emeralds"
	Diamonds = "diamonds"
)

// Categories - упорядоченный список категорий, по которым ведётся подсчёт
var Categories = [...]string{Coal, Copper, Iron, Lapis, Redstone, Gold, Emeralds, Diamonds}

// NumCategories - количество учитываемых категорий
const NumCategories = len(Categories)

// ErrMalformedLine возвращается для строки без разделителя или с пустыми частями
var ErrMalformedLine = errors.New("malformed classification line")

// CategoryIndex возвращает позицию категории в Categories
func CategoryIndex(category string) (int, bool) {
	for i, c := range Categories {
		if c == category {
			return i, true
		}
	}
	return -1, false
}

// Table сопоставляет сырой идентификатор блока с категорией.
// Неизменяема после загрузки и разделяется между всеми задачами.
type Table struct {
	entries map[world.BlockID]string
}

// NewTable строит таблицу из готового отображения
func NewTable(entries map[world.BlockID]string) *Table {
	t := &Table{entries: make(map[world.BlockID]string, len(entries))}
	for id, cat := range entries {
		t.entries[id] = cat
	}
	return t
}

// Parse читает строки вида "<id>:<категория>". Разделитель - последнее двоеточие,
// поэтому идентификаторы с пространством имён допустимы. Пустые строки и строки,
// начинающиеся с '#', пропускаются.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{entries: make(map[world.BlockID]string)}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.LastIndex(line, ":")
		if i <= 0 || i == len(line)-1 {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedLine, lineNo, line)
		}
		id := strings.TrimSpace(line[:i])
		category := strings.TrimSpace(line[i+1:])
		if id == "" || category == "" {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedLine, lineNo, line)
		}
		t.entries[world.BlockID(id)] = category
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load читает таблицу из файла
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open classification file: %w", err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Category возвращает категорию блока. Если точного совпадения нет,
// пробует идентификатор без пространства имён.
func (t *Table) Category(id world.BlockID) (string, bool) {
	if c, ok := t.entries[id]; ok {
		return c, true
	}
	if name := world.BlockID(id.Name()); name != id {
		c, ok := t.entries[name]
		return c, ok
	}
	return "", false
}

// IsOre сообщает, есть ли блок в таблице
func (t *Table) IsOre(id world.BlockID) bool {
	_, ok := t.Category(id)
	return ok
}

// Len возвращает количество записей
func (t *Table) Len() int {
	return len(t.entries)
}

// Kind - результат классификации посещённого блока
type Kind uint8

const (
	Other Kind = iota
	LavaBlock
	OreBlock
)

// Classify относит блок к лаве, руде или прочему. Лава проверяется первой.
func (t *Table) Classify(id world.BlockID) Kind {
	if id.IsLava() {
		return LavaBlock
	}
	if t.IsOre(id) {
		return OreBlock
	}
	return Other
}
