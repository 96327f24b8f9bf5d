package world

import (
	"os"
	"path/filepath"
	"sort"
)

// RegionDir - каталог с файлами регионов
type RegionDir struct {
	Path string
}

// List возвращает имена файлов регионов в каталоге, отсортированные по имени
func (d RegionDir) List() ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, _, ok := ParseRegionFileName(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Open загружает регион по имени файла
func (d RegionDir) Open(name string) (*Region, error) {
	return ReadRegionFile(filepath.Join(d.Path, name))
}
