// Package storage хранит снимки регионов в BadgerDB: по одному ключу на чанк
// и по одному ключу с заголовком на регион.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/minesim/internal/logging"
	"github.com/annel0/minesim/internal/world"
)

const (
	regionPrefix = "region:"
	chunkPrefix  = "chunk:"
)

// ErrNotReady возвращается после закрытия хранилища
var ErrNotReady = errors.New("хранилище не готово")

// ErrRegionNotFound - региона нет в хранилище
var ErrRegionNotFound = errors.New("регион не найден")

// ChunkStore - хранилище регионов поверх BadgerDB. Реализует те же List/Open,
// что и каталог файлов регионов, поэтому оркестратор не видит разницы.
type ChunkStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewChunkStore открывает или создаёт базу в каталоге dataPath
func NewChunkStore(dataPath string) (*ChunkStore, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, err
	}
	opts := badger.DefaultOptions(dataPath)
	opts.Logger = badgerLogger{}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &ChunkStore{
		db:      db,
		dbPath:  dataPath,
		isReady: true,
	}, nil
}

// Close закрывает хранилище
func (cs *ChunkStore) Close() error {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if !cs.isReady {
		return nil
	}

	cs.isReady = false
	return cs.db.Close()
}

func regionKey(name string) []byte {
	return []byte(regionPrefix + name)
}

func chunkKey(name string, cx, cz int) []byte {
	return []byte(fmt.Sprintf("%s%s:%d:%d", chunkPrefix, name, cx, cz))
}

// SaveRegion сохраняет регион целиком, заменяя предыдущую версию с тем же именем
func (cs *ChunkStore) SaveRegion(r *world.Region, seed int64) error {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	if !cs.isReady {
		return ErrNotReady
	}

	chunks := r.Chunks()
	header := world.RegionHeader{
		Version: world.RegionFormatVersion,
		Name:    r.Name,
		X:       r.X,
		Z:       r.Z,
		MinY:    r.MinY,
		Height:  r.Height,
		Chunks:  len(chunks),
		Seed:    seed,
	}
	data, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("ошибка сериализации заголовка: %w", err)
	}

	if err := cs.dropChunks(r.Name); err != nil {
		return err
	}

	wb := cs.db.NewWriteBatch()
	defer wb.Cancel()

	for _, c := range chunks {
		blob, err := world.MarshalChunk(c)
		if err != nil {
			return fmt.Errorf("чанк %s: %w", c, err)
		}
		if err := wb.Set(chunkKey(r.Name, c.X, c.Z), blob); err != nil {
			return fmt.Errorf("ошибка записи в BadgerDB: %w", err)
		}
	}
	// Заголовок пишется последним: регион без заголовка не виден в List
	if err := wb.Set(regionKey(r.Name), data); err != nil {
		return fmt.Errorf("ошибка записи в BadgerDB: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// Header читает заголовок региона
func (cs *ChunkStore) Header(name string) (world.RegionHeader, error) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	if !cs.isReady {
		return world.RegionHeader{}, ErrNotReady
	}

	var header world.RegionHeader
	err := cs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(regionKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &header)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return header, fmt.Errorf("%w: %s", ErrRegionNotFound, name)
	}
	if err != nil {
		return header, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return header, nil
}

// List возвращает имена сохранённых регионов по возрастанию
func (cs *ChunkStore) List() ([]string, error) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	if !cs.isReady {
		return nil, ErrNotReady
	}

	var names []string
	err := cs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(regionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), regionPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Open загружает регион со всеми чанками
func (cs *ChunkStore) Open(name string) (*world.Region, error) {
	header, err := cs.Header(name)
	if err != nil {
		return nil, err
	}

	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	if !cs.isReady {
		return nil, ErrNotReady
	}

	region := world.NewRegion(header.X, header.Z, header.MinY, header.Height)
	region.Name = name

	err = cs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix + name + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				c, err := world.UnmarshalChunk(val)
				if err != nil {
					return fmt.Errorf("%s: %w", item.Key(), err)
				}
				return region.SetChunk(c)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return region, nil
}

// DeleteRegion удаляет регион и его чанки
func (cs *ChunkStore) DeleteRegion(name string) error {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	if !cs.isReady {
		return ErrNotReady
	}
	if err := cs.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(regionKey(name))
	}); err != nil {
		return fmt.Errorf("ошибка удаления из BadgerDB: %w", err)
	}
	return cs.dropChunks(name)
}

// dropChunks удаляет все чанки региона. Вызывается под RLock.
func (cs *ChunkStore) dropChunks(name string) error {
	return cs.db.DropPrefix([]byte(chunkPrefix + name + ":"))
}

// ImportDir переносит все файлы регионов из каталога в хранилище
func (cs *ChunkStore) ImportDir(dir world.RegionDir) (int, error) {
	names, err := dir.List()
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, name := range names {
		region, header, err := readRegionWithHeader(filepath.Join(dir.Path, name))
		if err != nil {
			return imported, err
		}
		if err := cs.SaveRegion(region, header.Seed); err != nil {
			return imported, fmt.Errorf("%s: %w", name, err)
		}
		imported++
		logging.Info("📦 Регион %s импортирован (%d чанков)", name, header.Chunks)
	}
	return imported, nil
}

func readRegionWithHeader(path string) (*world.Region, world.RegionHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, world.RegionHeader{}, err
	}
	defer f.Close()

	region, header, err := world.ReadRegion(f)
	if err != nil {
		return nil, header, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	region.Name = filepath.Base(path)
	return region, header, nil
}

// badgerLogger направляет сообщения BadgerDB в общий логгер.
// Info сообщения BadgerDB слишком шумные и уходят в DEBUG.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error("🗄️ badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn("🗄️ badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug("🗄️ badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Trace("🗄️ badger: "+strings.TrimSpace(format), args...)
}
