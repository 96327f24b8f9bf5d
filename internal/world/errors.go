package world

import "errors"

var (
	// ErrOutOfBounds возвращается при обращении к точке вне загруженного региона
	ErrOutOfBounds = errors.New("coordinate outside of region bounds")
	// ErrChunkMissing возвращается, если чанк в пределах региона не был сгенерирован
	ErrChunkMissing = errors.New("chunk not present in region")
	// ErrBadRegionFile возвращается при повреждённом или чужом файле региона
	ErrBadRegionFile = errors.New("malformed region file")
)
