package world

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// RegionFormatVersion - версия формата файла региона
const RegionFormatVersion = 1

// RegionHeader - первая строка файла региона в JSON. Позволяет быстро
// посмотреть содержимое без декодирования тела.
type RegionHeader struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
	X       int    `json:"x"`
	Z       int    `json:"z"`
	MinY    int    `json:"min_y"`
	Height  int    `json:"height"`
	Chunks  int    `json:"chunks"`
	Seed    int64  `json:"seed,omitempty"`
}

// ChunkRecord - сериализуемое представление чанка
type ChunkRecord struct {
	CX      int
	CZ      int
	MinY    int
	Height  int
	Palette []string
	Blocks  []uint16
}

type regionRecord struct {
	Header RegionHeader
	Chunks []ChunkRecord
}

// NewChunkRecord снимает сериализуемую копию чанка
func NewChunkRecord(c *Chunk) ChunkRecord {
	palette := make([]string, len(c.palette))
	for i, id := range c.palette {
		palette[i] = string(id)
	}
	return ChunkRecord{
		CX:      c.X,
		CZ:      c.Z,
		MinY:    c.MinY,
		Height:  c.Height,
		Palette: palette,
		Blocks:  c.blocks,
	}
}

// Chunk восстанавливает чанк из записи
func (r ChunkRecord) Chunk() (*Chunk, error) {
	palette := make([]BlockID, len(r.Palette))
	for i, s := range r.Palette {
		palette[i] = BlockID(s)
	}
	return rawChunk(r.CX, r.CZ, r.MinY, r.Height, palette, r.Blocks)
}

// WriteRegion кодирует регион: zstd поток, строка заголовка JSON, затем gob тело
func WriteRegion(w io.Writer, r *Region, seed int64) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	rec := regionRecord{
		Header: RegionHeader{
			Version: RegionFormatVersion,
			Name:    r.Name,
			X:       r.X,
			Z:       r.Z,
			MinY:    r.MinY,
			Height:  r.Height,
			Seed:    seed,
		},
	}
	for _, c := range r.Chunks() {
		rec.Chunks = append(rec.Chunks, NewChunkRecord(c))
	}
	rec.Header.Chunks = len(rec.Chunks)

	hb, err := json.Marshal(rec.Header)
	if err != nil {
		enc.Close()
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&rec); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadRegion декодирует регион, записанный WriteRegion
func ReadRegion(rd io.Reader) (*Region, RegionHeader, error) {
	dec, err := zstd.NewReader(rd)
	if err != nil {
		return nil, RegionHeader{}, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, RegionHeader{}, fmt.Errorf("%w: header: %v", ErrBadRegionFile, err)
	}
	var hdr RegionHeader
	if err := json.Unmarshal(bytes.TrimSpace(line), &hdr); err != nil {
		return nil, RegionHeader{}, fmt.Errorf("%w: header: %v", ErrBadRegionFile, err)
	}
	if hdr.Version != RegionFormatVersion {
		return nil, hdr, fmt.Errorf("%w: unsupported version %d", ErrBadRegionFile, hdr.Version)
	}

	var rec regionRecord
	if err := gob.NewDecoder(br).Decode(&rec); err != nil {
		return nil, hdr, fmt.Errorf("%w: gob decode: %v", ErrBadRegionFile, err)
	}

	region := NewRegion(hdr.X, hdr.Z, hdr.MinY, hdr.Height)
	if hdr.Name != "" {
		region.Name = hdr.Name
	}
	for _, cr := range rec.Chunks {
		c, err := cr.Chunk()
		if err != nil {
			return nil, hdr, err
		}
		if err := region.SetChunk(c); err != nil {
			return nil, hdr, err
		}
	}
	return region, hdr, nil
}

// WriteRegionFile записывает регион в файл, создавая каталог при необходимости
func WriteRegionFile(path string, r *Region, seed int64) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return WriteRegion(f, r, seed)
}

// ReadRegionFile загружает регион из файла. Имя региона берётся из имени файла.
func ReadRegionFile(path string) (*Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, _, err := ReadRegion(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	r.Name = filepath.Base(path)
	return r, nil
}

// MarshalChunk кодирует один чанк в сжатый блоб для хранения по ключу
func MarshalChunk(c *Chunk) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(NewChunkRecord(c)); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return chunkEncoder.EncodeAll(buf.Bytes(), nil), nil
}

// UnmarshalChunk декодирует блоб, созданный MarshalChunk
func UnmarshalChunk(data []byte) (*Chunk, error) {
	raw, err := chunkDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrBadRegionFile, err)
	}
	var rec ChunkRecord
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: gob decode: %v", ErrBadRegionFile, err)
	}
	return rec.Chunk()
}

// EncodeAll/DecodeAll безопасны для конкурентного использования
var (
	chunkEncoder, _ = zstd.NewWriter(nil)
	chunkDecoder, _ = zstd.NewReader(nil)
)
