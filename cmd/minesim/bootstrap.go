package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/annel0/minesim/internal/config"
	"github.com/annel0/minesim/internal/logging"
)

// bootstrap создаёт рабочие каталоги и при необходимости скачивает файл классификации
func bootstrap(ctx context.Context, cfg *config.Config) error {
	dirs := []string{cfg.Paths.MiningData, cfg.Paths.ChunkData}
	if cfg.World.Backend == config.BackendFiles {
		dirs = append(dirs, cfg.Paths.Regions)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("каталог %s: %w", dir, err)
		}
	}

	if _, err := os.Stat(cfg.Paths.ValidBlocks); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if cfg.Paths.ValidBlocksURL == "" {
		return fmt.Errorf("файл классификации %s не найден, а paths.valid_blocks_url не задан", cfg.Paths.ValidBlocks)
	}
	logging.Info("⬇️ Загрузка файла классификации из %s", cfg.Paths.ValidBlocksURL)
	return download(ctx, cfg.Paths.ValidBlocksURL, cfg.Paths.ValidBlocks)
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// download сохраняет ответ по url в path через временный файл
func download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("загрузка %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("загрузка %s: статус %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".valid_blocks-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("загрузка %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
