package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/annel0/minesim/internal/config"
	"github.com/annel0/minesim/internal/logging"
	"github.com/annel0/minesim/internal/mining"
	"github.com/annel0/minesim/internal/simulation"
	"github.com/annel0/minesim/internal/storage"
	"github.com/annel0/minesim/internal/world"
)

func parseInt(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, usageError("%s: ожидалось целое число, получено %q", name, s)
	}
	return n, nil
}

func parseRange(args []string) (int, int, error) {
	if len(args) != 2 {
		return 0, 0, usageError("ожидалось два аргумента: <min> <max>")
	}
	yMin, err := parseInt("min", args[0])
	if err != nil {
		return 0, 0, err
	}
	yMax, err := parseInt("max", args[1])
	if err != nil {
		return 0, 0, err
	}
	return yMin, yMax, nil
}

func parseTechniques(s string) ([]mining.Technique, error) {
	var out []mining.Technique
	for _, name := range strings.Split(s, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		t, err := mining.ParseTechnique(name)
		if err != nil {
			return nil, usageError("%v", err)
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, usageError("не задано ни одной схемы")
	}
	return out, nil
}

// parseArgs разбирает флаги в любом месте командной строки. Отрицательные числа
// считаются позиционными аргументами, а не флагами.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if _, err := strconv.Atoi(arg); err == nil || !strings.HasPrefix(arg, "-") || arg == "-" {
			positional = append(positional, arg)
			continue
		}
		flags = append(flags, arg)
		name := strings.TrimLeft(arg, "-")
		if strings.Contains(name, "=") {
			continue
		}
		f := fs.Lookup(name)
		if f == nil || i+1 >= len(args) {
			continue
		}
		if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
			continue
		}
		i++
		flags = append(flags, args[i])
	}
	if err := fs.Parse(flags); err != nil {
		return nil, err
	}
	return append(positional, fs.Args()...), nil
}

// threadsFlags - общие флаги пакетных команд
func threadsFlags(name string, cfg *config.Config) (*flag.FlagSet, *int) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	threads := fs.Int("threads", cfg.Simulation.GetThreads(), "число рабочих горутин")
	return fs, threads
}

// execute собирает симулятор, выполняет запрос и печатает итог
func execute(ctx context.Context, cfg *config.Config, req simulation.Request, observers ...func(simulation.Event)) error {
	a, err := newApp(ctx, cfg, observers...)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			logging.Warn("⚠️ Ошибка при завершении: %v", err)
		}
	}()

	summary, err := a.run(ctx, req)
	if summary.BatchID != "" {
		fmt.Printf("Пакет %s: задач %d, запусков %d, строк %d, ошибок %d, время %s\n",
		summary.BatchID, summary.Tasks, summary.Runs, summary.Rows, summary.Failed, summary.Elapsed)
	}
	if err != nil {
		return err
	}
	a.serve(ctx)
	return nil
}

func cmdSingle(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 3 {
		return usageError("single: ожидалось <файл> <схема> <y>")
	}
	technique, err := mining.ParseTechnique(args[1])
	if err != nil {
		return usageError("%v", err)
	}
	y, err := parseInt("y", args[2])
	if err != nil {
		return err
	}

	var row *simulation.ResultRow
	capture := func(ev simulation.Event) {
		if f, ok := ev.(simulation.Finished); ok && f.Err == nil {
			r := f.Row
			row = &r
		}
	}
	if err := execute(ctx, cfg, simulation.Single{Technique: technique, File: args[0], Y: y}, capture); err != nil {
		return err
	}
	if row != nil {
		fmt.Println(strings.Join(simulation.ResultHeader(), ","))
		fmt.Println(strings.Join(row.Record(), ","))
	}
	return nil
}

func cmdRange(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 4 {
		return usageError("range: ожидалось <файл> <схема> <min> <max>")
	}
	technique, err := mining.ParseTechnique(args[1])
	if err != nil {
		return usageError("%v", err)
	}
	yMin, yMax, err := parseRange(args[2:])
	if err != nil {
		return err
	}
	return execute(ctx, cfg, simulation.Range{Technique: technique, File: args[0], YMin: yMin, YMax: yMax})
}

func cmdFull(ctx context.Context, cfg *config.Config, args []string) error {
	fs, threads := threadsFlags("full", cfg)
	techniques := fs.String("techniques", "branch,poke", "схемы через запятую")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return usageError("full: %v", err)
	}
	list, err := parseTechniques(*techniques)
	if err != nil {
		return err
	}
	yMin, yMax, err := parseRange(rest)
	if err != nil {
		return err
	}
	return execute(ctx, cfg, simulation.Techniques{Techniques: list, YMin: yMin, YMax: yMax, Threads: *threads})
}

func cmdChunk(ctx context.Context, cfg *config.Config, args []string) error {
	fs, threads := threadsFlags("chunk", cfg)
	rest, err := parseArgs(fs, args)
	if err != nil {
		return usageError("chunk: %v", err)
	}
	yMin, yMax, err := parseRange(rest)
	if err != nil {
		return err
	}
	return execute(ctx, cfg, simulation.Chunks{YMin: yMin, YMax: yMax, Threads: *threads})
}

func cmdGenerate(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	seed := fs.Int64("seed", 1, "зерно генератора")
	rx := fs.Int("x", 0, "X региона")
	rz := fs.Int("z", 0, "Z региона")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return usageError("generate: %v", err)
	}
	if len(rest) != 0 {
		return usageError("generate: лишние аргументы %v", rest)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	g := world.NewGenerator(*seed)
	logging.Info("⛏️ Генерация региона (%d,%d), seed=%d...", *rx, *rz, *seed)
	region := g.GenerateRegion(*rx, *rz)

	if err := os.MkdirAll(cfg.Paths.Regions, 0o755); err != nil {
		return err
	}
	path := filepath.Join(cfg.Paths.Regions, region.Name)
	if err := world.WriteRegionFile(path, region, *seed); err != nil {
		return err
	}
	logging.Info("💾 Регион записан в %s", path)

	if cfg.World.Backend == config.BackendBadger {
		store, err := storage.NewChunkStore(cfg.World.BadgerPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SaveRegion(region, *seed); err != nil {
			return err
		}
		logging.Info("🗄️ Регион %s сохранён в BadgerDB", region.Name)
	}
	return nil
}

func cmdImport(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return usageError("import: аргументы не принимаются")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	store, err := storage.NewChunkStore(cfg.World.BadgerPath)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ImportDir(world.RegionDir{Path: cfg.Paths.Regions})
	if err != nil {
		return err
	}
	logging.Info("📦 Импортировано регионов: %d в %s", n, cfg.World.BadgerPath)
	return nil
}
