package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/annel0/minesim/internal/config"
	"github.com/annel0/minesim/internal/logging"
)

const usage = `minesim - оценка выхода руды и риска для схем добычи

Использование:
  minesim [-config файл] <команда> [аргументы]

Команды:
  single <файл> <схема> <y>               одна схема, один файл, одна высота
  range <файл> <схема> <min> <max>        одна схема, один файл, высоты [min, max)
  full [-threads N] [-techniques branch,poke] <min> <max>
                                          все схемы по всем файлам регионов
  chunk [-threads N] <min> <max>          послойный анализ всех чанков
  generate [-seed S] [-x X] [-z Z]        создать синтетический файл региона
  import                                  перенести файлы регионов в BadgerDB
  help                                    эта справка

Схемы: branch, poke. Конфигурация также читается из MINESIM_CONFIG.
`

// exitError задаёт код выхода вместе с ошибкой
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("minesim", flag.ContinueOnError)
	configPath := fs.String("config", "", "путь к YAML конфигурации")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 || fs.Arg(0) == "help" {
		fmt.Print(usage)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("❌ Ошибка загрузки конфигурации: %v", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("❌ Неверная конфигурация: %v", err)
		return 1
	}

	if err := initLogging(cfg); err != nil {
		log.Printf("❌ Ошибка инициализации логирования: %v", err)
		return 1
	}
	defer logging.CloseDefaultLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	if err := dispatch(ctx, cfg, cmd, cmdArgs); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.code == 2 {
				fmt.Fprintf(os.Stderr, "❌ %v\n\n%s", ee.err, usage)
			} else {
				logging.Error("❌ %v", ee.err)
			}
			return ee.code
		}
		logging.Error("❌ %v", err)
		return 1
	}
	return 0
}

func initLogging(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if cfg.Log.File {
		if err := logging.InitDefaultLogger("minesim"); err != nil {
			return err
		}
	}
	logging.Default().SetLevels(level, logging.DEBUG)
	return nil
}

func dispatch(ctx context.Context, cfg *config.Config, cmd string, args []string) error {
	switch cmd {
	case "single":
		return cmdSingle(ctx, cfg, args)
	case "range":
		return cmdRange(ctx, cfg, args)
	case "full":
		return cmdFull(ctx, cfg, args)
	case "chunk":
		return cmdChunk(ctx, cfg, args)
	case "generate":
		return cmdGenerate(ctx, cfg, args)
	case "import":
		return cmdImport(ctx, cfg, args)
	default:
		return usageError("неизвестная команда %q", cmd)
	}
}
