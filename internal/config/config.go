package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/shirou/gopsutil/v3/cpu"
	"gopkg.in/yaml.v3"

	"github.com/annel0/minesim/internal/logging"
	"github.com/annel0/minesim/internal/mining"
	"github.com/annel0/minesim/internal/simulation"
	"github.com/annel0/minesim/internal/vec"
)

// Config корневая структура конфигурации симулятора.
type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Simulation SimulationConfig `yaml:"simulation"`
	World      WorldConfig      `yaml:"world"`
	Results    ResultsConfig    `yaml:"results"`
	EventBus   EventBusConfig   `yaml:"eventbus"`
	API        APIConfig        `yaml:"api"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Log        LogConfig        `yaml:"log"`
}

type PathsConfig struct {
	Regions        string `yaml:"regions"`
	MiningData     string `yaml:"mining_data"`
	ChunkData      string `yaml:"chunk_data"`
	ValidBlocks    string `yaml:"valid_blocks"`
	ValidBlocksURL string `yaml:"valid_blocks_url"`
}

type SimulationConfig struct {
	Direction string               `yaml:"direction"`
	StartX    int                  `yaml:"start_x"`
	StartZ    int                  `yaml:"start_z"`
	Threads   int                  `yaml:"threads"` // 0 - по числу ядер
	Branch    mining.BranchPattern `yaml:"branch"`
	Poke      mining.PokePattern   `yaml:"poke"`
}

// WorldConfig выбирает, откуда читаются регионы
type WorldConfig struct {
	Backend    string `yaml:"backend"` // files | badger
	BadgerPath string `yaml:"badger_path"`
}

type ResultsConfig struct {
	SQLitePath string `yaml:"sqlite_path"` // пусто - индекс отключён
}

type EventBusConfig struct {
	URL       string `yaml:"url"` // пусто - шина в памяти
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type APIConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  bool   `yaml:"file"` // писать ли logs/<component>_<ts>.log
}

const (
	BackendFiles  = "files"
	BackendBadger = "badger"
)

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Regions:     "regions",
			MiningData:  "mining_data",
			ChunkData:   "chunk_data",
			ValidBlocks: "configs/valid_blocks.txt",
		},
		Simulation: SimulationConfig{
			Direction: vec.South.String(),
			StartX:    255,
			StartZ:    255,
			Branch:    mining.DefaultBranchPattern(),
			Poke:      mining.DefaultPokePattern(),
		},
		World: WorldConfig{
			Backend:    BackendFiles,
			BadgerPath: "data/world",
		},
		EventBus: EventBusConfig{
			Stream:    "MINESIM",
			Retention: 24,
		},
		API: APIConfig{
			Port: 8088,
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			ServiceName: "minesim",
			SampleRate:  1.0,
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// GetThreads возвращает число рабочих горутин с приоритетом: config -> env -> число ядер
func (s *SimulationConfig) GetThreads() int {
	if s.Threads > 0 {
		return s.Threads
	}
	if envVal := os.Getenv("MINESIM_THREADS"); envVal != "" {
		if n, err := strconv.Atoi(envVal); err == nil && n > 0 {
			return n
		}
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// GetPort возвращает порт API с поддержкой fallback значений
func (a *APIConfig) GetPort() int {
	return getPortWithEnvFallback(a.Port, "MINESIM_API_PORT", 8088)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}
	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV MINESIM_CONFIG, иначе возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("MINESIM_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateDocument(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if url := os.Getenv("MINESIM_NATS_URL"); url != "" && cfg.EventBus.URL == "" {
		cfg.EventBus.URL = url
	}
	return cfg, nil
}

// ErrInvalidConfig - базовая ошибка проверки конфигурации
var ErrInvalidConfig = errors.New("invalid config")

// Validate проверяет конфигурацию целиком и возвращает все найденные ошибки
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if _, err := vec.ParseDirection(c.Simulation.Direction); err != nil {
		invalid("simulation.direction: %v", err)
	}
	if c.Simulation.Threads < 0 {
		invalid("simulation.threads must not be negative, got %d", c.Simulation.Threads)
	}
	if c.Simulation.StartX < 0 || c.Simulation.StartX >= 512 || c.Simulation.StartZ < 0 || c.Simulation.StartZ >= 512 {
		invalid("simulation start (%d,%d) is outside a region", c.Simulation.StartX, c.Simulation.StartZ)
	}
	errs = append(errs, c.Simulation.Branch.Validate(), c.Simulation.Poke.Validate())

	switch c.World.Backend {
	case BackendFiles:
		if c.Paths.Regions == "" {
			invalid("paths.regions is empty")
		}
	case BackendBadger:
		if c.World.BadgerPath == "" {
			invalid("world.badger_path is empty")
		}
	default:
		invalid("world.backend %q (want %s or %s)", c.World.Backend, BackendFiles, BackendBadger)
	}

	if c.Paths.MiningData == "" || c.Paths.ChunkData == "" || c.Paths.ValidBlocks == "" {
		invalid("paths.mining_data, paths.chunk_data and paths.valid_blocks are required")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		invalid("log.level: %v", err)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		invalid("telemetry.sample_rate must be in [0,1], got %g", c.Telemetry.SampleRate)
	}
	return errors.Join(errs...)
}

// Settings собирает параметры оркестратора
func (c *Config) Settings() (simulation.Settings, error) {
	dir, err := vec.ParseDirection(c.Simulation.Direction)
	if err != nil {
		return simulation.Settings{}, err
	}
	return simulation.Settings{
		Direction: dir,
		StartX:    c.Simulation.StartX,
		StartZ:    c.Simulation.StartZ,
		Patterns: map[mining.Technique]mining.Pattern{
			mining.Branch:         c.Simulation.Branch,
			mining.BranchWithPoke: c.Simulation.Poke,
		},
	}, nil
}
