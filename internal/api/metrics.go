package api

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ServerMetrics собирает показатели процесса симулятора для /api/summary
type ServerMetrics struct {
	StartTime time.Time

	once sync.Once
	proc *process.Process
}

// ProcessStats - снимок показателей процесса
type ProcessStats struct {
	Uptime     string  `json:"uptime"`
	RSSMB      float64 `json:"rss_mb"`
	HeapMB     float64 `json:"heap_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
	NumCPU     int     `json:"num_cpu"`
}

// NewServerMetrics создает новый экземпляр метрик
func NewServerMetrics() *ServerMetrics {
	return &ServerMetrics{
		StartTime: time.Now(),
	}
}

func (sm *ServerMetrics) process() *process.Process {
	sm.once.Do(func() {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err == nil {
			sm.proc = p
		}
	})
	return sm.proc
}

// GetUptime возвращает время работы процесса
func (sm *ServerMetrics) GetUptime() string {
	uptime := time.Since(sm.StartTime)

	hours := int(uptime.Hours())
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}

// GetMemoryUsage возвращает резидентную память процесса в MB.
// Если ОС не отдаёт RSS, используется размер кучи Go.
func (sm *ServerMetrics) GetMemoryUsage() float64 {
	if p := sm.process(); p != nil {
		if info, err := p.MemoryInfo(); err == nil && info.RSS > 0 {
			return float64(info.RSS) / 1024 / 1024
		}
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Sys) / 1024 / 1024
}

// GetCPUUsage возвращает загрузку CPU процессом в процентах
func (sm *ServerMetrics) GetCPUUsage() (float64, error) {
	p := sm.process()
	if p == nil {
		return 0, fmt.Errorf("процесс %d недоступен", os.Getpid())
	}
	return p.CPUPercent()
}

// Snapshot собирает все показатели. Ошибка CPU не мешает остальным полям.
func (sm *ServerMetrics) Snapshot() ProcessStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := ProcessStats{
		Uptime:     sm.GetUptime(),
		RSSMB:      sm.GetMemoryUsage(),
		HeapMB:     float64(m.HeapAlloc) / 1024 / 1024,
		Goroutines: runtime.NumGoroutine(),
		NumCPU:     runtime.NumCPU(),
	}
	if cpu, err := sm.GetCPUUsage(); err == nil {
		stats.CPUPercent = cpu
	}
	return stats
}
