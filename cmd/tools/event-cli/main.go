package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/minesim/internal/eventbus"
	"github.com/annel0/minesim/internal/results"
)

const (
	defaultNATSURL = "nats://localhost:4222"
	timeFormat     = "15:04:05"
)

func main() {
	var (
		natsURL    = flag.String("nats", defaultNATSURL, "адрес NATS")
		stream     = flag.String("stream", "MINESIM", "имя JetStream стрима")
		command    = flag.String("cmd", "tail", "Команда: tail, results, types")
		eventTypes = flag.String("types", "", "Фильтр типов событий (через запятую)")
		batch      = flag.String("batch", "", "Показывать только события пакета")
		dbPath     = flag.String("db", "data/results.db", "SQLite индекс результатов")
		file       = flag.String("file", "", "Фильтр по файлу региона")
		technique  = flag.String("technique", "", "Фильтр по схеме")
		limit      = flag.Int("limit", 100, "Максимум событий или строк")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *command {
	case "tail":
		if err := tailEvents(ctx, &TailOptions{
			URL:        *natsURL,
			Stream:     *stream,
			EventTypes: parseStringList(*eventTypes),
			BatchID:    *batch,
			Limit:      *limit,
		}); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "results":
		if err := showResults(ctx, os.Stdout, *dbPath, results.Query{
			File:      *file,
			Technique: *technique,
			Limit:     *limit,
		}); err != nil {
			log.Fatalf("❌ Results failed: %v", err)
		}

	case "types":
		showTypes(os.Stdout)

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, results, types")
		os.Exit(1)
	}
}

type TailOptions struct {
	URL        string
	Stream     string
	EventTypes []string
	BatchID    string
	Limit      int // 0 - до Ctrl+C
}

// tailEvents выводит события симуляции из JetStream в реальном времени
func tailEvents(ctx context.Context, opts *TailOptions) error {
	fmt.Printf("🎬 Tailing %s on %s (limit: %d)\n", opts.Stream, opts.URL, opts.Limit)

	bus, err := eventbus.NewJetStreamBus(opts.URL, opts.Stream, 0)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string, 64)
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: opts.EventTypes}, func(_ context.Context, ev *eventbus.Envelope) {
		if opts.BatchID != "" && ev.CorrelationID != opts.BatchID {
			return
		}
		select {
		case lines <- formatEvent(ev):
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	eventCount := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n📊 Total events: %d\n", eventCount)
			return nil
		case line := <-lines:
			fmt.Println(line)
			eventCount++
			if opts.Limit > 0 && eventCount >= opts.Limit {
				fmt.Printf("\n📊 Total events: %d\n", eventCount)
				return nil
			}
		}
	}
}

// formatEvent выводит событие в читаемом формате
func formatEvent(ev *eventbus.Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s [%s] %s", ev.Timestamp.Local().Format(timeFormat), ev.CorrelationID, ev.EventType, ev.ID)

	switch ev.EventType {
	case eventbus.TypeBatchFinished:
		var p eventbus.BatchPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			fmt.Fprintf(&b, "\n  Runs: %d Rows: %d Failed: %d Elapsed: %s",
				p.Runs, p.Rows, p.Failed, time.Duration(p.ElapsedMs)*time.Millisecond)
		}
	default:
		var p eventbus.RunPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			break
		}
		fmt.Fprintf(&b, "\n  Run #%d", p.RunID)
		if p.File != "" {
			fmt.Fprintf(&b, " %s/%s", p.File, p.Technique)
		}
		if p.Y != nil {
			fmt.Fprintf(&b, " y=%d", *p.Y)
		}
		if p.Phase != "" {
			fmt.Fprintf(&b, " phase=%s", p.Phase)
		}
		switch {
		case ev.EventType == eventbus.TypeRunFinished && p.Error == "":
			fmt.Fprintf(&b, " mined=%d exposed=%d lava=%d", p.Mined, p.Exposed, p.Lava)
		case ev.EventType == eventbus.TypeRunUpdated:
			fmt.Fprintf(&b, " mined=%d exposed=%d lava=%d ores=%d", p.Mined, p.Exposed, p.Lava, p.OreCount)
		}
		if p.Error != "" {
			fmt.Fprintf(&b, " error=%q", p.Error)
		}
	}
	return b.String()
}

// showResults печатает строки SQLite индекса
func showResults(ctx context.Context, w io.Writer, dbPath string, q results.Query) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("index %s: %w", dbPath, err)
	}
	idx, err := results.OpenIndex(dbPath)
	if err != nil {
		return err
	}
	defer idx.Close()

	rows, err := idx.Rows(ctx, q)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%-14s %-8s %5s %7s %7s %5s %s\n", "FILE", "SCHEME", "Y", "MINED", "EXPOSED", "LAVA", "ORES")
	for _, r := range rows {
		var total uint32
		for _, n := range r.Ores {
			total += n
		}
		fmt.Fprintf(w, "%-14s %-8s %5d %7d %7d %5d %d\n", r.File, r.Technique, r.Y, r.Mined, r.Exposed, r.Lava, total)
	}
	fmt.Fprintf(w, "\n📊 Total rows: %d\n", len(rows))
	return nil
}

// showTypes выводит известные типы событий
func showTypes(w io.Writer) {
	fmt.Fprintln(w, "📋 Available event types")
	for _, t := range []struct{ name, desc string }{
		{eventbus.TypeRunStarted, "запуск начат"},
		{eventbus.TypeRunUpdated, "смена фазы запуска"},
		{eventbus.TypeRunFinished, "запуск завершён, строка результата или ошибка"},
		{eventbus.TypeBatchFinished, "пакет завершён, итоги"},
	} {
		fmt.Fprintf(w, "Type: %s\n  Subject: %s\n  Description: %s\n", t.name, eventbus.Subject(t.name), t.desc)
	}
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
