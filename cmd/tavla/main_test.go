package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hylla/tavla/internal/adapters/storage/sqlite"
	"github.com/hylla/tavla/internal/app"
	"github.com/hylla/tavla/internal/config"
	"github.com/hylla/tavla/internal/domain"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("TAVLA_DEV_MODE", "false")
	os.Exit(m.Run())
}

// newTestRuntime opens a throwaway runtime over a temp database.
func newTestRuntime(t *testing.T) *runtime {
	t.Helper()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "tavla.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	logger, err := newRuntimeLogger(io.Discard, "tavla", false, config.Default("x").Logging, time.Now)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return &runtime{appName: "tavla", cfg: config.Default("x"), logger: logger, repo: repo}
}

func seedBoard(t *testing.T, rt *runtime, id, name string, updated time.Time) domain.Board {
	t.Helper()
	b, err := domain.NewBoard(id, name, updated)
	if err != nil {
		t.Fatalf("NewBoard: %v", err)
	}
	b.UpdatedAt = updated
	if err := rt.repo.CreateBoard(context.Background(), b); err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	return b
}

func TestResolveBoardPrefersMostRecent(t *testing.T) {
	rt := newTestRuntime(t)
	seedBoard(t, rt, "b1", "Older", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	seedBoard(t, rt, "b2", "Newer", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	got, err := resolveBoard(context.Background(), rt.repo, "")
	if err != nil {
		t.Fatalf("resolveBoard: %v", err)
	}
	if got.ID != "b2" {
		t.Fatalf("board = %s, want b2", got.ID)
	}
}

func TestResolveBoardByNameAndID(t *testing.T) {
	rt := newTestRuntime(t)
	seedBoard(t, rt, "b1", "Roadmap", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))

	byName, err := resolveBoard(context.Background(), rt.repo, "roadmap")
	if err != nil || byName.ID != "b1" {
		t.Fatalf("by name: %v %v", byName, err)
	}
	byID, err := resolveBoard(context.Background(), rt.repo, "b1")
	if err != nil || byID.ID != "b1" {
		t.Fatalf("by id: %v %v", byID, err)
	}
	if _, err := resolveBoard(context.Background(), rt.repo, "ghost"); err == nil {
		t.Fatal("unknown board should error")
	}
}

func TestResolveBoardCreatesStarter(t *testing.T) {
	rt := newTestRuntime(t)

	got, err := resolveBoard(context.Background(), rt.repo, "")
	if err != nil {
		t.Fatalf("resolveBoard: %v", err)
	}
	if got.Name != "Main" {
		t.Fatalf("starter board name = %q, want Main", got.Name)
	}
	boards, err := rt.repo.ListBoards(context.Background(), false)
	if err != nil || len(boards) != 1 {
		t.Fatalf("boards = %v, %v", boards, err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestRuntime(t)
	board := seedBoard(t, src, "b1", "Roadmap", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	card, err := domain.NewCard("c1", board.ID, domain.KindNote, 10, 20, 200, "V",
		domain.NotePayload{Markdown: "hello"}, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewCard: %v", err)
	}
	if err := src.repo.CreateCard(ctx, card); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	var out bytes.Buffer
	if err := runExport(ctx, src, "-", true, &out); err != nil {
		t.Fatalf("runExport: %v", err)
	}
	var snap app.Snapshot
	if err := json.Unmarshal(out.Bytes(), &snap); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(snap.Boards) != 1 || len(snap.Cards) != 1 {
		t.Fatalf("snapshot = %d boards, %d cards", len(snap.Boards), len(snap.Cards))
	}

	inPath := filepath.Join(t.TempDir(), "snap.json")
	if err := os.WriteFile(inPath, out.Bytes(), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	dst := newTestRuntime(t)
	if err := runImport(ctx, dst, inPath); err != nil {
		t.Fatalf("runImport: %v", err)
	}
	cards, err := dst.repo.ListCards(ctx, board.ID)
	if err != nil || len(cards) != 1 {
		t.Fatalf("imported cards = %v, %v", cards, err)
	}
	np, ok := cards[0].Payload.(domain.NotePayload)
	if !ok || np.Markdown != "hello" {
		t.Fatalf("payload = %#v", cards[0].Payload)
	}
}

func TestExportWritesFile(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	seedBoard(t, rt, "b1", "Roadmap", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	outPath := filepath.Join(t.TempDir(), "nested", "snap.json")
	if err := runExport(ctx, rt, outPath, true, io.Discard); err != nil {
		t.Fatalf("runExport: %v", err)
	}
	content, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(content), app.SnapshotVersion) {
		t.Fatal("export missing snapshot version marker")
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("TAVLA_TEST_FLAG", "true")
	if v, ok := parseBoolEnv("TAVLA_TEST_FLAG"); !ok || !v {
		t.Fatalf("got %v %v, want true true", v, ok)
	}
	t.Setenv("TAVLA_TEST_FLAG", "bogus")
	if _, ok := parseBoolEnv("TAVLA_TEST_FLAG"); ok {
		t.Fatal("bogus value should not report present")
	}
	if _, ok := parseBoolEnv("TAVLA_TEST_MISSING"); ok {
		t.Fatal("missing value should not report present")
	}
}

func TestSanitizeLogFileStem(t *testing.T) {
	cases := map[string]string{
		"tavla":     "tavla",
		"":          "tavla",
		"  ":        "tavla",
		"a/b c":     "a-b-c",
		"::":        "tavla",
		"tavla-dev": "tavla-dev",
	}
	for in, want := range cases {
		if got := sanitizeLogFileStem(in); got != want {
			t.Fatalf("sanitizeLogFileStem(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDevLogFilePathUsesAbsoluteDir(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	got, err := devLogFilePath(dir, "tavla", now)
	if err != nil {
		t.Fatalf("devLogFilePath: %v", err)
	}
	want := filepath.Join(dir, "tavla-20250601.log")
	if got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}
}

func TestRuntimeLoggerSinkFallsBackToConsole(t *testing.T) {
	logger, err := newRuntimeLogger(io.Discard, "tavla", false, config.Default("x").Logging, time.Now)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	if logger.Sink() == nil {
		t.Fatal("sink must never be nil")
	}
	logger.SetConsoleEnabled(false)
	if logger.shouldLogToSink(logger.consoleSink) {
		t.Fatal("disabled console sink should not receive output")
	}
}
