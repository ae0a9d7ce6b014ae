package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"callqa/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "callqa.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestLastReturnsTrailingLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\nd\n")

	chunk, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(chunk.Lines) != 2 || chunk.Lines[0] != "c" || chunk.Lines[1] != "d" {
		t.Fatalf("unexpected lines %#v", chunk.Lines)
	}
	if chunk.Offset != 8 {
		t.Fatalf("expected offset 8, got %d", chunk.Offset)
	}

	all, err := logs.Last(path, 10)
	if err != nil || len(all.Lines) != 4 || all.Lines[0] != "a" {
		t.Fatalf("Last(10) = %#v, %v", all.Lines, err)
	}
}

func TestLastMissingFile(t *testing.T) {
	chunk, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 5)
	if err != nil || len(chunk.Lines) != 0 || chunk.Offset != 0 {
		t.Fatalf("unexpected result %#v, %v", chunk, err)
	}
}

func TestFromLeavesPartialLine(t *testing.T) {
	path := writeLog(t, "one\ntw")

	chunk, err := logs.From(path, 0)
	if err != nil {
		t.Fatalf("From: %v", err)
	}
	if len(chunk.Lines) != 1 || chunk.Lines[0] != "one" || chunk.Offset != 4 {
		t.Fatalf("unexpected chunk %#v", chunk)
	}

	appendLog(t, path, "o\n")
	next, err := logs.From(path, chunk.Offset)
	if err != nil {
		t.Fatalf("From: %v", err)
	}
	if len(next.Lines) != 1 || next.Lines[0] != "two" {
		t.Fatalf("unexpected follow-up chunk %#v", next)
	}
}

func TestFromRestartsAfterTruncation(t *testing.T) {
	path := writeLog(t, "fresh\n")
	chunk, err := logs.From(path, 500)
	if err != nil {
		t.Fatalf("From: %v", err)
	}
	if len(chunk.Lines) != 1 || chunk.Lines[0] != "fresh" {
		t.Fatalf("expected restart from beginning, got %#v", chunk)
	}
}

func TestFollowDeliversAppendedLines(t *testing.T) {
	path := writeLog(t, "start\n")
	chunk, err := logs.Last(path, 1)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []string
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, chunk.Offset, 10*time.Millisecond, func(line string) {
			mu.Lock()
			seen = append(seen, line)
			mu.Unlock()
		})
	}()

	appendLog(t, path, "later\n")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "later" {
		t.Fatalf("unexpected followed lines %#v", seen)
	}
}

func TestMatchesJob(t *testing.T) {
	id := "0f8b2c4e-1111-2222-3333-444455556666"
	cases := []struct {
		line string
		want bool
	}{
		{`{"msg":"stage done","job_id":"0f8b2c4e-1111-2222-3333-444455556666"}`, true},
		{"2026-01-02T03:04:05Z INFO workflow: [job 0f8b2c4e · SYNTHESIZE] turn synthesized", true},
		{"2026-01-02T03:04:05Z INFO workflow: [job 9a9a9a9a] other job", false},
		{"2026-01-02T03:04:05Z INFO api-server: listening", false},
	}
	for _, tc := range cases {
		if got := logs.MatchesJob(tc.line, id); got != tc.want {
			t.Fatalf("MatchesJob(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
	if !logs.MatchesJob("anything", "") {
		t.Fatal("empty job id should match every line")
	}
}
