package notice

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestBoard_SuppressesDuplicates(t *testing.T) {
	b := NewBoard(nil)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Notify(Notice{Kind: Error, Key: "session.expired"})
		}()
	}
	wg.Wait()
	b.Notify(Notice{Kind: Success, Key: "chat.createSuccess"})

	got := b.Flush()
	if len(got) != 2 {
		t.Fatalf("Flush() returned %d notices, want 2: %+v", len(got), got)
	}
	if got[0].Key != "session.expired" {
		t.Errorf("first notice = %q, want session.expired", got[0].Key)
	}
}

func TestBoard_FlushResetsSuppression(t *testing.T) {
	b := NewBoard(nil)
	n := Notice{Kind: Error, Key: "network"}
	b.Notify(n)
	b.Flush()
	b.Notify(n)
	if got := len(b.Pending()); got != 1 {
		t.Errorf("Pending() = %d, want 1 after flush", got)
	}
}

func TestBoard_PrintTranslates(t *testing.T) {
	b := NewBoard(func(key string) string { return "T(" + key + ")" })
	b.Notify(Notice{Kind: Success, Key: "saved"})
	b.Notify(Notice{Kind: Error, Text: "upload failed: 403"})

	var buf bytes.Buffer
	b.Print(&buf)
	out := buf.String()
	if !strings.Contains(out, "✓ T(saved)") {
		t.Errorf("expected translated success line, got %q", out)
	}
	if !strings.Contains(out, "✗ upload failed: 403") {
		t.Errorf("expected verbatim error line, got %q", out)
	}
	if len(b.Pending()) != 0 {
		t.Errorf("Print must flush the board")
	}
}
