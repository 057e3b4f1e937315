package httpserve

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestServeAndShutdown(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "preseed.cfg"), []byte("d-i mirror"), 0644); err != nil {
		t.Fatal(err)
	}

	log := slog.New(slog.DiscardHandler)
	s, err := Start("127.0.0.1", 0, root, log)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Port() == 0 {
		t.Fatal("no port assigned")
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/preseed.cfg", s.Port())
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "d-i mirror" {
		t.Errorf("GET = %d %q", resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := http.Get(url); err == nil {
		t.Error("server still reachable after shutdown")
	}
}
