package api

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/avezek/docuchat/internal/logger"
)

func newFilesApp(t *testing.T) (*fiber.App, string) {
	t.Helper()
	dir := t.TempDir()
	h := &Handler{pdfDir: dir, log: logger.NewNop()}
	app := fiber.New()
	app.Get("/files", h.ListFiles)
	app.Delete("/files/:filename", h.DeleteFile)
	return app, dir
}

func listFiles(t *testing.T, app *fiber.App) []string {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", "/files", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status: want=200 got=%d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out struct {
		Files []string `json:"files"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal %q: %v", body, err)
	}
	return out.Files
}

func TestListFilesEmpty(t *testing.T) {
	app, _ := newFilesApp(t)
	if got := listFiles(t, app); len(got) != 0 {
		t.Fatalf("files: want=0 got=%v", got)
	}
}

func TestListFilesReturnsUploads(t *testing.T) {
	app, dir := newFilesApp(t)
	for _, name := range []string{"a.pdf", "b.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("pdf"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got := listFiles(t, app)
	sort.Strings(got)
	if len(got) != 2 || got[0] != "a.pdf" || got[1] != "b.pdf" {
		t.Fatalf("files: want=[a.pdf b.pdf] got=%v", got)
	}
}

func TestDeleteFileRemovesFromDisk(t *testing.T) {
	app, dir := newFilesApp(t)
	path := filepath.Join(dir, "doomed.pdf")
	if err := os.WriteFile(path, []byte("pdf"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := app.Test(httptest.NewRequest("DELETE", "/files/doomed.pdf", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status: want=200 got=%d", resp.StatusCode)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("file still on disk after delete")
	}
}

func TestDeleteMissingFileIs404(t *testing.T) {
	app, _ := newFilesApp(t)
	resp, err := app.Test(httptest.NewRequest("DELETE", "/files/nope.pdf", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status: want=404 got=%d", resp.StatusCode)
	}
}

func TestDeleteFileStripsPathComponents(t *testing.T) {
	app, dir := newFilesApp(t)
	outside := filepath.Join(filepath.Dir(dir), "outside.pdf")
	if err := os.WriteFile(outside, []byte("pdf"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := app.Test(httptest.NewRequest("DELETE", "/files/..%2Foutside.pdf", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if _, err := os.Stat(outside); err != nil {
		t.Fatal("file outside the upload dir was deleted")
	}
}
