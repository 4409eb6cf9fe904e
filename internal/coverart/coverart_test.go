package coverart_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kingoacquire/internal/coverart"
)

func TestDownload_WritesImageBytes(t *testing.T) {
	jpegMagic := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpegMagic)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "cover.jpg")
	client := coverart.NewClient(5 * time.Second)

	if err := client.Download(srv.URL, dest); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if len(got) != len(jpegMagic) {
		t.Errorf("wrote %d bytes, want %d", len(got), len(jpegMagic))
	}
}

func TestDownload_RejectsNonImageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>not an image</body></html>"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "cover.jpg")
	client := coverart.NewClient(5 * time.Second)

	if err := client.Download(srv.URL, dest); err == nil {
		t.Error("Download() should reject non-image responses")
	}
}

func TestDownload_RejectsNon200Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "cover.jpg")
	client := coverart.NewClient(5 * time.Second)

	if err := client.Download(srv.URL, dest); err == nil {
		t.Error("Download() should error on non-200 status")
	}
}
