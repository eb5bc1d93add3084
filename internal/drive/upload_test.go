package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// uploadServer fakes the session endpoint and records each PUT window.
type uploadServer struct {
	*httptest.Server

	mu      sync.Mutex
	ranges  []string
	content []byte

	failChunk int // index of the PUT that answers 500, -1 for none
}

func newUploadServer(t *testing.T) *uploadServer {
	t.Helper()
	s := &uploadServer{failChunk: -1}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /items/{id}/{name}/createUploadSession", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"uploadUrl":"%s/session/abc"}`, s.Server.URL)
	})
	mux.HandleFunc("PUT /session/abc", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		idx := len(s.ranges)
		s.ranges = append(s.ranges, r.Header.Get("Content-Range"))
		s.content = append(s.content, body...)
		fail := idx == s.failChunk
		s.mu.Unlock()

		if fail {
			http.Error(w, "storage unavailable", http.StatusInternalServerError)
			return
		}

		// The final window's Content-Range ends at total-1.
		var first, last, total int64
		fmt.Sscanf(r.Header.Get("Content-Range"), "bytes %d-%d/%d", &first, &last, &total)
		if last == total-1 {
			fmt.Fprint(w, `{"id":"uploaded","name":"big.bin","parentReference":{"id":"p","driveId":"d"},"file":{},"size":`+fmt.Sprint(total)+`}`)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{}`)
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

func TestUpload_ChunkRanges(t *testing.T) {
	srv := newUploadServer(t)

	// 250 bytes in 100-byte windows: two full windows plus a 50-byte tail.
	content := bytes.Repeat([]byte("x"), 250)
	u := NewUploader(testClient(), srv.URL, 100)

	item, err := u.Upload(context.Background(), folder("p", "parent", "root", 0),
		"big.bin", bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if item.ID != "uploaded" || item.Kind != KindFile {
		t.Errorf("item = %+v, want uploaded file", item)
	}

	want := []string{
		"bytes 0-99/250",
		"bytes 100-199/250",
		"bytes 200-249/250",
	}
	if len(srv.ranges) != len(want) {
		t.Fatalf("sent %d chunks, want %d: %v", len(srv.ranges), len(want), srv.ranges)
	}
	for i, r := range srv.ranges {
		if r != want[i] {
			t.Errorf("chunk %d range = %q, want %q", i, r, want[i])
		}
	}
	if !bytes.Equal(srv.content, content) {
		t.Error("reassembled content does not match the input")
	}
}

func TestUpload_SingleChunk(t *testing.T) {
	srv := newUploadServer(t)

	content := []byte("hello")
	u := NewUploader(testClient(), srv.URL, 100)

	item, err := u.Upload(context.Background(), folder("p", "parent", "root", 0),
		"small.txt", bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if item == nil || item.ID != "uploaded" {
		t.Fatalf("item = %v, want uploaded", item)
	}
	if len(srv.ranges) != 1 || srv.ranges[0] != "bytes 0-4/5" {
		t.Errorf("ranges = %v, want [bytes 0-4/5]", srv.ranges)
	}
}

func TestUpload_ExactMultipleOfChunkSize(t *testing.T) {
	srv := newUploadServer(t)

	content := bytes.Repeat([]byte("y"), 200)
	u := NewUploader(testClient(), srv.URL, 100)

	if _, err := u.Upload(context.Background(), folder("p", "parent", "root", 0),
		"even.bin", bytes.NewReader(content), 200); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	want := []string{"bytes 0-99/200", "bytes 100-199/200"}
	if len(srv.ranges) != 2 || srv.ranges[0] != want[0] || srv.ranges[1] != want[1] {
		t.Errorf("ranges = %v, want %v", srv.ranges, want)
	}
}

func TestUpload_AbortsOnChunkFailure(t *testing.T) {
	srv := newUploadServer(t)
	srv.failChunk = 1

	content := bytes.Repeat([]byte("z"), 250)
	u := NewUploader(testClient(), srv.URL, 100)

	_, err := u.Upload(context.Background(), folder("p", "parent", "root", 0),
		"big.bin", bytes.NewReader(content), 250)
	if err == nil {
		t.Fatal("Upload succeeded despite a failed chunk")
	}

	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("error type = %T, want *UploadError", err)
	}
	if uploadErr.Chunk != 1 {
		t.Errorf("failed chunk = %d, want 1", uploadErr.Chunk)
	}
	// No chunk after the failed one was sent.
	if len(srv.ranges) != 2 {
		t.Errorf("sent %d chunks, want 2", len(srv.ranges))
	}
}

func TestUpload_RejectsEmptyContent(t *testing.T) {
	u := NewUploader(testClient(), "http://unused", 100)
	if _, err := u.Upload(context.Background(), folder("p", "parent", "root", 0),
		"empty.txt", strings.NewReader(""), 0); err == nil {
		t.Fatal("Upload of empty content should fail")
	}
}
