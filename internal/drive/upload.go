package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/pomelodrive/pomelo/internal/logging"
	"github.com/pomelodrive/pomelo/internal/metrics"
	"github.com/pomelodrive/pomelo/internal/rest"
)

// DefaultChunkSize is the upload window size: 60 MiB, the largest single
// request the upload API accepts.
const DefaultChunkSize int64 = 62914560

// UploadError reports a failed chunk. The whole upload is aborted; nothing
// is committed to the cache and a retry starts a brand-new session.
type UploadError struct {
	Chunk int
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed at chunk %d: %v", e.Chunk, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Uploader sends large payloads as a sequence of fixed-size windows
// against a server-issued upload session.
type Uploader struct {
	client    *rest.Client
	baseURL   string
	chunkSize int64
}

// NewUploader creates an uploader. chunkSize <= 0 selects DefaultChunkSize.
func NewUploader(client *rest.Client, baseURL string, chunkSize int64) *Uploader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Uploader{client: client, baseURL: baseURL, chunkSize: chunkSize}
}

// Upload creates a new file named name under parent from size bytes of r.
// It opens an upload session, PUTs every full window with its byte range,
// and decodes the created file record from the final chunk's response.
func (u *Uploader) Upload(ctx context.Context, parent *Item, name string, r io.Reader, size int64) (*Item, error) {
	if size <= 0 {
		return nil, fmt.Errorf("upload %s: content is empty", name)
	}

	uploadURL, err := u.createSession(ctx, parent.ID, name)
	if err != nil {
		return nil, err
	}

	logging.Info("upload session opened",
		zap.String("name", name),
		zap.String("parent", parent.ID),
		zap.Int64("size", size),
		zap.Int64("chunk_size", u.chunkSize))

	// All but the final window: exactly chunkSize bytes each.
	totalChunks := int((size + u.chunkSize - 1) / u.chunkSize)
	buf := make([]byte, u.chunkSize)

	for i := 0; i < totalChunks-1; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, &UploadError{Chunk: i, Err: fmt.Errorf("read content: %w", err)}
		}

		offset := int64(i) * u.chunkSize
		if err := u.sendChunk(ctx, uploadURL, buf, offset, offset+u.chunkSize-1, size); err != nil {
			metrics.RecordUploadChunk(u.chunkSize, false)
			return nil, &UploadError{Chunk: i, Err: err}
		}
		metrics.RecordUploadChunk(u.chunkSize, true)
	}

	// Final window: the remainder, whose response is the created file.
	last := totalChunks - 1
	offset := int64(last) * u.chunkSize
	tail := buf[:size-offset]
	if _, err := io.ReadFull(r, tail); err != nil {
		return nil, &UploadError{Chunk: last, Err: fmt.Errorf("read content: %w", err)}
	}

	file, err := u.sendLastChunk(ctx, uploadURL, tail, offset, size)
	if err != nil {
		metrics.RecordUploadChunk(int64(len(tail)), false)
		return nil, &UploadError{Chunk: last, Err: err}
	}
	metrics.RecordUploadChunk(int64(len(tail)), true)

	logging.Info("upload completed",
		zap.String("id", file.ID),
		zap.String("name", file.Name),
		zap.Int64("size", file.Size))
	return file, nil
}

func (u *Uploader) createSession(ctx context.Context, parentID, name string) (string, error) {
	sessionURL := fmt.Sprintf("%s/items/%s:/%s:/createUploadSession",
		u.baseURL, url.PathEscape(parentID), url.PathEscape(name))

	resp, err := u.client.PostJSON(ctx, sessionURL, map[string]any{})
	if err != nil {
		return "", fmt.Errorf("create upload session: %w", err)
	}

	var session struct {
		UploadURL string `json:"uploadUrl"`
	}
	if err := json.Unmarshal(resp.Body, &session); err != nil {
		return "", fmt.Errorf("decode upload session: %w", err)
	}
	if session.UploadURL == "" {
		return "", fmt.Errorf("upload session has no uploadUrl")
	}
	return session.UploadURL, nil
}

// sendChunk PUTs one intermediate window, bytes [first,last] of total.
func (u *Uploader) sendChunk(ctx context.Context, uploadURL string, data []byte, first, last, total int64) error {
	_, err := u.put(ctx, uploadURL, data, first, last, total)
	return err
}

// sendLastChunk PUTs the final window and decodes the created file record
// from the response body.
func (u *Uploader) sendLastChunk(ctx context.Context, uploadURL string, data []byte, first, total int64) (*Item, error) {
	resp, err := u.put(ctx, uploadURL, data, first, total-1, total)
	if err != nil {
		return nil, err
	}
	return DecodeItem(resp.Body)
}

func (u *Uploader) put(ctx context.Context, uploadURL string, data []byte, first, last, total int64) (*rest.Response, error) {
	header := http.Header{}
	header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", first, last, total))

	// Upload session URLs are pre-authorized.
	return u.client.Do(ctx, rest.Request{
		Method: http.MethodPut,
		URL:    uploadURL,
		Body:   data,
		Header: header,
		NoAuth: true,
	})
}
