package drive

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pomelodrive/pomelo/internal/logging"
	"github.com/pomelodrive/pomelo/internal/metrics"
	"github.com/pomelodrive/pomelo/internal/rest"
)

// Service composes the cache, clipboard, poller and uploader over one
// transport and exposes the per-item drive operations. The server is the
// source of truth: reads consult the cache first and fall back to a fetch,
// mutations go to the server first and then update the cache to match.
type Service struct {
	client    *rest.Client
	baseURL   string
	cache     *Cache
	clipboard *Clipboard
	registry  *Registry
	poller    *Poller
	uploader  *Uploader

	mu      sync.Mutex
	driveID string
}

// Options configures a Service.
type Options struct {
	// BaseURL is the drive API root, e.g. ".../v1.0/me/drive".
	BaseURL string

	// ChunkSize overrides the upload window size (0 = DefaultChunkSize).
	ChunkSize int64

	// PollInterval overrides the async operation poll interval (0 = 1s).
	PollInterval time.Duration
}

// NewService creates the drive service.
func NewService(client *rest.Client, opts Options) *Service {
	registry := NewRegistry()
	return &Service{
		client:    client,
		baseURL:   opts.BaseURL,
		cache:     NewCache(),
		clipboard: NewClipboard(),
		registry:  registry,
		poller:    NewPoller(client, registry, opts.PollInterval),
		uploader:  NewUploader(client, opts.BaseURL, opts.ChunkSize),
	}
}

// Cache exposes the item cache.
func (s *Service) Cache() *Cache { return s.cache }

// Clipboard exposes the copy/cut clipboard.
func (s *Service) Clipboard() *Clipboard { return s.clipboard }

// Registry exposes the in-flight operation registry.
func (s *Service) Registry() *Registry { return s.registry }

// DriveID returns the drive id captured from the root fetch, or "".
func (s *Service) DriveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driveID
}

func (s *Service) itemURL(id string, segments ...string) string {
	u := s.baseURL + "/items/" + url.PathEscape(id)
	for _, seg := range segments {
		u += "/" + seg
	}
	return u
}

// Root returns the drive root, from the cache when possible.
func (s *Service) Root(ctx context.Context) (*Item, error) {
	if root := s.cache.Root(); root != nil {
		return root, nil
	}

	resp, err := s.client.Do(ctx, rest.Request{Method: "GET", URL: s.baseURL + "/root"})
	if err != nil {
		return nil, fmt.Errorf("get root: %w", err)
	}

	root, err := DecodeItem(resp.Body)
	if err != nil {
		return nil, err
	}

	s.cache.AddRoot(root)
	s.mu.Lock()
	s.driveID = root.Parent.DriveID
	s.mu.Unlock()

	logging.Info("drive root loaded", zap.String("id", root.ID), zap.String("drive_id", root.Parent.DriveID))
	return root, nil
}

// Item returns the item with the given id, from the cache when possible.
func (s *Service) Item(ctx context.Context, id string) (*Item, error) {
	if it := s.cache.Get(id); it != nil {
		return it, nil
	}
	return s.fetchItem(ctx, id)
}

// Folder returns the folder with the given id. A cached item of the wrong
// kind falls through to a fetch, which then reports the mismatch.
func (s *Service) Folder(ctx context.Context, id string) (*Item, error) {
	if it := s.cache.GetFolder(id); it != nil {
		return it, nil
	}

	it, err := s.fetchItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if it.Kind != KindFolder {
		return nil, fmt.Errorf("item %s is not a folder", id)
	}
	return it, nil
}

// fetchItem loads an item from the server and caches it.
func (s *Service) fetchItem(ctx context.Context, id string) (*Item, error) {
	resp, err := s.client.Do(ctx, rest.Request{Method: "GET", URL: s.itemURL(id)})
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}

	it, err := DecodeItem(resp.Body)
	if err != nil {
		return nil, err
	}
	s.cache.Add(it)
	return it, nil
}

// Children lists a folder's children, folders first then by name. Served
// from the cache only while the cached child set is complete; otherwise the
// authoritative listing is fetched and cached.
func (s *Service) Children(ctx context.Context, folderID string) ([]*Item, error) {
	if children := s.cache.Children(folderID); children != nil {
		return children, nil
	}

	resp, err := s.client.Do(ctx, rest.Request{Method: "GET", URL: s.itemURL(folderID, "children")})
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", folderID, err)
	}

	items, err := decodeItemList(resp.Body)
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		s.cache.Add(it)
	}

	SortItems(items)
	return items, nil
}

// CreateFolder creates a folder under parentID, failing on a name clash,
// and caches the created record.
func (s *Service) CreateFolder(ctx context.Context, parentID, name string) (*Item, error) {
	body := map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "fail",
	}

	resp, err := s.client.PostJSON(ctx, s.itemURL(parentID, "children"), body)
	if err != nil {
		return nil, fmt.Errorf("create folder %q: %w", name, err)
	}

	folder, err := DecodeItem(resp.Body)
	if err != nil {
		return nil, err
	}
	s.cache.Add(folder)

	logging.Info("folder created", zap.String("id", folder.ID), zap.String("name", folder.Name))
	return folder, nil
}

// Rename renames an item on the server and updates the cached payload in
// place.
func (s *Service) Rename(ctx context.Context, id, newName string) (*Item, error) {
	resp, err := s.client.PatchJSON(ctx, s.itemURL(id), map[string]string{"name": newName})
	if err != nil {
		return nil, fmt.Errorf("rename %s: %w", id, err)
	}

	it, err := DecodeItem(resp.Body)
	if err != nil {
		return nil, err
	}
	s.cache.Add(it)
	return it, nil
}

// Delete deletes an item on the server and drops it from the cache.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.client.Delete(ctx, s.itemURL(id)); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	s.cache.Remove(id)
	return nil
}

// Download streams a file's content into w and returns the byte count.
func (s *Service) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	body, err := s.client.Stream(ctx, rest.Request{Method: "GET", URL: s.itemURL(id, "content")})
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", id, err)
	}
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", id, err)
	}
	metrics.RecordDownload(n)
	return n, nil
}

// Upload uploads size bytes of r as a new file named name under parent and
// caches the created record.
func (s *Service) Upload(ctx context.Context, parent *Item, name string, r io.Reader, size int64) (*Item, error) {
	file, err := s.uploader.Upload(ctx, parent, name, r, size)
	if err != nil {
		return nil, err
	}
	s.cache.Add(file)
	return file, nil
}

// Copy loads the clipboard: the item will be copied on the next Paste.
func (s *Service) Copy(item *Item) {
	s.clipboard.SetCopy(item)
	logging.Debug("clipboard loaded", zap.String("op", "copy"), zap.String("id", item.ID))
}

// Cut loads the clipboard: the item will be moved on the next Paste.
func (s *Service) Cut(item *Item) {
	s.clipboard.SetCut(item)
	logging.Debug("clipboard loaded", zap.String("op", "move"), zap.String("id", item.ID))
}

// Paste executes the pending clipboard operation against targetFolder. The
// clipboard is cleared at dispatch, before any network traffic. An empty
// clipboard and a cancelled copy both return (nil, nil): the drive and the
// mirror are left exactly as they were.
func (s *Service) Paste(ctx context.Context, targetFolder *Item) (*Item, error) {
	item, op := s.clipboard.Take()
	if item == nil || op == OpNone {
		return nil, nil
	}

	switch op {
	case OpMove:
		return s.executeMove(ctx, item, targetFolder)
	case OpCopy:
		return s.executeCopy(ctx, item, targetFolder)
	default:
		return nil, nil
	}
}

// executeMove is a synchronous metadata patch on the server followed by a
// cache relink.
func (s *Service) executeMove(ctx context.Context, item *Item, target *Item) (*Item, error) {
	body := map[string]any{
		"name":            item.Name,
		"parentReference": ParentRef{ID: target.ID},
	}

	if _, err := s.client.PatchJSON(ctx, s.itemURL(item.ID), body); err != nil {
		return nil, fmt.Errorf("move %s: %w", item.ID, err)
	}

	s.cache.Move(item.ID, target.ID)
	logging.Info("item moved", zap.String("id", item.ID), zap.String("target", target.ID))
	return item, nil
}

// executeCopy dispatches a server-side copy, awaits the async job through
// the poller, then refreshes the target folder (its child count changed)
// and fetches the created item by the reported resource id.
func (s *Service) executeCopy(ctx context.Context, item *Item, target *Item) (*Item, error) {
	body := map[string]any{
		"name":            item.Name,
		"parentReference": ParentRef{ID: target.ID, DriveID: s.DriveID()},
	}

	resp, err := s.client.PostJSON(ctx, s.itemURL(item.ID, "copy"), body)
	if err != nil {
		return nil, fmt.Errorf("copy %s: %w", item.ID, err)
	}

	operationURL := resp.Location()
	if operationURL == "" {
		return nil, fmt.Errorf("copy %s: no operation location in response", item.ID)
	}

	result := s.poller.Await(ctx, operationURL)
	switch result.Outcome {
	case PollCancelled:
		logging.Info("copy cancelled", zap.String("id", item.ID))
		return nil, nil
	case PollFailed:
		return nil, fmt.Errorf("copy %s: %w", item.ID, result.Err)
	}

	// The target folder's child count changed; re-fetch so the mirror stays
	// coherent.
	if _, err := s.fetchItem(ctx, target.ID); err != nil {
		return nil, err
	}

	created, err := s.fetchItem(ctx, result.Status.ResourceID)
	if err != nil {
		return nil, err
	}

	logging.Info("item copied",
		zap.String("source", item.ID),
		zap.String("created", created.ID),
		zap.String("target", target.ID))
	return created, nil
}

// Logout cancels every in-flight operation, then clears the cache and the
// clipboard. Cancellation runs first so no poll completion writes into
// freshly cleared state.
func (s *Service) Logout() {
	s.registry.CancelAll()
	s.cache.Clear()
	s.clipboard.Clear()

	s.mu.Lock()
	s.driveID = ""
	s.mu.Unlock()

	logging.Info("session state cleared")
}
