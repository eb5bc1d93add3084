package drive

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pomelodrive/pomelo/internal/logging"
	"github.com/pomelodrive/pomelo/internal/metrics"
)

// cacheNode links a cached item to the children known to the cache. The
// child set is a cache-local convenience, never authoritative: the folder
// payload's ChildCount decides whether it may be served.
type cacheNode struct {
	item     *Item
	children map[string]*cacheNode
}

// Cache is the in-process mirror of remote tree state. Items are reachable
// by id in O(1); a folder's children are served without a remote fetch only
// while the cached child set matches the folder's authoritative child count.
//
// All operations are pure in-memory manipulations and never fail;
// inconsistent calls (removing or moving an unknown id) are silent no-ops.
type Cache struct {
	mu     sync.Mutex
	nodes  map[string]*cacheNode
	rootID string
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{nodes: make(map[string]*cacheNode)}
}

// Add upserts an item. An existing node keeps its child links and only has
// its payload replaced. A new node is linked under its parent (if cached),
// and any already-cached node whose parent id points at the new item is
// relinked beneath it, repairing references that arrived out of order.
func (c *Cache) Add(item *Item) {
	if item == nil || item.ID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(item)
	metrics.SetCacheSize(len(c.nodes))
}

func (c *Cache) addLocked(item *Item) {
	if node, ok := c.nodes[item.ID]; ok {
		node.item = item
		return
	}

	node := &cacheNode{item: item, children: make(map[string]*cacheNode)}
	c.nodes[item.ID] = node

	if parent, ok := c.nodes[item.Parent.ID]; ok {
		parent.children[item.ID] = node
	}

	// Repair forward references: adopt cached items that already name this
	// item as their parent.
	for id, other := range c.nodes {
		if id != item.ID && other.item.Parent.ID == item.ID {
			node.children[id] = other
		}
	}
}

// AddRoot upserts the folder and records it as the distinguished root.
func (c *Cache) AddRoot(folder *Item) {
	if folder == nil || folder.ID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(folder)
	c.rootID = folder.ID
	metrics.SetCacheSize(len(c.nodes))
}

// Root returns the cached root folder, or nil if it was never recorded.
func (c *Cache) Root() *Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.nodes[c.rootID]; ok && c.rootID != "" {
		return node.item
	}
	return nil
}

// Get returns the cached item with the given id, or nil.
func (c *Cache) Get(id string) *Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.nodes[id]
	metrics.RecordCacheLookup(ok)
	if !ok {
		return nil
	}
	return node.item
}

// GetFolder returns the cached item if it exists and is a folder. A kind
// mismatch returns nil, mirroring a failed cast rather than an error.
func (c *Cache) GetFolder(id string) *Item {
	it := c.Get(id)
	if it == nil || it.Kind != KindFolder {
		return nil
	}
	return it
}

// GetFile returns the cached item if it exists and is a file.
func (c *Cache) GetFile(id string) *Item {
	it := c.Get(id)
	if it == nil || it.Kind != KindFile {
		return nil
	}
	return it
}

// Children returns the cached children of a folder, folders first and then
// ascending by name. It returns nil — demanding a remote fetch — unless the
// folder is cached and the cached child set is complete, i.e. its size
// equals the folder payload's authoritative ChildCount.
func (c *Cache) Children(parentID string) []*Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.nodes[parentID]
	if !ok || node.item.Kind != KindFolder {
		metrics.RecordCacheLookup(false)
		return nil
	}

	if len(node.children) != node.item.ChildCount {
		logging.Debug("cached child set incomplete",
			zap.String("folder", parentID),
			zap.Int("cached", len(node.children)),
			zap.Int("expected", node.item.ChildCount))
		metrics.RecordCacheLookup(false)
		return nil
	}

	metrics.RecordCacheLookup(true)
	items := make([]*Item, 0, len(node.children))
	for _, child := range node.children {
		items = append(items, child.item)
	}
	SortItems(items)
	return items
}

// Remove detaches the item from its parent's child set and drops it from
// the index. Unknown ids are ignored.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.nodes[id]
	if !ok {
		return
	}

	if parent, ok := c.nodes[node.item.Parent.ID]; ok {
		delete(parent.children, id)
	}
	delete(c.nodes, id)
	if id == c.rootID {
		c.rootID = ""
	}
	metrics.SetCacheSize(len(c.nodes))
}

// Move relinks a cached item under a new parent folder, adjusting both
// folders' child counts and rewriting the item's parent reference. This
// keeps the mirror coherent after a server-side move without a re-fetch.
// A no-op if either id is not cached.
func (c *Cache) Move(id, targetFolderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.nodes[id]
	if !ok {
		return
	}
	target, ok := c.nodes[targetFolderID]
	if !ok || target.item.Kind != KindFolder {
		return
	}

	if oldParent, ok := c.nodes[node.item.Parent.ID]; ok {
		if _, linked := oldParent.children[id]; linked {
			delete(oldParent.children, id)
		}
		if oldParent.item.Kind == KindFolder {
			oldParent.item.ChildCount--
		}
	}

	target.children[id] = node
	target.item.ChildCount++
	node.item.Parent = ParentRef{
		ID:      targetFolderID,
		DriveID: target.item.Parent.DriveID,
		Path:    target.item.Path(),
	}
}

// Clear drops every node and the root handle. Used on logout.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nodes = make(map[string]*cacheNode)
	c.rootID = ""
	metrics.SetCacheSize(0)
}

// Len returns the number of cached items.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes)
}
