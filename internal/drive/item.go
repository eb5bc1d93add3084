// Package drive implements the client-side mirror of a remote cloud drive:
// the item cache, the copy/move clipboard, the asynchronous operation
// poller, and the chunked uploader, composed by Service.
package drive

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Kind discriminates the item variants.
type Kind int

const (
	KindFolder Kind = iota
	KindFile
)

// String returns the wire-ish name of the kind.
func (k Kind) String() string {
	if k == KindFolder {
		return "folder"
	}
	return "file"
}

// ParentRef locates an item's parent.
type ParentRef struct {
	ID      string `json:"id,omitempty"`
	DriveID string `json:"driveId,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Item is a folder or file record as known to the remote drive.
//
// ChildCount is meaningful only for folders and is the server's
// authoritative count, Size only for files.
type Item struct {
	ID           string
	Name         string
	LastModified time.Time
	Parent       ParentRef
	Kind         Kind
	ChildCount   int
	Size         int64
}

// IsRoot reports whether the item is the drive root. The root is the only
// item without a parent id.
func (it *Item) IsRoot() bool {
	return it.Parent.ID == ""
}

// IsFolder reports whether the item is a folder.
func (it *Item) IsFolder() bool {
	return it.Kind == KindFolder
}

// Path returns a display path derived from the parent reference.
func (it *Item) Path() string {
	if it.Parent.Path == "" {
		return "/drive/" + it.Name
	}
	decoded, err := url.PathUnescape(it.Parent.Path)
	if err != nil {
		decoded = it.Parent.Path
	}
	return decoded + "/" + it.Name
}

// wireItem is the JSON shape of a drive item. The folder/file facet objects
// double as the variant discriminator.
type wireItem struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LastModified time.Time `json:"lastModifiedDateTime"`
	Parent       ParentRef `json:"parentReference"`
	Size         int64     `json:"size"`

	Folder *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
}

// DecodeItem parses a single drive item, dispatching on the folder/file
// discriminator facets. A payload with neither facet is an error.
func DecodeItem(data []byte) (*Item, error) {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return itemFromWire(&w)
}

func itemFromWire(w *wireItem) (*Item, error) {
	it := &Item{
		ID:           w.ID,
		Name:         w.Name,
		LastModified: w.LastModified,
		Parent:       w.Parent,
	}

	switch {
	case w.Folder != nil:
		it.Kind = KindFolder
		it.ChildCount = w.Folder.ChildCount
	case w.File != nil:
		it.Kind = KindFile
		it.Size = w.Size
	default:
		return nil, fmt.Errorf("item %q: neither folder nor file", w.ID)
	}
	return it, nil
}

// decodeItemList parses a children listing ({"value": [...]}).
func decodeItemList(data []byte) ([]*Item, error) {
	var listing struct {
		Value []json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	items := make([]*Item, 0, len(listing.Value))
	for _, raw := range listing.Value {
		it, err := DecodeItem(raw)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// SortItems orders a listing the way it is presented: folders before
// files, then ascending by name.
func SortItems(items []*Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Kind != items[j].Kind {
			return items[i].Kind == KindFolder
		}
		return strings.Compare(items[i].Name, items[j].Name) < 0
	})
}

// ParentLink is the synthetic "navigate to parent" listing entry. It is not
// an Item: it never reaches the cache or the wire, always sorts first, and
// only carries the id needed to go up one level.
type ParentLink struct {
	ParentID string
}

// Label returns the display label for the entry.
func (ParentLink) Label() string { return ".." }
