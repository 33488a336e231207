// Package intake validates user-supplied files and tracks the batch a run is
// started from.
package intake

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/genai-analyzer/demo/internal/models"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
)

// ErrClosed is returned when adding to a batch after Close.
var ErrClosed = errors.New("batch is closed")

// Rules is the allow-list and size limit every file is checked against.
type Rules struct {
	MaxSize  int64
	Accepted []string
}

// DefaultRules accepts PNG, JPEG, WebP and PDF up to 10 MiB.
func DefaultRules() Rules {
	return Rules{
		MaxSize:  10 * 1024 * 1024,
		Accepted: []string{"image/png", "image/jpeg", "image/webp", "application/pdf"},
	}
}

// Check returns the validation message for a file, or "" when it is
// acceptable. Type is checked before size.
func (r Rules) Check(mime string, size int64) string {
	if !r.Accepts(mime) {
		return models.ErrMsgUnsupportedType
	}
	if size > r.MaxSize {
		return models.ErrMsgTooLarge
	}
	return ""
}

// Accepts reports whether the MIME type is on the allow-list.
func (r Rules) Accepts(mime string) bool {
	mime = baseMIME(mime)
	for _, a := range r.Accepted {
		if strings.EqualFold(a, mime) {
			return true
		}
	}
	return false
}

// DetectMIME sniffs the content type of a file from its leading bytes.
func DetectMIME(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detecting type of %s: %w", path, err)
	}
	return baseMIME(mt.String()), nil
}

// DetectMIMEBytes sniffs the content type of an in-memory payload.
func DetectMIMEBytes(data []byte) string {
	return baseMIME(mimetype.Detect(data).String())
}

func baseMIME(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

// Batch is the ordered set of files the user has added. Invalid files stay
// listed with their error and are left out of Analyzable.
type Batch struct {
	mu       sync.Mutex
	rules    Rules
	previews Previewer
	items    []models.UploadedItem
	closed   bool
	log      *log.Logger
}

// NewBatch creates an empty batch. A nil previewer disables previews.
func NewBatch(rules Rules, previews Previewer) *Batch {
	return &Batch{
		rules:    rules,
		previews: previews,
		log:      logging.New("Intake"),
	}
}

// Rules returns the rules the batch validates with.
func (b *Batch) Rules() Rules {
	return b.rules
}

// AddPaths adds files, expanding directories one level deep. Entries are
// added in lexical order within a directory.
func (b *Batch) AddPaths(paths ...string) ([]models.UploadedItem, error) {
	var added []models.UploadedItem
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return added, fmt.Errorf("reading %s: %w", p, err)
		}
		if !info.IsDir() {
			item, err := b.AddPath(p)
			if err != nil {
				return added, err
			}
			added = append(added, item)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return added, fmt.Errorf("listing %s: %w", p, err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			item, err := b.AddPath(filepath.Join(p, entry.Name()))
			if err != nil {
				return added, err
			}
			added = append(added, item)
		}
	}
	return added, nil
}

// AddPath stats and sniffs a single file and adds it.
func (b *Batch) AddPath(path string) (models.UploadedItem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.UploadedItem{}, fmt.Errorf("reading %s: %w", path, err)
	}
	mime, err := DetectMIME(path)
	if err != nil {
		return models.UploadedItem{}, err
	}
	return b.Add(info.Name(), path, info.Size(), mime, info.ModTime())
}

// Add validates a file description and appends it to the batch. Image types
// get a preview handle whether or not they pass validation.
func (b *Batch) Add(name, path string, size int64, mime string, modTime time.Time) (models.UploadedItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return models.UploadedItem{}, ErrClosed
	}

	item := models.UploadedItem{
		ID:      fmt.Sprintf("%s-%d-%d-%s", name, size, modTime.UnixMilli(), uuid.New().String()[:8]),
		Name:    name,
		Path:    path,
		Size:    size,
		MIME:    baseMIME(mime),
		ModTime: modTime,
		Error:   b.rules.Check(mime, size),
	}

	if b.previews != nil && strings.HasPrefix(item.MIME, "image/") {
		ref, err := b.previews.Create(path)
		if err != nil {
			b.log.Warnf("preview for %s failed: %v", name, err)
		} else {
			item.PreviewRef = ref
		}
	}

	if item.Error != "" {
		b.log.Infof("%s rejected: %s", name, item.Error)
	}

	b.items = append(b.items, item)
	return item, nil
}

// Remove drops an item and releases its preview. It reports whether the item
// was present, so a second removal is a no-op.
func (b *Batch) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, item := range b.items {
		if item.ID != id {
			continue
		}
		b.items = append(b.items[:i], b.items[i+1:]...)
		b.release(item)
		return true
	}
	return false
}

// Items returns a copy of every item in insertion order.
func (b *Batch) Items() []models.UploadedItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.UploadedItem(nil), b.items...)
}

// Analyzable returns the items that passed validation.
func (b *Batch) Analyzable() []models.UploadedItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.UploadedItem
	for _, item := range b.items {
		if item.Analyzable() {
			out = append(out, item)
		}
	}
	return out
}

// CanAnalyze reports whether at least one item passed validation.
func (b *Batch) CanAnalyze() bool {
	return len(b.Analyzable()) > 0
}

// Len returns the number of items, valid or not.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Close releases every remaining preview. The batch is unusable afterwards.
func (b *Batch) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, item := range b.items {
		b.release(item)
	}
	b.items = nil
	return nil
}

func (b *Batch) release(item models.UploadedItem) {
	if item.PreviewRef == "" || b.previews == nil {
		return
	}
	if err := b.previews.Revoke(item.PreviewRef); err != nil {
		b.log.Warnf("revoking preview for %s: %v", item.Name, err)
	}
}
