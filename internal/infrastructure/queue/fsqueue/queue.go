package fsqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/dokeep/internal/core/domain"
)

const tempPrefix = ".tmp-"

// Queue is a directory mailbox: one file per document named <id><ext>.
// Enqueuing an id again replaces its pending item, whatever the extension.
type Queue struct {
	dir string
}

func New(dir string) (*Queue, error) {
	if dir == "" {
		dir = "./data/queue"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}
	return &Queue{dir: dir}, nil
}

// Enqueue writes the payload through a temp file and a rename, so the worker
// never observes a partially written item.
func (q *Queue) Enqueue(_ context.Context, documentID int64, extension string, body io.Reader) error {
	if documentID <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "enqueue", fmt.Errorf("invalid document id %d", documentID))
	}
	if strings.ContainsAny(extension, `/\`) {
		return domain.WrapError(domain.ErrInvalidInput, "enqueue", fmt.Errorf("invalid extension %q", extension))
	}
	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}

	tmp, err := os.CreateTemp(q.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create queue temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("write queue payload: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync queue payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close queue payload: %w", err)
	}

	key := strconv.FormatInt(documentID, 10) + extension
	if err := os.Rename(tmpName, filepath.Join(q.dir, key)); err != nil {
		return fmt.Errorf("publish queue item: %w", err)
	}
	return q.removeSiblings(documentID, key)
}

// removeSiblings drops every other pending item of the document.
func (q *Queue) removeSiblings(documentID int64, keep string) error {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return fmt.Errorf("read queue dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if name == keep || entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if id, _ := splitKey(name); id != documentID {
			continue
		}
		if err := os.Remove(filepath.Join(q.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("replace queue item %q: %w", name, err)
		}
	}
	return nil
}

// Pending lists the directory once and yields items oldest first. A missing
// directory is an empty queue.
func (q *Queue) Pending(ctx context.Context) iter.Seq2[domain.QueueItem, error] {
	return func(yield func(domain.QueueItem, error) bool) {
		entries, err := os.ReadDir(q.dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return
			}
			yield(domain.QueueItem{}, fmt.Errorf("read queue dir: %w", err))
			return
		}

		items := make([]domain.QueueItem, 0, len(entries))
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || strings.HasPrefix(name, ".") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				// Removed between listing and stat.
				continue
			}
			item := domain.QueueItem{Key: name, EnqueuedAt: info.ModTime()}
			item.DocumentID, item.Extension = splitKey(name)
			items = append(items, item)
		}
		sort.SliceStable(items, func(i, j int) bool {
			if !items[i].EnqueuedAt.Equal(items[j].EnqueuedAt) {
				return items[i].EnqueuedAt.Before(items[j].EnqueuedAt)
			}
			return items[i].Key < items[j].Key
		})

		for _, item := range items {
			if ctx.Err() != nil {
				return
			}
			var itemErr error
			if item.DocumentID <= 0 {
				itemErr = fmt.Errorf("%w: %q", domain.ErrMalformedQueueKey, item.Key)
			}
			if !yield(item, itemErr) {
				return
			}
		}
	}
}

func (q *Queue) Read(_ context.Context, item domain.QueueItem) ([]byte, error) {
	path, err := q.path(item.Key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read queue item: %w", err)
	}
	return data, nil
}

func (q *Queue) Remove(_ context.Context, item domain.QueueItem) error {
	path, err := q.path(item.Key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove queue item: %w", err)
	}
	return nil
}

// Depth counts visible items; used for the queue depth gauge.
func (q *Queue) Depth() (int, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read queue dir: %w", err)
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			n++
		}
	}
	return n, nil
}

func (q *Queue) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) {
		return "", domain.WrapError(domain.ErrInvalidInput, "queue item", fmt.Errorf("invalid key %q", key))
	}
	return filepath.Join(q.dir, key), nil
}

// splitKey returns id 0 when the stem is not a positive integer.
func splitKey(name string) (int64, string) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	id, err := strconv.ParseInt(stem, 10, 64)
	if err != nil || id <= 0 {
		return 0, strings.ToLower(ext)
	}
	return id, strings.ToLower(ext)
}
