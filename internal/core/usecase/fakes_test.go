package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/dokeep/internal/core/domain"
)

type statusCall struct {
	id     int64
	status domain.DocumentStatus
	errMsg string
}

// memRepoFake enforces content-hash uniqueness like the relational store.
type memRepoFake struct {
	mu            sync.Mutex
	nextID        int64
	docs          map[int64]*domain.Document
	hashes        map[string]int64
	tags          map[int64][]string
	statusCalls   []statusCall
	linkCalls     int
	createErr     error
	getErr        error
	processingErr error
	failStatusErr error
	commitErr     error
	finalizeErr   error
	linkErr       error
	deleteErr     error
	stale         []int64
}

func newMemRepoFake() *memRepoFake {
	return &memRepoFake{
		docs:   map[int64]*domain.Document{},
		hashes: map[string]int64{},
		tags:   map[int64][]string{},
	}
}

func (f *memRepoFake) seed(id int64, filePath string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id] = &domain.Document{ID: id, FilePath: filePath, Status: domain.StatusQueued}
	if id > f.nextID {
		f.nextID = id
	}
}

func (f *memRepoFake) doc(id int64) *domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil
	}
	copyDoc := *doc
	copyDoc.Tags = append([]string(nil), f.tags[id]...)
	return &copyDoc
}

func (f *memRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	doc.ID = f.nextID
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *memRepoFake) GetByID(_ context.Context, id int64) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %d", id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *memRepoFake) UpdateStatus(_ context.Context, id int64, status domain.DocumentStatus, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{id: id, status: status, errMsg: message})
	if status == domain.StatusProcessing && f.processingErr != nil {
		return f.processingErr
	}
	if status == domain.StatusFailed && f.failStatusErr != nil {
		return f.failStatusErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update status", fmt.Errorf("id %d", id))
	}
	doc.Status = status
	doc.StatusMessage = message
	return nil
}

func (f *memRepoFake) CommitFileHash(_ context.Context, id int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	if owner, ok := f.hashes[hash]; ok && owner != id {
		return domain.WrapError(domain.ErrDuplicateHash, "commit file hash", fmt.Errorf("held by %d", owner))
	}
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "commit file hash", fmt.Errorf("id %d", id))
	}
	f.hashes[hash] = id
	doc.FileHash = hash
	return nil
}

func (f *memRepoFake) Finalize(_ context.Context, id int64, input domain.FinalizeInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalizeErr != nil {
		return f.finalizeErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "finalize", fmt.Errorf("id %d", id))
	}
	doc.Content = input.Content
	doc.Thumbnail = input.Thumbnail
	if input.Title != "" {
		doc.Title = input.Title
	}
	doc.Summary = input.Summary
	doc.CreatedDate = input.CreatedDate
	doc.Status = domain.StatusCompleted
	doc.StatusMessage = ""
	return nil
}

func (f *memRepoFake) LinkTags(_ context.Context, id int64, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkCalls++
	if f.linkErr != nil {
		return f.linkErr
	}
	existing := f.tags[id]
	for _, name := range names {
		found := false
		for _, have := range existing {
			if have == name {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, name)
		}
	}
	f.tags[id] = existing
	return nil
}

func (f *memRepoFake) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.docs[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete", fmt.Errorf("id %d", id))
	}
	delete(f.docs, id)
	delete(f.tags, id)
	for hash, owner := range f.hashes {
		if owner == id {
			delete(f.hashes, hash)
		}
	}
	return nil
}

func (f *memRepoFake) ListStaleProcessing(context.Context, time.Time) ([]int64, error) {
	return f.stale, nil
}

type memStorageFake struct {
	mu        sync.Mutex
	objects   map[string][]byte
	saveErr   error
	removeErr error
	removed   []string
}

func newMemStorageFake() *memStorageFake {
	return &memStorageFake{objects: map[string][]byte{}}
}

func (f *memStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	return nil
}

func (f *memStorageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *memStorageFake) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, key)
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.objects, key)
	return nil
}

func (f *memStorageFake) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *memStorageFake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type queuedPayload struct {
	item domain.QueueItem
	data []byte
	err  error
}

type memQueueFake struct {
	mu         sync.Mutex
	items      []queuedPayload
	enqueueErr error
	readErr    map[string]error
	removed    []string
}

func (f *memQueueFake) Enqueue(_ context.Context, documentID int64, extension string, body io.Reader) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.items[:0]
	for _, p := range f.items {
		if p.item.DocumentID != documentID {
			kept = append(kept, p)
		}
	}
	f.items = append(kept, queuedPayload{
		item: domain.QueueItem{
			Key:        fmt.Sprintf("%d%s", documentID, extension),
			DocumentID: documentID,
			Extension:  extension,
			EnqueuedAt: time.Now(),
		},
		data: raw,
	})
	return nil
}

func (f *memQueueFake) addMalformed(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.items[:0]
	for _, p := range f.items {
		if p.item.DocumentID != documentID {
			kept = append(kept, p)
		}
	}
	f.items = append(kept, queuedPayload{
		item: domain.QueueItem{Key: key},
		err:  fmt.Errorf("%w: %s", domain.ErrMalformedQueueKey, key),
	})
}

func (f *memQueueFake) Pending(context.Context) iter.Seq2[domain.QueueItem, error] {
	f.mu.Lock()
	snapshot := append([]queuedPayload(nil), f.items...)
	f.mu.Unlock()
	return func(yield func(domain.QueueItem, error) bool) {
		for _, p := range snapshot {
			if !yield(p.item, p.err) {
				return
			}
		}
	}
}

func (f *memQueueFake) Read(_ context.Context, item domain.QueueItem) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.readErr[item.Key]; ok {
		return nil, err
	}
	for _, p := range f.items {
		if p.item.Key == item.Key {
			return p.data, nil
		}
	}
	return nil, fs.ErrNotExist
}

func (f *memQueueFake) Remove(_ context.Context, item domain.QueueItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, item.Key)
	kept := f.items[:0]
	for _, p := range f.items {
		if p.item.Key != item.Key {
			kept = append(kept, p)
		}
	}
	f.items = kept
	return nil
}

func (f *memQueueFake) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.items))
	for _, p := range f.items {
		keys = append(keys, p.item.Key)
	}
	sort.Strings(keys)
	return keys
}

type notifierFake struct {
	notified []int64
	err      error
}

func (f *notifierFake) NotifyQueued(_ context.Context, documentID int64) error {
	f.notified = append(f.notified, documentID)
	return f.err
}

func (f *notifierFake) SubscribeQueued(context.Context, func(int64)) error {
	return errors.New("not implemented")
}
