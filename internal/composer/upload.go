package composer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	pkglogger "github.com/moments-social/moments-backend/pkg/logger"
)

// Upload statuses
const (
	UploadStatusUploading = "uploading"
	UploadStatusDone      = "done"
	UploadStatusFailed    = "failed"
	UploadStatusCanceled  = "canceled"
)

// Upload is one file transfer as the composer sees it
type Upload struct {
	ID         string
	Name       string
	PreviewURL string
	FinalURL   string
	Status     string
	Percent    int
}

// UploadQueue runs independent cancellable uploads: presign, then a direct
// PUT to object storage. Consumers read items and progress only; transfer
// internals stay here.
type UploadQueue struct {
	presigner  PresignService
	httpClient *http.Client

	mu         sync.Mutex
	items      map[string]*queueItem
	order      []string
	onProgress func(Upload)
}

type queueItem struct {
	upload Upload
	cancel context.CancelFunc
}

// NewUploadQueue wires a queue against a presign service
func NewUploadQueue(presigner PresignService, onProgress func(Upload)) *UploadQueue {
	return &UploadQueue{
		presigner:  presigner,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		items:      make(map[string]*queueItem),
		onProgress: onProgress,
	}
}

// Enqueue starts an upload and returns its queue id immediately. The
// transfer runs in the background; progress arrives via the callback.
func (q *UploadQueue) Enqueue(ctx context.Context, name, contentType, previewURL string, body io.Reader, size int64) string {
	ctx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()

	item := &queueItem{
		upload: Upload{
			ID:         id,
			Name:       name,
			PreviewURL: previewURL,
			Status:     UploadStatusUploading,
		},
		cancel: cancel,
	}

	q.mu.Lock()
	q.items[id] = item
	q.order = append(q.order, id)
	q.mu.Unlock()
	q.notify(item.upload)

	go q.transfer(ctx, id, name, contentType, body, size)
	return id
}

func (q *UploadQueue) transfer(ctx context.Context, id, name, contentType string, body io.Reader, size int64) {
	grant, err := q.presigner.PresignUpload(ctx, name, contentType)
	if err != nil {
		q.fail(ctx, id, fmt.Errorf("presign: %w", err))
		return
	}

	reader := &progressReader{
		reader: body,
		total:  size,
		report: func(percent int) { q.progress(id, percent) },
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, grant.UploadURL, reader)
	if err != nil {
		q.fail(ctx, id, err)
		return
	}
	req.ContentLength = size
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		q.fail(ctx, id, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		q.fail(ctx, id, fmt.Errorf("storage returned %d", resp.StatusCode))
		return
	}

	q.mu.Lock()
	item, ok := q.items[id]
	if ok && item.upload.Status == UploadStatusUploading {
		item.upload.Status = UploadStatusDone
		item.upload.Percent = 100
		// The preview is replaced by the final public URL on completion.
		item.upload.FinalURL = grant.PublicURL
	}
	var snapshot Upload
	if ok {
		snapshot = item.upload
	}
	q.mu.Unlock()
	if ok {
		q.notify(snapshot)
	}
}

func (q *UploadQueue) fail(ctx context.Context, id string, err error) {
	status := UploadStatusFailed
	if ctx.Err() != nil {
		status = UploadStatusCanceled
	} else {
		pkglogger.GetLogger().Warn().Err(err).Str("upload_id", id).Msg("upload failed")
	}

	q.mu.Lock()
	item, ok := q.items[id]
	if ok && item.upload.Status == UploadStatusUploading {
		item.upload.Status = status
	}
	var snapshot Upload
	if ok {
		snapshot = item.upload
	}
	q.mu.Unlock()
	if ok {
		q.notify(snapshot)
	}
}

func (q *UploadQueue) progress(id string, percent int) {
	q.mu.Lock()
	item, ok := q.items[id]
	if ok && item.upload.Status == UploadStatusUploading {
		item.upload.Percent = percent
	}
	var snapshot Upload
	if ok {
		snapshot = item.upload
	}
	q.mu.Unlock()
	if ok {
		q.notify(snapshot)
	}
}

// Cancel aborts an in-flight transfer and removes its entry
func (q *UploadQueue) Cancel(id string) {
	q.mu.Lock()
	item, ok := q.items[id]
	if ok {
		delete(q.items, id)
		for i, oid := range q.order {
			if oid == id {
				q.order = append(q.order[:i], q.order[i+1:]...)
				break
			}
		}
	}
	q.mu.Unlock()
	if ok {
		item.cancel()
	}
}

// Pending reports whether any transfer is still uploading
func (q *UploadQueue) Pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.upload.Status == UploadStatusUploading {
			return true
		}
	}
	return false
}

// Items returns the queue in insertion order
func (q *UploadQueue) Items() []Upload {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := make([]Upload, 0, len(q.order))
	for _, id := range q.order {
		if item, ok := q.items[id]; ok {
			items = append(items, item.upload)
		}
	}
	return items
}

// URLs returns the final URLs of completed uploads, in order
func (q *UploadQueue) URLs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	urls := make([]string, 0, len(q.order))
	for _, id := range q.order {
		if item, ok := q.items[id]; ok && item.upload.FinalURL != "" {
			urls = append(urls, item.upload.FinalURL)
		}
	}
	return urls
}

func (q *UploadQueue) notify(u Upload) {
	if q.onProgress != nil {
		q.onProgress(u)
	}
}

// progressReader reports whole-percent progress as the body is consumed
type progressReader struct {
	reader io.Reader
	total  int64
	read   int64
	last   int
	report func(percent int)
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read += int64(n)
	if r.total > 0 {
		percent := int(r.read * 100 / r.total)
		if percent > 100 {
			percent = 100
		}
		if percent != r.last {
			r.last = percent
			r.report(percent)
		}
	}
	return n, err
}
