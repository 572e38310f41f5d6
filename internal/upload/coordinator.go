// Package upload runs image uploads for a product form. Each selection of files is a
// batch; every file in a batch is sent as its own request, all at once.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"storeadmin/internal/events"
	"storeadmin/internal/models"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoFiles is returned by Start when the selection is empty.
var ErrNoFiles = errors.New("upload: no files selected")

// Uploader stores one file and returns the URLs it is reachable at.
type Uploader interface {
	Upload(ctx context.Context, file models.UploadFile) ([]string, error)
}

// ImageSink receives uploaded URLs. AppendImages returns the full list after appending.
type ImageSink interface {
	AppendImages(urls ...string) []string
}

// Batch tracks the files picked in one upload action.
type Batch struct {
	ID    uuid.UUID
	Files int

	done chan struct{}
	mu   sync.Mutex
	urls []string
	err  error
}

// Wait blocks until every request of the batch has settled and returns the combined
// per-file error, if any.
func (b *Batch) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return b.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// URLs returns the links collected so far, in completion order.
func (b *Batch) URLs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.urls))
	copy(out, b.urls)
	return out
}

func (b *Batch) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Batch) record(urls []string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.err = multierr.Append(b.err, err)
		return
	}
	b.urls = append(b.urls, urls...)
}

// Coordinator owns the uploading flag of one form. The flag is true while any file of
// any batch is still outstanding. Flag transitions are published under mu so subscribers
// see them in the order they happened. The publisher must not call back into the Coordinator.
type Coordinator struct {
	uploader  Uploader
	sink      ImageSink
	publisher events.Publisher
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	pending map[uuid.UUID]int
	batches map[uuid.UUID]*Batch
}

// NewCoordinator wires an uploader to the image list it appends to. publisher may be nil.
func NewCoordinator(uploader Uploader, sink ImageSink, publisher events.Publisher, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		uploader:  uploader,
		sink:      sink,
		publisher: publisher,
		logger:    logger,
		pending:   make(map[uuid.UUID]int),
		batches:   make(map[uuid.UUID]*Batch),
	}
}

// Start sends every file concurrently and returns immediately. ctx must outlive the
// uploads; callers serving a request pass a context detached from its cancellation.
func (c *Coordinator) Start(ctx context.Context, files []models.UploadFile) (*Batch, error) {
	if len(files) == 0 {
		c.logger.Errorw("upload started without files")
		return nil, ErrNoFiles
	}

	batch := &Batch{
		ID:    uuid.New(),
		Files: len(files),
		done:  make(chan struct{}),
	}

	c.mu.Lock()
	if len(c.pending) == 0 {
		c.publish(events.Event{Kind: events.KindUploadingChanged, Value: true})
	}
	c.pending[batch.ID] = len(files)
	c.batches[batch.ID] = batch
	c.mu.Unlock()

	c.logger.Infow("upload batch started", "batch_id", batch.ID, "files", len(files))

	go c.run(ctx, batch, files)
	return batch, nil
}

func (c *Coordinator) run(ctx context.Context, batch *Batch, files []models.UploadFile) {
	var g errgroup.Group
	for _, file := range files {
		file := file
		g.Go(func() error {
			urls, err := c.uploader.Upload(ctx, file)
			if err != nil {
				err = fmt.Errorf("upload %s: %w", file.Filename, err)
				batch.record(nil, err)
				c.logger.Warnw("image upload failed", "batch_id", batch.ID, "file", file.Filename, "error", err)
				c.publish(events.Event{Kind: events.KindUploadFailed, BatchID: batch.ID.String(), Error: err.Error()})
			} else {
				batch.record(urls, nil)
				images := c.sink.AppendImages(urls...)
				c.publish(events.Event{Kind: events.KindImagesChanged, BatchID: batch.ID.String(), Value: images})
			}
			c.settleFile(batch.ID)
			return nil
		})
	}
	_ = g.Wait()

	close(batch.done)
	c.logger.Infow("upload batch settled", "batch_id", batch.ID, "urls", len(batch.URLs()), "failed", len(multierr.Errors(batch.Err())))
}

// settleFile decrements the batch's pending count and clears the flag once nothing is outstanding.
func (c *Coordinator) settleFile(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending[id]--
	if c.pending[id] <= 0 {
		delete(c.pending, id)
		delete(c.batches, id)
	}
	if len(c.pending) == 0 {
		c.publish(events.Event{Kind: events.KindUploadingChanged, Value: false})
	}
}

// Uploading reports whether any file of any batch is still outstanding.
func (c *Coordinator) Uploading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) > 0
}

// InFlight returns the batches that have not settled yet.
func (c *Coordinator) InFlight() []*Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Batch, 0, len(c.batches))
	for _, b := range c.batches {
		out = append(out, b)
	}
	return out
}

// PendingFiles is the number of outstanding requests across all batches.
func (c *Coordinator) PendingFiles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, count := range c.pending {
		n += count
	}
	return n
}

func (c *Coordinator) publish(e events.Event) {
	if c.publisher != nil {
		c.publisher.Publish(e)
	}
}
