package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AviroopPaul/atlas-ai/internal/chunk"
	"github.com/AviroopPaul/atlas-ai/internal/extract"
	"github.com/AviroopPaul/atlas-ai/internal/storage"
)

// FileStore abstracts the file record operations the worker needs.
type FileStore interface {
	GetFileByID(id int64) (storage.FileRecord, error)
	MarkFileProcessed(id int64) error
	ListUnprocessedFileIDs() ([]int64, error)
}

// ObjectStore downloads stored blobs.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Extractor converts raw file bytes to plain text.
type Extractor interface {
	Extract(data []byte, fileType extract.FileType) (string, error)
}

// Chunker splits text into metadata-tagged pieces.
type Chunker interface {
	Chunk(text string, base chunk.Metadata) []chunk.Piece
}

// VectorIndex stores chunks in per-file collections.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, name string) error
	AddChunks(ctx context.Context, collection string, documents []string, metadatas []map[string]any, ids []string) ([]string, error)
}

// Worker drains the queue and indexes each file. A failed file is logged and
// left unprocessed; the next startup sweep retries it.
type Worker struct {
	queue     *Queue
	store     FileStore
	objects   ObjectStore
	extractor Extractor
	chunker   Chunker
	vectors   VectorIndex
	poll      time.Duration
	logger    *slog.Logger
	done      chan struct{}
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(queue *Queue, store FileStore, objects ObjectStore, extractor Extractor, chunker Chunker, vectors VectorIndex, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		queue:     queue,
		store:     store,
		objects:   objects,
		extractor: extractor,
		chunker:   chunker,
		vectors:   vectors,
		poll:      pollInterval,
		logger:    slog.Default(),
		done:      make(chan struct{}),
	}
}

// Run sweeps unprocessed files into the queue, then polls it until ctx is
// cancelled. A dequeued file is always carried to completion: cancellation
// stops the loop between files, never the in-flight one. Done is closed
// when Run returns.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	if err := w.Sweep(); err != nil {
		w.logger.Error("startup sweep failed", "error", err)
	}

	taskCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(taskCtx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// Done reports when Run has returned; shutdown waits on it (bounded) so the
// in-flight file finishes before the process exits.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Sweep enqueues every file still marked unprocessed. It runs at startup so
// files whose queue entry was lost to a crash get picked up again.
func (w *Worker) Sweep() error {
	ids, err := w.store.ListUnprocessedFileIDs()
	if err != nil {
		return fmt.Errorf("listing unprocessed files: %w", err)
	}
	for _, id := range ids {
		w.queue.Enqueue(id)
	}
	if len(ids) > 0 {
		w.logger.Info("re-enqueued unprocessed files", "count", len(ids))
	}
	return nil
}

// RunOnce processes a single queued file.
// Returns true if a file was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	fileID, ok := w.queue.TryDequeue()
	if !ok {
		return false, nil
	}

	if err := w.process(ctx, fileID); err != nil {
		w.logger.Warn("file processing failed", "file_id", fileID, "error", err)
		return true, nil
	}
	return true, nil
}

func (w *Worker) process(ctx context.Context, fileID int64) error {
	rec, err := w.store.GetFileByID(fileID)
	if err != nil {
		return fmt.Errorf("loading file %d: %w", fileID, err)
	}
	if rec.Processed {
		return nil
	}

	data, err := w.objects.Get(ctx, rec.StorageKey)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", rec.StorageKey, err)
	}

	fileType, err := extract.ParseFileType(rec.FileType)
	if err != nil {
		return fmt.Errorf("resolving file type: %w", err)
	}

	text, err := w.extractor.Extract(data, fileType)
	if err != nil {
		return fmt.Errorf("extracting text: %w", err)
	}

	pieces := w.chunker.Chunk(text, chunk.Metadata{
		"filename":  rec.OriginalName,
		"file_type": rec.FileType,
		"file_size": rec.FileSize,
	})
	if len(pieces) == 0 {
		// Nothing indexable (blank document); still mark it done.
		w.logger.Info("file produced no chunks", "file_id", fileID)
		return w.markProcessed(fileID)
	}

	documents := make([]string, len(pieces))
	metadatas := make([]map[string]any, len(pieces))
	for i, p := range pieces {
		documents[i] = p.Text
		metadatas[i] = p.Metadata
	}

	if err := w.vectors.EnsureCollection(ctx, rec.CollectionID); err != nil {
		return fmt.Errorf("ensuring collection: %w", err)
	}
	if _, err := w.vectors.AddChunks(ctx, rec.CollectionID, documents, metadatas, nil); err != nil {
		return fmt.Errorf("indexing chunks: %w", err)
	}

	return w.markProcessed(fileID)
}

func (w *Worker) markProcessed(fileID int64) error {
	if err := w.store.MarkFileProcessed(fileID); err != nil {
		return fmt.Errorf("marking file processed: %w", err)
	}
	w.logger.Info("file processed", "file_id", fileID)
	return nil
}
