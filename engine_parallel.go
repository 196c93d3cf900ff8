package scopebind

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// indexFilesParallel indexes files using a three-phase pipeline:
//
//	Phase A (serial):   read, hash check, delete old data, record the file.
//	Phase B (parallel): parse and lower into per-file batches on a worker pool.
//	Phase C (serial):   commit batches to SQLite.
func (e *Engine) indexFilesParallel(ctx context.Context, files []sourceFile) error {
	var errs []error

	// ---- Phase A: serial preparation ----
	var items []workItem
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		src, err := os.ReadFile(f.disk)
		if err != nil {
			e.logger.Warn("read failed", "path", f.disk, "error", err)
			errs = append(errs, fmt.Errorf("read %s: %w", f.disk, err))
			continue
		}
		item, skip, err := e.prepareFile(ctx, f.path, src)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", f.path, err)
		}
		if !skip {
			items = append(items, item)
		}
	}

	// ---- Phase B: parallel extraction ----
	type result struct {
		item workItem
		err  error
	}
	resultCh := make(chan result, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(runtime.NumCPU(), 1))
	for _, item := range items {
		g.Go(func() error {
			// A failed file is reported in phase C; the rest still index.
			resultCh <- result{item: item, err: e.extractFile(gctx, item)}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(resultCh)
	}()

	// ---- Phase C: serial commit ----
	for res := range resultCh {
		if res.err != nil {
			e.discardFile(res.item)
			filesIndexedTotal.WithLabelValues("error").Inc()
			e.logger.Warn("extract failed", "path", res.item.path, "error", res.err)
			errs = append(errs, fmt.Errorf("extract %s: %w", res.item.path, res.err))
			continue
		}
		if err := e.commitFile(res.item); err != nil {
			filesIndexedTotal.WithLabelValues("error").Inc()
			e.logger.Warn("commit failed", "path", res.item.path, "error", err)
			errs = append(errs, fmt.Errorf("commit %s: %w", res.item.path, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("parallel indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}
