package bulk

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach calls fn for every id with at most parallel calls in flight. The
// first error returned by fn cancels the context handed to the remaining
// calls and is returned once all in-flight calls finish. Per-item failures
// that should not stop the batch must be handled inside fn.
func ForEach(ctx context.Context, ids []string, parallel int, fn func(ctx context.Context, id string) error) error {
	if parallel < 1 {
		parallel = 1
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, id := range ids {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			return fn(gCtx, id)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
