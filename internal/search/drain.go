package search

import "context"

// Drain executes req and every follow-up request the engine issues, one at a
// time, until the engine settles. Fetch failures are recorded by the engine
// (see Engine.Err); Drain only returns an error when ctx is done.
func Drain(ctx context.Context, e *Engine, f Fetcher, req *Request) error {
	for req != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := f.FetchPage(ctx, req.Query, req.PageSize, req.Page)
		req = e.Complete(*req, page, err)
	}
	return nil
}
