package ingest

import (
	"context"
	"io"
)

type readResult struct {
	n   int
	err error
}

// contextReader makes a blocking reader cancellable. Reads are served by a
// background goroutine while the caller also waits on the context, so a
// stalled upload stream releases the pipeline worker when the stage deadline
// fires. A source that never returns can strand its goroutine mid-Read; that
// goroutine exits as soon as the read completes or the context is done.
type contextReader struct {
	ctx context.Context
	req chan []byte
	res chan readResult
}

func newContextReader(ctx context.Context, r io.Reader) *contextReader {
	cr := &contextReader{
		ctx: ctx,
		req: make(chan []byte),
		// buffered so the goroutine never blocks handing back a result
		res: make(chan readResult, 1),
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-cr.req:
				n, err := r.Read(p)
				cr.res <- readResult{n: n, err: err}
				if err != nil {
					return
				}
			}
		}
	}()
	return cr
}

func (cr *contextReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	case cr.req <- p:
	}
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	case res := <-cr.res:
		return res.n, res.err
	}
}
