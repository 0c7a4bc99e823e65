package city

import (
	"context"
	"time"
)

type mintReq struct {
	amount       int
	authorizedBy string
	key          string
	resp         chan mintResp
}

type mintResp struct {
	minted int
	err    error
}

// Run drives the day loop at the given wall-clock interval, draining
// control requests between ticks. All state mutation happens on this
// goroutine. Cancellation aborts at the next suspension point; a
// half-finished day is never checkpointed or broadcast, so storage stays
// at the last completed day.
func (c *City) Run(ctx context.Context, dayInterval time.Duration) error {
	ticker := time.NewTicker(dayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case req := <-c.obsJoin:
			c.handleObserverJoin(req)
		case id := <-c.obsLeave:
			c.handleObserverLeave(id)
		case resp := <-c.snapshotReq:
			resp <- c.ExportSnapshot()
		case req := <-c.mintReq:
			minted, err := c.ledger.Mint(c.day, req.amount, req.authorizedBy, req.key)
			req.resp <- mintResp{minted: minted, err: err}
		case <-ticker.C:
			if err := c.SimulateDay(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// Invariant violations and exhausted checkpoint retries
				// halt the simulation; everything else was already
				// recovered inside the tick.
				return err
			}
		}
	}
}

func (c *City) Stop() { close(c.stop) }

// AttachObserver registers a push-channel consumer and returns the live
// feed plus the connect-time state snapshot, consistent with a single day
// boundary.
func (c *City) AttachObserver(id string) ObserverSession {
	resp := make(chan ObserverSession, 1)
	c.obsJoin <- observerJoinReq{id: id, resp: resp}
	return <-resp
}

// DetachObserver removes a consumer; its feed channel closes.
func (c *City) DetachObserver(id string) {
	c.obsLeave <- id
}

// SnapshotNow requests a full state snapshot from the run loop — the
// request-response read for late-joining observers.
func (c *City) SnapshotNow() Snapshot {
	resp := make(chan Snapshot, 1)
	c.snapshotReq <- resp
	return <-resp
}

// RequestMint submits a guarded mint to the run loop.
func (c *City) RequestMint(amount int, authorizedBy, key string) (int, error) {
	resp := make(chan mintResp, 1)
	c.mintReq <- mintReq{amount: amount, authorizedBy: authorizedBy, key: key, resp: resp}
	r := <-resp
	return r.minted, r.err
}
