package dispatcher

import (
	"context"
	"net/http"
	"time"

	"github.com/ravenexp/crates-io-proxy/internal/cargo"
	"github.com/ravenexp/crates-io-proxy/internal/response"
	"github.com/ravenexp/crates-io-proxy/internal/stats"
	"github.com/ravenexp/crates-io-proxy/internal/upstream"
)

// spawnDownloadWorker runs the download path of spec §4.7 inline on a
// bounded worker slot: fetch from upstream, cache on success, respond.
// Blocking the calling goroutine (rather than spawning an unbounded one) is
// safe here because the dispatcher's ServeHTTP is itself already running on
// the per-connection goroutine the net/http server spawned; acquiring the
// semaphore is what bounds concurrent *upstream fetches* without touching
// accept-loop concurrency.
func (d *Dispatcher) spawnDownloadWorker(w http.ResponseWriter, r *http.Request, id cargo.CrateID) {
	ctx := r.Context()

	if err := d.fetchSem.Acquire(ctx, 1); err != nil {
		response.TransportError(w, &upstream.FetchError{Kind: upstream.Transport, Err: ctx.Err()})
		return
	}
	defer d.fetchSem.Release(1)

	start := time.Now()
	data, fetchErr := d.client.DownloadCrate(ctx, d.upstream, id)
	d.metrics.ObserveUpstreamFetch("crate", time.Since(start))

	if fetchErr != nil {
		d.logger.Warn("crate download failed", "crate", id.Name(), "version", id.Version(), "err", fetchErr)
		d.recordStat(ctx, "crate", id.Name(), id.Version(), stats.OutcomeError, 0, "")
		d.finalizeFetchError(w, "crate", fetchErr)
		return
	}

	d.logger.Info("crate downloaded", "crate", id.Name(), "version", id.Version(), "bytes", len(data))
	d.files.StoreCrate(id, data)
	d.recordStat(ctx, "crate", id.Name(), id.Version(), stats.OutcomeRefreshed, int64(len(data)), stats.Digest(data))
	response.Crate(w, data)
}

// spawnIndexWorker runs the index path of spec §4.7: given the client's
// requested validators and the conditional-request basis chosen by the
// dispatcher, fetch from upstream and resolve one of the success-200,
// success-304, cache-loss, stale-serve, or error outcomes.
func (d *Dispatcher) spawnIndexWorker(w http.ResponseWriter, r *http.Request, clientRequested, fetchBasis cargo.IndexKey) {
	ctx := r.Context()
	name := fetchBasis.Name()

	if err := d.fetchSem.Acquire(ctx, 1); err != nil {
		response.TransportError(w, &upstream.FetchError{Kind: upstream.Transport, Err: ctx.Err()})
		return
	}
	defer d.fetchSem.Release(1)

	start := time.Now()
	resp, fetchErr := d.client.FetchIndexEntry(ctx, d.index, fetchBasis)
	d.metrics.ObserveUpstreamFetch("index", time.Since(start))

	if fetchErr != nil {
		d.handleIndexFetchError(w, ctx, name, clientRequested, fetchErr)
		return
	}

	switch resp.Status {
	case http.StatusOK:
		d.files.StoreIndexEntry(resp.Entry, resp.Body)
		d.meta.Store(resp.Entry)
		d.recordStat(ctx, "index", name, "", stats.OutcomeRefreshed, int64(len(resp.Body)), stats.Digest(resp.Body))

		if resp.Entry.Equivalent(clientRequested) {
			response.IndexNotModified(w, resp.Entry)
			return
		}
		response.IndexEntry(w, resp.Entry, resp.Body)

	case http.StatusNotModified:
		d.meta.Store(resp.Entry)
		d.recordStat(ctx, "index", name, "", stats.OutcomeNotModif, 0, "")

		if resp.Entry.Equivalent(clientRequested) {
			response.IndexNotModified(w, resp.Entry)
			return
		}
		if data, ok := d.files.FetchIndexEntry(resp.Entry); ok {
			response.IndexEntry(w, resp.Entry, data)
			return
		}

		d.logger.Warn("index cache loss after 304", "crate", name)
		d.meta.Invalidate(name)
		response.CacheLoss(w)

	default:
		d.handleIndexUpstreamError(w, ctx, name, resp)
	}
}

// handleIndexFetchError applies the stale-on-transport-error rule: on a
// transport failure, serve the last cached bytes if any survive; otherwise
// forward the error. Upstream HTTP errors are always forwarded.
func (d *Dispatcher) handleIndexFetchError(w http.ResponseWriter, ctx context.Context, name string, clientRequested cargo.IndexKey, fetchErr *upstream.FetchError) {
	if fetchErr.Kind == upstream.Transport {
		if data, ok := d.files.FetchIndexEntry(clientRequested); ok {
			d.logger.Warn("upstream unreachable, serving stale index entry", "crate", name, "err", fetchErr)
			d.recordStat(ctx, "index", name, "", stats.OutcomeStale, int64(len(data)), "")
			response.IndexEntry(w, clientRequested, data)
			return
		}
	}

	d.logger.Warn("index fetch failed", "crate", name, "err", fetchErr)
	d.recordStat(ctx, "index", name, "", stats.OutcomeError, 0, "")
	d.finalizeFetchError(w, "index", fetchErr)
}

func (d *Dispatcher) handleIndexUpstreamError(w http.ResponseWriter, ctx context.Context, name string, resp upstream.IndexResponse) {
	d.logger.Warn("upstream returned an error status for index entry", "crate", name, "status", resp.Status)
	d.recordStat(ctx, "index", name, "", stats.OutcomeError, 0, "")
	response.UpstreamError(w, &upstream.FetchError{Kind: upstream.Upstream, Status: resp.Status, Body: resp.Body})
}

func (d *Dispatcher) finalizeFetchError(w http.ResponseWriter, kind string, fetchErr *upstream.FetchError) {
	if fetchErr.Kind == upstream.Transport {
		d.metrics.ObserveUpstreamError(kind, "transport")
		response.TransportError(w, fetchErr)
		return
	}
	d.metrics.ObserveUpstreamError(kind, "upstream")
	response.UpstreamError(w, fetchErr)
}

func (d *Dispatcher) recordStat(ctx context.Context, kind, name, version string, outcome stats.Outcome, bytes int64, digest string) {
	if d.stats == nil {
		return
	}
	ev := stats.Event{Kind: kind, Name: name, Version: version, Outcome: outcome, Bytes: bytes, Digest: digest, At: time.Now()}
	if err := d.stats.Record(ctx, ev); err != nil {
		d.logger.Warn("failed to record stats event", "err", err)
	}
}
