// Package marker implements the cross-peer deletion signaling protocol.
// A deletion is published as a sentinel file living in the remote store
// next to the path it describes; any peer sharing the store discovers it
// through an ordinary listing, so no separate channel is needed. Markers
// are never removed by readers; the next push's mirrored delete reaps
// the ones whose target no longer exists locally.
package marker

import (
	"context"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/xsoft-dev/rsyncx/internal/remote"
	"golang.org/x/sync/errgroup"
)

// Suffix marks remote sentinel files. It must stay on the bulk-transfer
// exclude list so markers are never copied into a peer's live tree.
const Suffix = ".rsyncx_deleted"

const publishConcurrency = 4

// Protocol publishes and collects deletion markers through a gateway.
type Protocol struct {
	gw remote.Gateway
}

func NewProtocol(gw remote.Gateway) *Protocol {
	return &Protocol{gw: gw}
}

// Publish creates one marker per relative path under remoteRoot.
// Publishes are independent and order-insensitive, so they run with
// bounded concurrency; re-touching an existing marker is harmless.
// Failed paths are logged and do not block the others.
func (p *Protocol) Publish(ctx context.Context, ep *remote.ResolvedEndpoint, remoteRoot string, relPaths []string) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(publishConcurrency)

	for _, rel := range relPaths {
		markerPath := path.Join(remoteRoot, rel) + Suffix
		eg.Go(func() error {
			if err := p.gw.Touch(egCtx, ep, markerPath); err != nil {
				slog.Warn("marker publish failed", "path", markerPath, "error", err)
			}
			return nil
		})
	}

	return eg.Wait()
}

// Collect lists all outstanding markers under remoteRoot and recovers the
// relative path each one describes. A listing failure degrades to an
// empty result so a sync can still proceed best-effort.
func (p *Protocol) Collect(ctx context.Context, ep *remote.ResolvedEndpoint, remoteRoot string) []string {
	files, err := p.gw.ListSuffix(ctx, ep, remoteRoot, Suffix)
	if err != nil {
		slog.Warn("marker listing failed", "root", remoteRoot, "error", err)
		return nil
	}

	prefix := strings.TrimRight(remoteRoot, "/") + "/"
	rels := make([]string, 0, len(files))
	for _, abs := range files {
		rel := strings.TrimPrefix(abs, prefix)
		rel = strings.TrimSuffix(rel, Suffix)
		if rel != "" {
			rels = append(rels, rel)
		}
	}
	sort.Strings(rels)
	return rels
}
