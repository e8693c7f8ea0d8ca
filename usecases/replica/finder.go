package replica

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/kettlelakes/wideframe/usecases/countercontext"
)

// Finder answers a counter-context read cheaply when replicas agree,
// and repairs them when they don't. It supplements the read-repair
// path spec.md §7 implies but leaves to a boundary collaborator: "a
// coordinator that receives a DISJOINT diff... must call merge."
type Finder struct {
	client      ContextClient
	engine      *countercontext.Engine
	coordinator *Coordinator
	logger      logrus.FieldLogger
	newBackOff  func() backoff.BackOff
}

// NewFinder builds a Finder. logger may be nil, in which case a
// discarding logger is used.
func NewFinder(client ContextClient, engine *countercontext.Engine, logger logrus.FieldLogger) *Finder {
	coord := NewCoordinator(client, engine, logger)
	return &Finder{
		client:      client,
		engine:      engine,
		coordinator: coord,
		logger:      coord.logger,
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
		},
	}
}

// fetchDigest fetches node's digest for key, retrying transient
// failures with bounded exponential backoff before giving up.
func (f *Finder) fetchDigest(ctx context.Context, node, key string) ([]byte, error) {
	var digest []byte
	op := func() error {
		resp, err := f.client.Fetch(ctx, node, key, true)
		if err != nil {
			return err
		}
		if !resp.IsDigest() {
			return backoff.Permanent(fmt.Errorf("node %s: expected a digest, got full data", node))
		}
		digest = resp.Digest()
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(f.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return digest, nil
}

// ReadRepair returns the reconciled counter context for key.
// It first compares cheap digests across nodes; if every replica
// agrees, it fetches and returns the full context from the first
// node, spending nothing on reconciliation. If any digest disagrees,
// it falls back to Coordinator.Reconcile to fetch and merge every
// replica's full context, and reports that a repair occurred.
func (f *Finder) ReadRepair(ctx context.Context, key string, nodes []string) (repairedCtx []byte, repaired bool, err error) {
	if len(nodes) == 0 {
		return nil, false, fmt.Errorf("read repair %q: %w", key, ErrNoReplicas)
	}

	digests := make([][]byte, len(nodes))
	for i, node := range nodes {
		d, err := f.fetchDigest(ctx, node, key)
		if err != nil {
			f.logger.WithError(err).WithField("node", node).Warn("read repair: digest fetch failed, forcing full reconciliation")
			merged, mErr := f.coordinator.Reconcile(ctx, key, nodes)
			return merged, true, mErr
		}
		digests[i] = d
	}

	agree := true
	for i := 1; i < len(digests); i++ {
		if !bytes.Equal(digests[0], digests[i]) {
			agree = false
			break
		}
	}

	if agree {
		resp, err := f.client.Fetch(ctx, nodes[0], key, false)
		if err != nil {
			return nil, false, fmt.Errorf("replica: read repair %q: fetch agreed node %s: %w", key, nodes[0], err)
		}
		return contextFromResponse(resp), false, nil
	}

	f.logger.WithField("key", key).Info("read repair: digests disagree, reconciling full contexts")
	merged, err := f.coordinator.Reconcile(ctx, key, nodes)
	return merged, true, err
}
