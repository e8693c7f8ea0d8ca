package replica

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kettlelakes/wideframe/usecases/countercontext"
)

// ErrNoReplicas is returned by Reconcile when it is given no nodes to
// read from, the same "who am I even asking" failure the teacher's
// own _ErrReplicaNotFound guards against for writes.
var ErrNoReplicas = errors.New("replica: no replicas given")

// Coordinator fans a full counter-context read out to a shard's
// replicas and folds whatever comes back into one reconciled context,
// the same "collect N, decide" responsibility the teacher's
// coordinator.go plays for writes and DatacenterQuorumResponseHandler
// plays for counter reads in the source this module is grounded on.
type Coordinator struct {
	client ContextClient
	engine *countercontext.Engine
	logger logrus.FieldLogger
}

// NewCoordinator builds a Coordinator. logger may be nil, in which
// case a discarding logger is used.
func NewCoordinator(client ContextClient, engine *countercontext.Engine, logger logrus.FieldLogger) *Coordinator {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Coordinator{client: client, engine: engine, logger: logger}
}

// Reconcile fetches key's counter context from every node in nodes
// and merges every successful response with the coordinator's engine.
// It waits for every node and succeeds if at least one answers; per-node failures
// are aggregated into the returned error only when every node fails,
// mirroring the teacher's broadcast/commitAll two-phase fan-out but
// collapsed to the single round a read (as opposed to a write) needs.
func (c *Coordinator) Reconcile(ctx context.Context, key string, nodes []string) ([]byte, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("reconcile %q: %w", key, ErrNoReplicas)
	}

	requestID := uuid.New().String()
	logger := c.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"key":        key,
		"replicas":   len(nodes),
	})

	contexts := make([][]byte, len(nodes))
	errs := make([]error, len(nodes))

	g, gctx := errgroup.WithContext(ctx)
	for i, node := range nodes {
		i, node := i, node
		g.Go(func() error {
			resp, err := c.client.Fetch(gctx, node, key, false)
			if err != nil {
				errs[i] = fmt.Errorf("node %s: %w", node, err)
				return nil
			}
			if resp.IsDigest() {
				errs[i] = fmt.Errorf("node %s: expected a full context, got a digest", node)
				return nil
			}
			contexts[i] = contextFromResponse(resp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []byte
	got := 0
	var aggErr *multierror.Error
	for i, e := range errs {
		if e != nil {
			aggErr = multierror.Append(aggErr, e)
			continue
		}
		got++
		if merged == nil {
			merged = contexts[i]
			continue
		}
		m, err := c.engine.Merge(merged, contexts[i])
		if err != nil {
			aggErr = multierror.Append(aggErr, fmt.Errorf("node %s: merge: %w", nodes[i], err))
			continue
		}
		merged = m
	}

	if got == 0 {
		logger.WithError(aggErr.ErrorOrNil()).Error("reconcile: every replica failed")
		return nil, fmt.Errorf("replica: reconcile %q: %w", key, aggErr.ErrorOrNil())
	}
	if aggErr != nil {
		logger.WithError(aggErr.ErrorOrNil()).Warn("reconcile: some replicas failed, proceeding with the rest")
	}
	logger.WithField("responded", got).Debug("reconcile: merged replica contexts")
	return merged, nil
}
