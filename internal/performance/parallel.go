package performance

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"flakereport/internal/aggregate"
	"flakereport/pkg/errors"
)

// ExecutorConfig contains configuration for partitioned aggregation
type ExecutorConfig struct {
	MaxWorkers    int
	PartitionSize int
}

// DefaultExecutorConfig returns sensible defaults
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxWorkers:    runtime.NumCPU(),
		PartitionSize: 50000,
	}
}

// ExecutorMetrics describes one parallel aggregation
type ExecutorMetrics struct {
	Partitions int
	Workers    int
	Records    int
	Duration   time.Duration
}

// ParallelAggregate splits records into partitions, aggregates each on its
// own fork of base and merges the partials back into base in partition order.
// The result equals adding the records serially because every reduction is
// associative and commutative.
func ParallelAggregate(ctx context.Context, base *aggregate.Aggregator, records []aggregate.Record, config ExecutorConfig) (ExecutorMetrics, error) {
	start := time.Now()
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 1
	}
	if config.PartitionSize <= 0 {
		config.PartitionSize = DefaultExecutorConfig().PartitionSize
	}

	partitions := partition(records, config.PartitionSize)
	metrics := ExecutorMetrics{
		Partitions: len(partitions),
		Workers:    min(config.MaxWorkers, max(len(partitions), 1)),
		Records:    len(records),
	}

	if len(partitions) <= 1 || config.MaxWorkers == 1 {
		for _, p := range partitions {
			if err := ctx.Err(); err != nil {
				return metrics, errors.Wrap(err, errors.ErrCodeTimeout, "Aggregation cancelled")
			}
			base.AddAll(p)
		}
		metrics.Duration = time.Since(start)
		return metrics, nil
	}

	partials := make([]*aggregate.Aggregator, len(partitions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.MaxWorkers)

	for i, p := range partitions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			partial := base.Fork()
			partial.AddAll(p)
			partials[i] = partial
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return metrics, errors.Wrap(err, errors.ErrCodeTimeout, "Aggregation cancelled").
			WithContext("partitions", len(partitions))
	}

	for _, partial := range partials {
		base.Merge(partial)
	}

	metrics.Duration = time.Since(start)
	return metrics, nil
}

func partition(records []aggregate.Record, size int) [][]aggregate.Record {
	var parts [][]aggregate.Record
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		parts = append(parts, records[start:end])
	}
	return parts
}
