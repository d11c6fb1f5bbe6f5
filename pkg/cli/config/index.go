package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/service/vectorindex"
	"github.com/urfave/cli/v3"
)

// Index holds CLI flags for the vector index and its maintenance cadence
type Index struct {
	path              string
	compactRatio      float64
	flushInterval     time.Duration
	reconcileInterval time.Duration
}

// Flags returns CLI flags for index configuration
func (x *Index) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "index-path",
			Usage:       "Vector index blob path, empty disables persistence",
			Value:       "kbcore.index",
			Sources:     cli.EnvVars("KBCORE_INDEX_PATH"),
			Destination: &x.path,
		},
		&cli.FloatFlag{
			Name:        "index-compact-ratio",
			Usage:       "Tombstone to live entry ratio that triggers compaction",
			Value:       0.25,
			Sources:     cli.EnvVars("KBCORE_INDEX_COMPACT_RATIO"),
			Destination: &x.compactRatio,
		},
		&cli.DurationFlag{
			Name:        "index-flush-interval",
			Usage:       "Interval between index flushes",
			Value:       time.Minute,
			Sources:     cli.EnvVars("KBCORE_INDEX_FLUSH_INTERVAL"),
			Destination: &x.flushInterval,
		},
		&cli.DurationFlag{
			Name:        "index-reconcile-interval",
			Usage:       "Interval between store/index reconciliations, 0 disables",
			Value:       time.Hour,
			Sources:     cli.EnvVars("KBCORE_INDEX_RECONCILE_INTERVAL"),
			Destination: &x.reconcileInterval,
		},
	}
}

// FlushInterval returns the flush cadence of the maintenance worker
func (x *Index) FlushInterval() time.Duration {
	return x.flushInterval
}

// ReconcileInterval returns the reconcile cadence of the maintenance worker
func (x *Index) ReconcileInterval() time.Duration {
	return x.reconcileInterval
}

// LogValue implements slog.LogValuer
func (x Index) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("path", x.path),
		slog.Float64("compact_ratio", x.compactRatio),
		slog.Duration("flush_interval", x.flushInterval),
		slog.Duration("reconcile_interval", x.reconcileInterval),
	)
}

// Configure creates an empty index for vectors of the given dimension. The
// caller loads the persisted blob.
func (x *Index) Configure(dimension int) (*vectorindex.Index, error) {
	opts := []vectorindex.Option{vectorindex.WithCompactRatio(x.compactRatio)}
	if x.path != "" {
		opts = append(opts, vectorindex.WithPath(x.path))
	}

	index, err := vectorindex.New(dimension, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create vector index")
	}
	return index, nil
}
