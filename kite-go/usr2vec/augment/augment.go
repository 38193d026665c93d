package augment

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"time"

	spooky "github.com/dgryski/go-spooky"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/kiteco/usr2vec/kite-go/usr2vec/instance"
	"github.com/kiteco/usr2vec/kite-go/usr2vec/sage"
	"github.com/kiteco/usr2vec/kite-golib/fileutil"
	"github.com/kiteco/usr2vec/kite-golib/kitelog"
	"github.com/kiteco/usr2vec/kite-golib/recordio"
	"github.com/kiteco/usr2vec/kite-golib/workerpool"
)

// DefaultNegSampleSize is the number of negative samples drawn per word
const DefaultNegSampleSize = 10

// Options for Run
type Options struct {
	// NumJobs is both the batch size and the number of workers
	NumJobs       int
	NegSampleSize int
	Seed          uint64
	Logger        *zap.Logger
	// Progress, if set, is called after each batch with the number of
	// instances written so far
	Progress func(n int)
}

// DefaultOptions returns options for a single worker.
func DefaultOptions() Options {
	return Options{
		NumJobs:       1,
		NegSampleSize: DefaultNegSampleSize,
		Seed:          1234,
	}
}

// Stats summarizes a run
type Stats struct {
	Instances int
	Batches   int
	Duration  time.Duration
}

// Run attaches negative samples to every instance of the stream at path and
// replaces the stream with the augmented one. The original stream is only
// replaced once every instance has been augmented; on any error it is left
// untouched.
func Run(ctx context.Context, path string, sampler *sage.Sampler, opts Options) (Stats, error) {
	if opts.NumJobs < 1 {
		opts.NumJobs = 1
	}
	if opts.NegSampleSize < 1 {
		return Stats{}, errors.Errorf("invalid negative sample size %d", opts.NegSampleSize)
	}
	logger := kitelog.OrNop(opts.Logger)
	start := time.Now()

	in, err := instance.OpenStream(path)
	if err != nil {
		return Stats{}, err
	}
	defer in.Close()

	tmp, err := fileutil.TempSibling(path)
	if err != nil {
		return Stats{}, err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	a := newAugmenter(sampler, opts)
	defer a.stop()

	out := recordio.NewWriter(tmp, recordio.FormatFor(path))
	var stats Stats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		batch, err := readBatch(in, opts.NumJobs)
		if err != nil {
			return stats, errors.Wrapf(err, "reading %s after %d instances", path, stats.Instances)
		}
		if len(batch) == 0 {
			break
		}

		done, err := a.augment(ctx, batch, stats.Instances)
		if err != nil {
			return stats, err
		}
		for _, inst := range done {
			if err := out.Append(inst); err != nil {
				return stats, errors.Wrapf(err, "writing user %d", inst.User)
			}
		}

		stats.Instances += len(batch)
		stats.Batches++
		if opts.Progress != nil {
			opts.Progress(stats.Instances)
		}
	}

	if err := out.Close(); err != nil {
		return stats, errors.Wrapf(err, "flushing %s", tmpPath)
	}
	if err := multierr.Combine(tmp.Sync(), tmp.Close()); err != nil {
		return stats, errors.Wrapf(err, "closing %s", tmpPath)
	}
	if err := fileutil.Replace(tmpPath, path); err != nil {
		return stats, err
	}
	committed = true

	stats.Duration = time.Since(start)
	logger.Info("augmented instances",
		zap.String("path", path),
		zap.Int("instances", stats.Instances),
		zap.Int("batches", stats.Batches),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

func readBatch(src instance.Source, n int) ([]*instance.Instance, error) {
	batch := make([]*instance.Instance, 0, n)
	for len(batch) < n {
		inst := new(instance.Instance)
		err := src.Next(inst)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		batch = append(batch, inst)
	}
	return batch, nil
}

type augmenter struct {
	opts Options
	// one sampler per batch slot
	samplers []*sage.Sampler
	pool     *workerpool.Pool
	results  chan *instance.Instance
}

func newAugmenter(sampler *sage.Sampler, opts Options) *augmenter {
	a := &augmenter{opts: opts}
	if opts.NumJobs == 1 {
		a.samplers = []*sage.Sampler{sampler}
		return a
	}
	for i := 0; i < opts.NumJobs; i++ {
		a.samplers = append(a.samplers, sampler.Fork(opts.Seed+uint64(i)))
	}
	a.pool = workerpool.New(opts.NumJobs)
	a.results = make(chan *instance.Instance, opts.NumJobs)
	return a
}

// augment returns the instances of batch with negative samples attached.
// With a single job the order of batch is kept, otherwise instances are
// returned in the order they complete. offset is the ordinal of batch[0] in
// the stream.
func (a *augmenter) augment(ctx context.Context, batch []*instance.Instance, offset int) ([]*instance.Instance, error) {
	if a.pool == nil {
		for i, inst := range batch {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := attach(a.samplers[0], inst, a.seed(offset+i), a.opts.NegSampleSize); err != nil {
				return nil, err
			}
		}
		return batch, nil
	}

	var jobs []workerpool.Job
	for i, inst := range batch {
		i, inst := i, inst
		jobs = append(jobs, func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := attach(a.samplers[i], inst, a.seed(offset+i), a.opts.NegSampleSize); err != nil {
				return err
			}
			a.results <- inst
			return nil
		})
	}
	a.pool.Add(jobs)
	err := a.pool.Wait()

	done := make([]*instance.Instance, 0, len(batch))
	for len(a.results) > 0 {
		done = append(done, <-a.results)
	}
	if err != nil {
		return nil, err
	}
	return done, nil
}

func (a *augmenter) stop() {
	if a.pool != nil {
		a.pool.Stop()
	}
}

// seed derives the seed of the sampler for the instance at ordinal, so that
// the samples of an instance do not depend on how instances are batched.
func (a *augmenter) seed(ordinal int) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], a.opts.Seed)
	binary.LittleEndian.PutUint64(buf[8:], uint64(ordinal))
	return spooky.Hash64(buf[:])
}

func attach(s *sage.Sampler, inst *instance.Instance, seed uint64, size int) error {
	s.Reseed(seed)
	neg := make([][][]int, len(inst.Train))
	for m, msg := range inst.Train {
		samples, err := s.SampleMessage(inst.User, msg, size)
		if err != nil {
			return errors.Wrapf(err, "sampling message %d of user %d", m, inst.User)
		}
		neg[m] = samples
	}
	inst.NegSamples = neg
	return nil
}
