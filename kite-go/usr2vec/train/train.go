package train

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kiteco/usr2vec/kite-go/usr2vec/instance"
	"github.com/kiteco/usr2vec/kite-golib/kitelog"
)

// ErrEmptyStream is returned when the instance stream has no instances
var ErrEmptyStream = errors.New("no training instances")

// Trainer is the model trained by Run, see model.Model.
type Trainer interface {
	Train(user int, msg []int, neg [][]int, cp []float64) (float64, error)
	Predict(user int, msg []int) (float64, []float64, error)
	Save(path string) error
}

// Options for Run
type Options struct {
	Epochs int
	// EvalEvery evaluates the held out messages every EvalEvery epochs,
	// starting with the first one
	EvalEvery int
	// Patience is the number of consecutive evaluations without improvement
	// after which training stops
	Patience       int
	CheckpointPath string
	Logger         *zap.Logger
	// Callback, if set, is called at the end of each epoch
	Callback func(EpochMetrics)
	// Progress, if set, is called during each training pass with the number
	// of instances trained on so far in the epoch
	Progress func(n int)
	// ProgressEvery is the number of instances between Progress calls
	ProgressEvery int
}

// EpochMetrics describes one epoch of training. The log prob fields are
// only meaningful when Evaluated is true.
type EpochMetrics struct {
	Epoch         int
	Objective     float64
	BestObjective float64
	Evaluated     bool
	LogProb       float64
	BestLogProb   float64
	IsBest        bool
	Drops         int
	Duration      time.Duration
}

// Result summarizes a training run.
type Result struct {
	// Epochs is the number of epochs run
	Epochs        int
	Objectives    []float64
	BestObjective float64
	// BestLogProb is the log prob of the checkpointed parameters, reached
	// at BestEpoch
	BestLogProb float64
	BestEpoch   int
	// Stopped is true if training stopped early
	Stopped bool
	Elapsed time.Duration
}

// LogCallback returns a callback logging each epoch's metrics to logger.
func LogCallback(logger *zap.Logger) func(EpochMetrics) {
	return func(m EpochMetrics) {
		fields := []zap.Field{
			zap.Int("epoch", m.Epoch),
			zap.Float64("objective", m.Objective),
			zap.Float64("best_objective", m.BestObjective),
			zap.Duration("duration", m.Duration),
		}
		if m.Evaluated {
			fields = append(fields,
				zap.Float64("logprob", m.LogProb),
				zap.Float64("best_logprob", m.BestLogProb),
				zap.Bool("best", m.IsBest),
				zap.Int("drops", m.Drops))
		}
		logger.Info("epoch", fields...)
	}
}

// Run trains trainer over the instances of src, checkpointing the model to
// opts.CheckpointPath each time the held out log prob improves on the best
// seen so far. The checkpoint, not the trainer's final state, holds the
// result of the run.
func Run(ctx context.Context, src instance.Source, trainer Trainer, opts Options) (Result, error) {
	if opts.Epochs < 1 {
		return Result{}, errors.Errorf("invalid number of epochs %d", opts.Epochs)
	}
	if opts.EvalEvery < 1 {
		opts.EvalEvery = 1
	}
	if opts.Patience < 1 {
		opts.Patience = 1
	}
	if opts.ProgressEvery < 1 {
		opts.ProgressEvery = 1000
	}
	logger := kitelog.OrNop(opts.Logger)
	start := time.Now()

	res := Result{
		BestObjective: math.Inf(1),
		BestLogProb:   math.Inf(-1),
		BestEpoch:     -1,
	}
	var drops int
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		epochStart := time.Now()

		obj, err := trainEpoch(src, trainer, opts.Progress, opts.ProgressEvery)
		if err != nil {
			return res, errors.Wrapf(err, "epoch %d", epoch)
		}
		res.Epochs++
		res.Objectives = append(res.Objectives, obj)
		if obj < res.BestObjective {
			res.BestObjective = obj
		}

		m := EpochMetrics{
			Epoch:         epoch,
			Objective:     obj,
			BestObjective: res.BestObjective,
			BestLogProb:   res.BestLogProb,
		}
		if epoch%opts.EvalEvery == 0 {
			lp, err := evaluate(src, trainer)
			if err != nil {
				return res, errors.Wrapf(err, "evaluating epoch %d", epoch)
			}
			m.Evaluated = true
			m.LogProb = lp

			if lp > res.BestLogProb {
				if err := trainer.Save(opts.CheckpointPath); err != nil {
					return res, errors.Wrapf(err, "checkpointing epoch %d", epoch)
				}
				drops = 0
				res.BestLogProb = lp
				res.BestEpoch = epoch
				m.IsBest = true
			} else {
				drops++
			}
			m.BestLogProb = res.BestLogProb
			m.Drops = drops
		}
		m.Duration = time.Since(epochStart)
		if opts.Callback != nil {
			opts.Callback(m)
		}

		if drops >= opts.Patience {
			res.Stopped = true
			break
		}
	}

	res.Elapsed = time.Since(start)
	logger.Info("training done",
		zap.Int("epochs", res.Epochs),
		zap.Int("best_epoch", res.BestEpoch),
		zap.Float64("best_logprob", res.BestLogProb),
		zap.Bool("stopped", res.Stopped),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// trainEpoch returns the total objective over src divided by the number of
// instances.
func trainEpoch(src instance.Source, trainer Trainer, progress func(int), every int) (float64, error) {
	if err := src.Rewind(); err != nil {
		return 0, err
	}
	var total float64
	var n int
	var inst instance.Instance
	for {
		err := src.Next(&inst)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		if !inst.Augmented() {
			return 0, errors.Errorf("user %d has no negative samples", inst.User)
		}
		for m, msg := range inst.Train {
			if m >= len(inst.NegSamples) {
				return 0, errors.Errorf("user %d: no negative samples for message %d", inst.User, m)
			}
			obj, err := trainer.Train(inst.User, msg, inst.NegSamples[m], inst.CondProbsFor(m))
			if err != nil {
				return 0, err
			}
			total += obj
		}
		n++
		if progress != nil && n%every == 0 {
			progress(n)
		}
	}
	if progress != nil && n%every != 0 {
		progress(n)
	}
	if n == 0 {
		return 0, ErrEmptyStream
	}
	return total / float64(n), nil
}

// evaluate returns the mean over instances of the mean log prob of their
// test messages. Instances without test messages are skipped.
func evaluate(src instance.Source, trainer Trainer) (float64, error) {
	if err := src.Rewind(); err != nil {
		return 0, err
	}
	var perInstance []float64
	var inst instance.Instance
	for {
		err := src.Next(&inst)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		if len(inst.Test) == 0 {
			continue
		}
		lps := make([]float64, 0, len(inst.Test))
		for _, msg := range inst.Test {
			lp, _, err := trainer.Predict(inst.User, msg)
			if err != nil {
				return 0, err
			}
			lps = append(lps, lp)
		}
		perInstance = append(perInstance, mean(lps))
	}
	if len(perInstance) == 0 {
		return 0, errors.New("no test messages")
	}
	return mean(perInstance), nil
}

// mean returns NaN for an empty input.
func mean(xs []float64) float64 {
	m, err := stats.Mean(xs)
	if err != nil {
		return math.NaN()
	}
	return m
}
