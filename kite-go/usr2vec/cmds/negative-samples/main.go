package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	arg "github.com/alexflint/go-arg"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kiteco/usr2vec/kite-go/usr2vec/augment"
	"github.com/kiteco/usr2vec/kite-go/usr2vec/resources"
	"github.com/kiteco/usr2vec/kite-go/usr2vec/sage"
	"github.com/kiteco/usr2vec/kite-golib/kitelog"
)

func maybeQuit(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	opts := augment.DefaultOptions()
	args := struct {
		Resources string `help:"resources bundle, used to check the sage vocabulary"`
		Sage      string `arg:"required" help:"sage parameters"`
		Instances string `arg:"required" help:"instance stream, replaced by the augmented stream"`
		Jobs      int    `help:"number of parallel workers"`
		Seed      uint64 `help:"random seed"`
		NegSize   int    `help:"negative samples per word"`
	}{
		Jobs:    opts.NumJobs,
		Seed:    opts.Seed,
		NegSize: opts.NegSampleSize,
	}
	arg.MustParse(&args)

	logger := kitelog.ForCommand("negative-samples")
	defer logger.Sync()

	params, err := sage.LoadParams(args.Sage)
	maybeQuit(err)
	if args.Resources != "" {
		res, err := resources.Load(args.Resources)
		maybeQuit(err)
		if res.Words.Len() != len(params.BackWordProbs) {
			maybeQuit(errors.Errorf("vocabulary has %d words but sage params %d", res.Words.Len(), len(params.BackWordProbs)))
		}
		if res.Users.Len() > len(params.UserEtas) {
			logger.Warn("sage params do not cover every user",
				zap.Int("users", res.Users.Len()), zap.Int("sage_users", len(params.UserEtas)))
		}
	}

	sampler, err := sage.NewSampler(params, args.Seed)
	maybeQuit(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := kitelog.NewStatus(os.Stderr, "augmented")
	opts.NumJobs = args.Jobs
	opts.Seed = args.Seed
	opts.NegSampleSize = args.NegSize
	opts.Logger = logger
	opts.Progress = status.Update
	_, err = augment.Run(ctx, args.Instances, sampler, opts)
	status.Done()
	maybeQuit(err)
}
