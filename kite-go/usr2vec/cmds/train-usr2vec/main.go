package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"github.com/kiteco/usr2vec/kite-go/usr2vec/instance"
	"github.com/kiteco/usr2vec/kite-go/usr2vec/model"
	"github.com/kiteco/usr2vec/kite-go/usr2vec/resources"
	"github.com/kiteco/usr2vec/kite-go/usr2vec/train"
	"github.com/kiteco/usr2vec/kite-golib/kitelog"
)

func maybeQuit(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	var args struct {
		Instances string `arg:"required" help:"augmented instance stream"`
		Resources string `arg:"required" help:"resources bundle"`
		Out       string `arg:"required" help:"path of the best user embeddings"`
		Config    string `help:"yaml or json training config, overridden by flags"`

		LRate     *float64 `help:"learning rate"`
		Margin    *float64 `help:"hinge loss margin"`
		Epochs    *int     `help:"maximum number of epochs"`
		Patience  *int     `help:"evaluations without improvement before stopping"`
		EvalEvery *int     `help:"evaluate every n epochs"`
		Seed      *uint64  `help:"random seed"`
	}
	arg.MustParse(&args)

	logger := kitelog.ForCommand("train-usr2vec")
	defer logger.Sync()

	conf := train.DefaultConfig()
	if args.Config != "" {
		var err error
		conf, err = train.LoadConfig(args.Config)
		maybeQuit(err)
	}
	if args.LRate != nil {
		conf.LearningRate = *args.LRate
	}
	if args.Margin != nil {
		conf.Margin = *args.Margin
	}
	if args.Epochs != nil {
		conf.Epochs = *args.Epochs
	}
	if args.Patience != nil {
		conf.Patience = *args.Patience
	}
	if args.EvalEvery != nil {
		conf.EvalEvery = *args.EvalEvery
	}
	if args.Seed != nil {
		conf.Seed = *args.Seed
	}
	logger.Info("config",
		zap.Float64("lrate", conf.LearningRate),
		zap.Float64("margin", conf.Margin),
		zap.Int("epochs", conf.Epochs),
		zap.Int("patience", conf.Patience),
		zap.Int("eval_every", conf.EvalEvery),
		zap.Uint64("seed", conf.Seed))

	start := time.Now()
	res, err := resources.Load(args.Resources)
	maybeQuit(err)
	logger.Info("loaded resources",
		zap.Int("words", res.Words.Len()),
		zap.Int("users", res.Users.Len()),
		zap.Int("dim", res.Dim()),
		zap.Duration("duration", time.Since(start)))

	src, err := instance.OpenStream(args.Instances)
	maybeQuit(err)
	defer src.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := model.New(res.E, res.Users.Len(), conf.ModelOptions())
	opts := conf.Options(args.Out)
	opts.Logger = logger
	status := kitelog.NewStatus(os.Stderr, "trained on")
	opts.Callback = func(em train.EpochMetrics) {
		status.Done()
		train.LogCallback(logger)(em)
	}
	opts.Progress = status.Update
	_, err = train.Run(ctx, src, m, opts)
	status.Done()
	maybeQuit(err)
}
