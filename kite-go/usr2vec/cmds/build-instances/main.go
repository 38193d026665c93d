package main

import (
	"log"
	"time"

	arg "github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"github.com/kiteco/usr2vec/kite-go/usr2vec/corpus"
	"github.com/kiteco/usr2vec/kite-go/usr2vec/ctxprobs"
	"github.com/kiteco/usr2vec/kite-go/usr2vec/instance"
	"github.com/kiteco/usr2vec/kite-go/usr2vec/resources"
	"github.com/kiteco/usr2vec/kite-golib/fileutil"
	"github.com/kiteco/usr2vec/kite-golib/kitelog"
)

func maybeQuit(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	opts := corpus.DefaultOptions()
	args := struct {
		Input        string  `arg:"required" help:"user<TAB>message corpus, local or s3://"`
		DB           string  `help:"scored word pair store, omit to build instances without cond probs"`
		Resources    string  `arg:"required" help:"resources bundle"`
		Out          string  `arg:"required" help:"instance stream to write, snappy compressed if it ends with .sz"`
		TestFraction float64 `help:"fraction of each user's messages held out"`
		MinMessages  int     `help:"minimum number of messages per user"`
		CacheSize    int     `help:"number of pair scores cached in memory"`
	}{
		TestFraction: opts.TestFraction,
		MinMessages:  opts.MinMessages,
		CacheSize:    ctxprobs.DefaultCacheSize,
	}
	arg.MustParse(&args)

	logger := kitelog.ForCommand("build-instances")
	defer logger.Sync()
	var durations kitelog.Durations

	start := time.Now()
	res, err := resources.Load(args.Resources)
	maybeQuit(err)
	durations.Since("load_resources", start)

	start = time.Now()
	r, err := fileutil.NewReader(args.Input)
	maybeQuit(err)
	msgs, err := corpus.ReadMessages(r)
	r.Close()
	maybeQuit(err)
	durations.Since("read_messages", start)

	var cp corpus.PositionScorer
	if args.DB != "" {
		store, err := ctxprobs.Open(args.DB)
		maybeQuit(err)
		defer store.Close()
		probs, err := ctxprobs.NewContextProbabilities(store, args.CacheSize)
		maybeQuit(err)
		cp = probs
	}

	start = time.Now()
	opts.TestFraction = args.TestFraction
	opts.MinMessages = args.MinMessages
	opts.Logger = logger
	insts, _, err := corpus.Build(msgs, res, cp, opts)
	maybeQuit(err)
	durations.Since("build", start)

	start = time.Now()
	maybeQuit(instance.WriteAll(args.Out, insts))
	durations.Since("write", start)

	logger.Info("wrote instances", zap.String("out", args.Out), zap.Int("instances", len(insts)))
	durations.Flush(logger, "done")
}
