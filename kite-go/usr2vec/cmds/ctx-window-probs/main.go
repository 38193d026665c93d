package main

import (
	"log"
	"os"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kiteco/usr2vec/kite-go/usr2vec/ctxprobs"
	"github.com/kiteco/usr2vec/kite-go/usr2vec/resources"
	"github.com/kiteco/usr2vec/kite-golib/fileutil"
	"github.com/kiteco/usr2vec/kite-golib/kitelog"
)

func maybeQuit(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

const (
	modeExtract = "extract"
	modeScore   = "score"
	modeAll     = "all"
)

// checkWindowSize warns when an existing store was built with a window size
// other than the requested one. The store's size wins.
func checkWindowSize(logger *zap.Logger, store *ctxprobs.Store, requested int) bool {
	if store.WindowSize() == requested {
		return true
	}
	logger.Warn("existing store has a different window size, pass --overwrite to rebuild it",
		zap.Int("requested", requested),
		zap.Int("window_size", store.WindowSize()))
	return false
}

func main() {
	args := struct {
		Input      string `help:"user<TAB>message corpus, local or s3://"`
		DB         string `arg:"required" help:"word pair store"`
		Emb        string `help:"resources bundle with the pretrained word embeddings"`
		WindowSize int    `help:"context window size"`
		Overwrite  bool   `help:"recreate the store if it exists"`
		Mode       string `help:"extract, score or all"`
		BatchSize  int    `help:"pairs scored per batch"`
	}{
		WindowSize: 3,
		Mode:       modeAll,
		BatchSize:  ctxprobs.ScoreBatchSize,
	}
	arg.MustParse(&args)

	logger := kitelog.ForCommand("ctx-window-probs")
	defer logger.Sync()

	switch args.Mode {
	case modeExtract, modeAll:
		if args.Input == "" {
			maybeQuit(errors.Errorf("--input is required in %s mode", args.Mode))
		}
	case modeScore:
	default:
		maybeQuit(errors.Errorf("unknown mode %q", args.Mode))
	}
	if args.Mode != modeExtract && args.Emb == "" {
		maybeQuit(errors.Errorf("--emb is required in %s mode", args.Mode))
	}

	var durations kitelog.Durations
	var store *ctxprobs.Store
	var err error
	if args.Mode == modeScore {
		store, err = ctxprobs.Open(args.DB)
	} else {
		store, err = ctxprobs.Create(args.DB, args.WindowSize, args.Overwrite)
	}
	maybeQuit(err)
	defer store.Close()
	if args.Mode != modeScore {
		checkWindowSize(logger, store, args.WindowSize)
	}

	if args.Mode != modeScore {
		start := time.Now()
		r, err := fileutil.NewReader(args.Input)
		maybeQuit(err)
		status := kitelog.NewStatus(os.Stderr, "extracted")
		lines, err := ctxprobs.ExtractCorpus(store, r, status.Update)
		status.Done()
		r.Close()
		maybeQuit(err)
		durations.Since("extract", start)
		logger.Info("extracted word pairs", zap.Int("lines", lines), zap.Int("window_size", store.WindowSize()))
	}

	if args.Mode != modeExtract {
		start := time.Now()
		res, err := resources.Load(args.Emb)
		maybeQuit(err)
		durations.Since("load_embeddings", start)

		start = time.Now()
		status := kitelog.NewStatus(os.Stderr, "scored")
		n, err := ctxprobs.ScoreStore(store, ctxprobs.NewEmbeddingScorer(res), args.BatchSize, status.Update)
		status.Done()
		maybeQuit(err)
		durations.Since("score", start)
		logger.Info("scored word pairs", zap.Int("pairs", n))
	}

	total, scored, err := store.Count()
	maybeQuit(err)
	logger.Info("word pair store", zap.String("db", args.DB), zap.Int("pairs", total), zap.Int("scored", scored))
	durations.Flush(logger, "done")
}
