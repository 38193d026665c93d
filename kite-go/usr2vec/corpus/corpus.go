package corpus

import (
	"bufio"
	"io"
	"math"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kiteco/usr2vec/kite-go/usr2vec/ctxprobs"
	"github.com/kiteco/usr2vec/kite-go/usr2vec/instance"
	"github.com/kiteco/usr2vec/kite-go/usr2vec/resources"
	"github.com/kiteco/usr2vec/kite-golib/kitelog"
)

const maxLineSize = 1 << 20

// UserMessages are the tokenized messages of one user, in input order.
type UserMessages struct {
	User     string
	Messages [][]string
}

// ReadMessages reads "user<TAB>message" lines from r, grouping messages by
// user. Users are returned in order of first appearance.
func ReadMessages(r io.Reader) ([]*UserMessages, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	byUser := make(map[string]*UserMessages)
	var users []*UserMessages
	var line int
	for scanner.Scan() {
		line++
		user, tokens, err := ctxprobs.ParseLine(scanner.Text())
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		um, ok := byUser[user]
		if !ok {
			um = &UserMessages{User: user}
			byUser[user] = um
			users = append(users, um)
		}
		um.Messages = append(um.Messages, tokens)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading messages")
	}
	return users, nil
}

// PositionScorer scores every position of a message, see
// ctxprobs.ContextProbabilities.
type PositionScorer interface {
	PositionScores(tokens []string) ([]float64, error)
}

// Options for Build
type Options struct {
	// TestFraction of each user's messages are held out for evaluation
	TestFraction float64
	// MinMessages is the minimum number of usable messages of a user
	MinMessages int
	Logger      *zap.Logger
}

// DefaultOptions for Build
func DefaultOptions() Options {
	return Options{
		TestFraction: 0.2,
		MinMessages:  2,
	}
}

// Stats summarizes a Build
type Stats struct {
	Users           int
	SkippedUsers    int
	Messages        int
	DroppedMessages int
}

// Build creates one instance per user with enough usable messages. Tokens
// missing from the vocabulary are dropped, as are messages left empty. The
// last messages of each user are held out as test messages. If cp is not
// nil, train messages carry the log conditional probability of each of
// their positions. Instances are sorted by user id.
func Build(msgs []*UserMessages, res *resources.Resources, cp PositionScorer, opts Options) ([]*instance.Instance, Stats, error) {
	logger := kitelog.OrNop(opts.Logger)
	if opts.MinMessages < 1 {
		opts.MinMessages = 1
	}

	var stats Stats
	var insts []*instance.Instance
	for _, um := range msgs {
		uid, ok := res.Users.ID(um.User)
		if !ok {
			logger.Debug("unknown user", zap.String("user", um.User))
			stats.SkippedUsers++
			continue
		}

		var ids [][]int
		var tokens [][]string
		for _, msg := range um.Messages {
			wids, kept := res.WordIDs(msg)
			if len(wids) == 0 {
				stats.DroppedMessages++
				continue
			}
			toks := make([]string, len(kept))
			for i, pos := range kept {
				toks[i] = msg[pos]
			}
			ids = append(ids, wids)
			tokens = append(tokens, toks)
		}
		if len(ids) < opts.MinMessages {
			stats.SkippedUsers++
			stats.DroppedMessages += len(ids)
			continue
		}

		nTrain := len(ids) - testSize(len(ids), opts.TestFraction)
		inst := &instance.Instance{
			User:  uid,
			Train: ids[:nTrain],
			Test:  ids[nTrain:],
		}
		if cp != nil {
			for _, toks := range tokens[:nTrain] {
				scores, err := cp.PositionScores(toks)
				if err != nil {
					return nil, stats, errors.Wrapf(err, "user %s", um.User)
				}
				inst.CondProbs = append(inst.CondProbs, scores)
			}
		}

		insts = append(insts, inst)
		stats.Users++
		stats.Messages += len(ids)
	}

	sort.Slice(insts, func(i, j int) bool { return insts[i].User < insts[j].User })
	logger.Info("built instances",
		zap.Int("users", stats.Users),
		zap.Int("skipped_users", stats.SkippedUsers),
		zap.Int("messages", stats.Messages),
		zap.Int("dropped_messages", stats.DroppedMessages))
	return insts, stats, nil
}

// testSize is the number of held out messages out of n: a fraction of them
// rounded up, leaving at least one train message.
func testSize(n int, fraction float64) int {
	if n < 2 || fraction <= 0 {
		return 0
	}
	k := int(math.Ceil(fraction * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n-1 {
		k = n - 1
	}
	return k
}
