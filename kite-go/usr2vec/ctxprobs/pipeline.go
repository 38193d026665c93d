package ctxprobs

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const (
	// ScoreBatchSize is the number of pairs scored per store round trip
	ScoreBatchSize = 10000
	// insertBatchSize is the number of pairs inserted per transaction
	insertBatchSize = 10000
	progressEvery   = 1000
	maxLineSize     = 1 << 20
)

// ParseLine splits a "user<TAB>message" line into the user and the
// message tokens. Double quotes are stripped.
func ParseLine(line string) (string, []string, error) {
	line = strings.ReplaceAll(strings.TrimRight(line, "\r\n"), `"`, "")
	parts := strings.Split(line, "\t")
	if len(parts) != 2 {
		return "", nil, errors.Errorf("expected 2 tab separated fields, got %d", len(parts))
	}
	return parts[0], strings.Fields(parts[1]), nil
}

// ExtractCorpus reads "user<TAB>message" lines from r and inserts the word
// pairs of every message window into the store. progress, if not nil, is
// called every 1000 lines. It returns the number of lines processed.
func ExtractCorpus(store *Store, r io.Reader, progress func(int)) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var batch []Pair
	var n int
	for scanner.Scan() {
		_, tokens, err := ParseLine(scanner.Text())
		if err != nil {
			return n, errors.Wrapf(err, "line %d", n+1)
		}
		batch = append(batch, Flatten(ExtractWindows(tokens, store.WindowSize()))...)
		if len(batch) >= insertBatchSize {
			if err := store.InsertPairs(batch); err != nil {
				return n, err
			}
			batch = batch[:0]
		}
		n++
		if progress != nil && n%progressEvery == 0 {
			progress(n)
		}
	}
	if err := scanner.Err(); err != nil {
		return n, errors.Wrap(err, "reading corpus")
	}
	if len(batch) > 0 {
		if err := store.InsertPairs(batch); err != nil {
			return n, err
		}
	}
	if progress != nil {
		progress(n)
	}
	return n, nil
}

// ScoreStore scores every pair in the store with scorer, batchSize pairs at
// a time. progress, if not nil, is called after every batch with the number
// of pairs scored so far. It returns the number of pairs scored.
func ScoreStore(store *Store, scorer Scorer, batchSize int, progress func(int)) (int, error) {
	if batchSize < 1 {
		batchSize = ScoreBatchSize
	}
	var after string
	var n int
	for {
		keys, err := store.ScanKeys(after, batchSize)
		if err != nil {
			return n, err
		}
		if len(keys) == 0 {
			return n, nil
		}

		seqs := make([][]string, len(keys))
		for i, k := range keys {
			seqs[i] = SplitKey(k)
		}
		scores, err := scorer.Score(seqs)
		if err != nil {
			return n, errors.Wrapf(err, "scoring %d pairs", len(keys))
		}
		if err := store.UpdateScores(keys, scores); err != nil {
			return n, err
		}

		n += len(keys)
		after = keys[len(keys)-1]
		if progress != nil {
			progress(n)
		}
	}
}
