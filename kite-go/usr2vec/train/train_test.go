package train

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/kiteco/usr2vec/kite-go/usr2vec/instance"
	"github.com/kiteco/usr2vec/kite-go/usr2vec/model"
	"github.com/kiteco/usr2vec/kite-golib/serialization"
)

// scripted returns a fixed sequence of log probs, one per evaluation.
type scripted struct {
	logProbs []float64
	evals    int
	saved    []int
}

func (s *scripted) Train(user int, msg []int, neg [][]int, cp []float64) (float64, error) {
	return 1, nil
}

func (s *scripted) Predict(user int, msg []int) (float64, []float64, error) {
	lp := s.logProbs[s.evals]
	s.evals++
	return lp, nil, nil
}

func (s *scripted) Save(path string) error {
	s.saved = append(s.saved, s.evals-1)
	return nil
}

func oneInstance() *instance.Slice {
	return &instance.Slice{Instances: []*instance.Instance{{
		User:       0,
		Train:      [][]int{{1, 2, 3}},
		Test:       [][]int{{1, 2}},
		NegSamples: [][][]int{{{0, 4}, {0, 4}, {0, 4}}},
	}}}
}

func embeddings() *mat.Dense {
	return mat.NewDense(5, 3, []float64{
		0.1, 0.2, 0.3,
		-0.2, 0.1, 0.0,
		0.3, -0.1, 0.2,
		0.0, 0.4, -0.3,
		-0.1, -0.2, 0.1,
	})
}

func TestEarlyStopping(t *testing.T) {
	tr := &scripted{logProbs: []float64{-5, -3, -4, -3, -6, -2, -1}}
	var metrics []EpochMetrics
	res, err := Run(context.Background(), oneInstance(), tr, Options{
		Epochs:    10,
		EvalEvery: 1,
		Patience:  3,
		Callback:  func(m EpochMetrics) { metrics = append(metrics, m) },
	})
	require.NoError(t, err)

	assert.True(t, res.Stopped)
	assert.Equal(t, 5, res.Epochs)
	assert.Equal(t, 1, res.BestEpoch)
	assert.Equal(t, -3.0, res.BestLogProb)
	// the last checkpoint is from the best epoch, not the last one
	assert.Equal(t, []int{0, 1}, tr.saved)

	require.Len(t, metrics, 5)
	assert.True(t, metrics[0].IsBest)
	assert.True(t, metrics[1].IsBest)
	assert.False(t, metrics[3].IsBest, "ties do not improve")
	assert.Equal(t, []int{0, 0, 1, 2, 3}, []int{metrics[0].Drops, metrics[1].Drops, metrics[2].Drops, metrics[3].Drops, metrics[4].Drops})
	for _, m := range metrics {
		assert.True(t, m.Evaluated)
		assert.Equal(t, 1.0, m.Objective)
	}
}

func TestEvalEvery(t *testing.T) {
	tr := &scripted{logProbs: []float64{-5, -6}}
	var metrics []EpochMetrics
	res, err := Run(context.Background(), oneInstance(), tr, Options{
		Epochs:    7,
		EvalEvery: 5,
		Patience:  5,
		Callback:  func(m EpochMetrics) { metrics = append(metrics, m) },
	})
	require.NoError(t, err)
	assert.False(t, res.Stopped)
	assert.Equal(t, 7, res.Epochs)
	assert.Equal(t, 2, tr.evals)

	var evaluated []int
	for _, m := range metrics {
		if m.Evaluated {
			evaluated = append(evaluated, m.Epoch)
		}
	}
	assert.Equal(t, []int{0, 5}, evaluated)
	assert.Equal(t, []int{0}, tr.saved)
}

func TestSingleInstanceCheckpointsFirstEpoch(t *testing.T) {
	dir := t.TempDir()
	stream := filepath.Join(dir, "instances")
	require.NoError(t, instance.WriteAll(stream, oneInstance().Instances))
	src, err := instance.OpenStream(stream)
	require.NoError(t, err)
	defer src.Close()

	m := model.New(embeddings(), 1, model.DefaultOptions())
	ckpt := filepath.Join(dir, "user.emb")
	res, err := Run(context.Background(), src, m, Options{
		Epochs:         1,
		EvalEvery:      5,
		Patience:       5,
		CheckpointPath: ckpt,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.BestEpoch)
	assert.False(t, math.IsInf(res.BestLogProb, -1))

	U, err := model.LoadUserEmbeddings(ckpt)
	require.NoError(t, err)
	assert.True(t, mat.Equal(m.U, U))
}

func TestRunDeterministic(t *testing.T) {
	run := func() []float64 {
		m := model.New(embeddings(), 1, model.DefaultOptions())
		res, err := Run(context.Background(), oneInstance(), m, Options{
			Epochs:         6,
			EvalEvery:      2,
			Patience:       10,
			CheckpointPath: filepath.Join(t.TempDir(), "user.emb"),
		})
		require.NoError(t, err)
		return res.Objectives
	}
	a := run()
	b := run()
	require.Len(t, a, 6)
	assert.Equal(t, a, b)
}

func TestPredictDoesNotMutate(t *testing.T) {
	m := model.New(embeddings(), 1, model.DefaultOptions())
	before := mat.DenseCopyOf(m.U)
	_, err := evaluate(oneInstance(), m)
	require.NoError(t, err)
	assert.True(t, mat.Equal(before, m.U))
}

func TestEvaluateSkipsMissingTests(t *testing.T) {
	src := oneInstance()
	src.Instances = append(src.Instances, &instance.Instance{User: 0, Train: [][]int{}, NegSamples: [][][]int{}})
	tr := &scripted{logProbs: []float64{-2}}
	lp, err := evaluate(src, tr)
	require.NoError(t, err)
	assert.Equal(t, -2.0, lp)

	_, err = evaluate(&instance.Slice{Instances: src.Instances[1:]}, tr)
	assert.Error(t, err)
}

func TestRunErrors(t *testing.T) {
	_, err := Run(context.Background(), &instance.Slice{}, &scripted{}, Options{Epochs: 1})
	assert.True(t, errors.Is(err, ErrEmptyStream))

	_, err = Run(context.Background(), oneInstance(), &scripted{}, Options{})
	assert.Error(t, err)

	unaugmented := &instance.Slice{Instances: []*instance.Instance{{User: 0, Train: [][]int{{1}}}}}
	_, err = Run(context.Background(), unaugmented, &scripted{}, Options{Epochs: 1})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, oneInstance(), &scripted{}, Options{Epochs: 1})
	assert.Equal(t, context.Canceled, err)
}

func TestNonFiniteLogProbPropagates(t *testing.T) {
	tr := &scripted{logProbs: []float64{math.NaN()}}
	var metrics []EpochMetrics
	res, err := Run(context.Background(), oneInstance(), tr, Options{
		Epochs:   1,
		Callback: func(m EpochMetrics) { metrics = append(metrics, m) },
	})
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.True(t, math.IsNaN(metrics[0].LogProb))
	assert.False(t, metrics[0].IsBest)
	assert.Empty(t, tr.saved)
	assert.True(t, res.Stopped)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, serialization.Encode(path, map[string]interface{}{
		"epochs": 3,
		"lrate":  0.5,
	}))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	want := DefaultConfig()
	want.Epochs = 3
	want.LearningRate = 0.5
	assert.Equal(t, want, c)

	opts := c.Options("ckpt")
	assert.Equal(t, 3, opts.Epochs)
	assert.Equal(t, "ckpt", opts.CheckpointPath)
	assert.Equal(t, 0.5, c.ModelOptions().LearningRate)
}

func TestProgress(t *testing.T) {
	src := &instance.Slice{}
	for i := 0; i < 5; i++ {
		src.Instances = append(src.Instances, oneInstance().Instances[0])
	}
	var calls []int
	_, err := Run(context.Background(), src, &scripted{logProbs: make([]float64, 10)}, Options{
		Epochs:        2,
		EvalEvery:     5,
		Patience:      5,
		Progress:      func(n int) { calls = append(calls, n) },
		ProgressEvery: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 5, 2, 4, 5}, calls)
}
