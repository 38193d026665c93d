package train

import (
	"github.com/kiteco/usr2vec/kite-go/usr2vec/model"
	"github.com/kiteco/usr2vec/kite-golib/serialization"
)

// Config holds the hyper-parameters of a training run.
type Config struct {
	LearningRate float64 `yaml:"lrate" json:"lrate"`
	Margin       float64 `yaml:"margin" json:"margin"`
	Epochs       int     `yaml:"epochs" json:"epochs"`
	Patience     int     `yaml:"patience" json:"patience"`
	EvalEvery    int     `yaml:"eval_every" json:"eval_every"`
	Seed         uint64  `yaml:"seed" json:"seed"`
}

// DefaultConfig returns the default hyper-parameters.
func DefaultConfig() Config {
	opts := model.DefaultOptions()
	return Config{
		LearningRate: opts.LearningRate,
		Margin:       opts.Margin,
		Epochs:       25,
		Patience:     5,
		EvalEvery:    5,
		Seed:         opts.Seed,
	}
}

// LoadConfig reads a config from path. Fields missing from the file keep
// their default value.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	if err := serialization.Decode(path, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ModelOptions returns the options of the model trained with c.
func (c Config) ModelOptions() model.Options {
	return model.Options{
		LearningRate: c.LearningRate,
		Margin:       c.Margin,
		Seed:         c.Seed,
	}
}

// Options returns the loop options for c, checkpointing to path.
func (c Config) Options(path string) Options {
	return Options{
		Epochs:         c.Epochs,
		EvalEvery:      c.EvalEvery,
		Patience:       c.Patience,
		CheckpointPath: path,
	}
}
