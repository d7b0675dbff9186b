// Package dataset rotates an environment across several datasets so that
// every dataset is used about equally often.
package dataset

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"time"

	"github.com/rustyeddy/tradegym/market"
)

var ErrNoDatasets = errors.New("dataset: no dataset matches")

// Loader reads the dataset stored at path.
type Loader func(path string) (*market.Dataset, error)

// Rotator picks the next dataset among the least used ones. It implements
// env.DatasetProvider and is not safe for concurrent use.
type Rotator struct {
	paths       []string
	uses        []int
	switchEvery int
	episodes    int // episodes started on the current dataset
	current     int
	preprocess  market.Preprocess
	load        Loader
	rng         *rand.Rand
}

type Option func(*Rotator)

// WithPreprocess transforms every dataset after loading, e.g. with
// market.StandardFeatures.
func WithPreprocess(fn market.Preprocess) Option {
	return func(r *Rotator) { r.preprocess = fn }
}

// WithSwitchEvery makes the rotator switch datasets every n episodes.
// Defaults to 1.
func WithSwitchEvery(n int) Option {
	return func(r *Rotator) { r.switchEvery = n }
}

// WithSeed seeds the tie-break between equally used datasets.
func WithSeed(seed int64) Option {
	return func(r *Rotator) { r.rng = rand.New(rand.NewSource(seed)) }
}

// WithLoader replaces market.LoadCSV as the way datasets are read.
func WithLoader(fn Loader) Option {
	return func(r *Rotator) { r.load = fn }
}

// NewRotator returns a rotator over the files matching the glob pattern.
func NewRotator(pattern string, opts ...Option) (*Rotator, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("dataset pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoDatasets, pattern)
	}
	sort.Strings(paths)
	return newRotator(paths, opts)
}

// NewRotatorPaths returns a rotator over an explicit list of paths.
func NewRotatorPaths(paths []string, opts ...Option) (*Rotator, error) {
	if len(paths) == 0 {
		return nil, ErrNoDatasets
	}
	return newRotator(append([]string(nil), paths...), opts)
}

func newRotator(paths []string, opts []Option) (*Rotator, error) {
	r := &Rotator{
		paths:       paths,
		uses:        make([]int, len(paths)),
		switchEvery: 1,
		current:     -1,
		preprocess:  market.Identity,
		load:        market.LoadCSV,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.switchEvery < 1 {
		return nil, fmt.Errorf("dataset: switch every %d episodes", r.switchEvery)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return r, nil
}

// Select picks uniformly among the least used datasets, counts the use and
// resets the per-dataset episode counter. It returns the chosen index.
func (r *Rotator) Select() int {
	least := r.uses[0]
	for _, u := range r.uses[1:] {
		if u < least {
			least = u
		}
	}
	var candidates []int
	for i, u := range r.uses {
		if u == least {
			candidates = append(candidates, i)
		}
	}

	i := candidates[r.rng.Intn(len(candidates))]
	r.uses[i]++
	r.current = i
	r.episodes = 0
	return i
}

// Next selects a dataset, then loads and preprocesses it. The dataset is
// named after its file.
func (r *Rotator) Next() (*market.Dataset, error) {
	path := r.paths[r.Select()]
	ds, err := r.load(path)
	if err != nil {
		return nil, err
	}
	ds, err = r.preprocess(ds)
	if err != nil {
		return nil, fmt.Errorf("preprocess %s: %w", path, err)
	}
	ds.Name = filepath.Base(path)
	return ds, nil
}

// Due counts an episode on the current dataset and reports whether it is
// time to switch.
func (r *Rotator) Due() bool {
	r.episodes++
	return r.episodes%r.switchEvery == 0
}

// Paths lists the datasets in rotation.
func (r *Rotator) Paths() []string { return append([]string(nil), r.paths...) }

// Uses returns how many times each dataset, in Paths order, was selected.
func (r *Rotator) Uses() []int { return append([]int(nil), r.uses...) }

// Current is the path of the dataset last selected, or "" before the first
// selection.
func (r *Rotator) Current() string {
	if r.current < 0 {
		return ""
	}
	return r.paths[r.current]
}
