// Package optim tunes sampler parameters by running short chains over a grid.
package optim

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/bdsim/internal/config"
	"github.com/san-kum/bdsim/internal/experiment"
	"github.com/san-kum/bdsim/internal/mcmc"
)

// Objective scores a finished chain. Lower is better.
type Objective func(*mcmc.Result) float64

// TargetAcceptance scores a chain by how far its acceptance rate is from
// target.
func TargetAcceptance(target float64) Objective {
	return func(r *mcmc.Result) float64 { return math.Abs(r.AcceptanceRate - target) }
}

// Metric scores a chain by one of its named metrics. A missing or NaN
// metric scores +Inf.
func Metric(name string) Objective {
	return func(r *mcmc.Result) float64 {
		v, ok := r.Metrics[name]
		if !ok || math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}
}

// setters maps a tunable name to the config field it writes.
var setters = map[string]func(*config.Config, float64){
	"dt":          func(c *config.Config, v float64) { c.Sampler.StepSize = v },
	"lambda":      func(c *config.Config, v float64) { c.Sampler.Lambda = v },
	"gamma":       func(c *config.Config, v float64) { c.Sampler.Gamma = v },
	"temperature": func(c *config.Config, v float64) { c.Sampler.Temperature = v },
}

// Parameters lists the names accepted by NewGridSearch.
func Parameters() []string {
	names := make([]string, 0, len(setters))
	for k := range setters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Apply writes the named parameter into cfg.
func Apply(cfg *config.Config, name string, v float64) error {
	set, ok := setters[name]
	if !ok {
		return fmt.Errorf("unknown parameter %q", name)
	}
	set(cfg, v)
	return nil
}

// Trial is one point of the grid and its score.
type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("%d parameters but %d ranges", len(params), len(ranges))
	}
	for i, name := range params {
		if _, ok := setters[name]; !ok {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("parameter %q has no values", name)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search runs chain 0 of base at every grid point and returns the best
// parameters with every trial in grid order. Points whose config is invalid
// or whose chain fails are recorded with Err and never win. Cancelling ctx
// stops the search with ctx.Err().
func (g *GridSearch) Search(ctx context.Context, base *config.Config, objective Objective, opts ...experiment.Option) (map[string]float64, []Trial, error) {
	var trials []Trial
	var bestParams map[string]float64
	best := math.Inf(1)

	err := g.walk(0, map[string]float64{}, func(params map[string]float64) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		cfg := base.Clone()
		for name, v := range params {
			setters[name](cfg, v)
		}

		t := Trial{Params: params, Score: math.Inf(1)}
		exp, err := experiment.New(cfg, opts...)
		if err == nil {
			var res *mcmc.Result
			res, err = exp.Run(ctx)
			if err == nil {
				t.Score = objective(res)
			}
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			t.Err = err
		}
		trials = append(trials, t)

		if t.Err == nil && t.Score < best {
			best = t.Score
			bestParams = params
		}
		return nil
	})
	if err != nil {
		return nil, trials, err
	}
	if bestParams == nil {
		return nil, trials, fmt.Errorf("no grid point produced a finite score")
	}
	return bestParams, trials, nil
}

func (g *GridSearch) walk(depth int, current map[string]float64, visit func(map[string]float64) error) error {
	if depth == len(g.paramNames) {
		return visit(current)
	}

	name := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[name] = val
		if err := g.walk(depth+1, next, visit); err != nil {
			return err
		}
	}
	return nil
}
