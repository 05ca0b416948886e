package ransac

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/atomic"

	"go.viam.com/geomfit/utils"
)

// minimalAdaptiveIterations keeps the adaptive budget from collapsing after a lucky first sample.
const minimalAdaptiveIterations = 4

// Estimate runs random sample consensus over model and refines the best hypothesis.
//
// The initial budget follows from cfg.OutlierRate and shrinks whenever a better hypothesis is
// found, based on the outlier rate it implies. With more than one worker the trials are split
// into partitions that each own a generator derived from rng, a share of the budget, and a local
// best; the local bests are merged at the end. The result for a given seed and worker count does
// not depend on scheduling.
func Estimate[P any](
	ctx context.Context,
	model Model[P],
	cfg Config,
	rng *utils.RandomGenerator,
	logger golog.Logger,
) (*Result[P], error) {
	ctx, span := trace.StartSpan(ctx, "ransac::Estimate")
	defer span.End()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sampleSize := model.SampleSize()
	minInliers := utils.MaxInt(cfg.MinimalValidCorrespondences, sampleSize)
	if size := model.Size(); size < minInliers {
		return nil, tooFew(size, minInliers)
	}

	budget := Iterations(sampleSize, cfg.SuccessProbability, cfg.OutlierRate, cfg.MaxIterations)
	s := &search[P]{
		model:      model,
		cfg:        cfg,
		minInliers: minInliers,
		budget:     budget,
		trials:     atomic.NewInt64(0),
		logger:     logger,
	}
	if validator, ok := model.(Validator[P]); ok {
		s.validator = validator
	}
	logger.Debugw("starting ransac", "elements", model.Size(), "budget", budget, "workers", cfg.Workers)

	best, err := s.run(ctx, rng)
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, errors.Wrapf(ErrNoConsensus, "after %d trials", s.trials.Load())
	}

	result := &Result[P]{Trials: int(s.trials.Load())}
	result.set(best.Params, best.Inliers, best.SqrError)
	if refiner, ok := model.(Refiner[P]); ok {
		refine(ctx, model, refiner, cfg, minInliers, result, logger)
	}
	return result, nil
}

type search[P any] struct {
	model      Model[P]
	validator  Validator[P]
	cfg        Config
	minInliers int
	budget     int
	trials     *atomic.Int64
	logger     golog.Logger
}

// run draws the trials sequentially or over partitions and returns the best hypothesis.
func (s *search[P]) run(ctx context.Context, rng *utils.RandomGenerator) (*Hypothesis[P], error) {
	if s.cfg.Workers == 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := s.newPartition(0, s.budget, rng)
		for trial := 0; trial < p.adaptive; trial++ {
			p.trial(trial)
		}
		return p.best, nil
	}

	var (
		mu         sync.Mutex
		best       *Hypothesis[P]
		generators []*utils.RandomGenerator
	)
	err := utils.GroupWorkParallel(
		ctx,
		s.cfg.Workers,
		s.budget,
		func(numGroups int) {
			generators = make([]*utils.RandomGenerator, numGroups)
			for i := range generators {
				generators[i] = rng.Child()
			}
		},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			p := s.newPartition(groupNum, groupSize, generators[groupNum])
			return func(memberNum, workNum int) {
					if memberNum < p.adaptive {
						p.trial(memberNum)
					}
				}, func() {
					mu.Lock()
					defer mu.Unlock()
					if p.best != nil && p.best.Better(best) {
						best = p.best
					}
				}
		},
	)
	return best, err
}

// partition is a share of the trials with its own generator and best hypothesis.
type partition[P any] struct {
	*search[P]
	id       int
	size     int
	adaptive int
	floor    int
	rng      *utils.RandomGenerator
	best     *Hypothesis[P]
	indices  []int
	scratch  []int
}

func (s *search[P]) newPartition(id, size int, rng *utils.RandomGenerator) *partition[P] {
	return &partition[P]{
		search:   s,
		id:       id,
		size:     size,
		adaptive: size,
		floor:    utils.MinInt(minimalAdaptiveIterations, size),
		rng:      rng,
		indices:  make([]int, 0, s.model.SampleSize()),
		scratch:  make([]int, 0, s.model.Size()),
	}
}

func (p *partition[P]) trial(trial int) {
	p.trials.Inc()
	p.indices = utils.RandomIndices(p.rng, p.model.Size(), p.model.SampleSize(), p.indices)
	for candidate, params := range p.model.Sample(p.indices) {
		if p.validator != nil && !p.validator.Accept(params) {
			continue
		}
		bestCount := p.minInliers
		if p.best != nil {
			bestCount = utils.MaxInt(bestCount, len(p.best.Inliers))
		}
		inliers, total, complete := Score(p.model, params, p.cfg.SqrErrorThreshold, p.cfg.Prune, bestCount, p.scratch[:0])
		if !complete || len(inliers) < p.minInliers {
			continue
		}
		h := &Hypothesis[P]{
			Params:    params,
			Inliers:   inliers,
			SqrError:  total,
			Partition: p.id,
			Trial:     trial,
			Candidate: candidate,
		}
		if !h.Better(p.best) {
			continue
		}
		h.Inliers = slices.Clone(inliers)
		p.best = h
		p.shrink(len(inliers))
	}
}

// shrink lowers the adaptive budget to the share of the iterations the observed inlier rate
// needs.
func (p *partition[P]) shrink(inliers int) {
	observed := 1 - float64(inliers)/float64(p.model.Size())
	expected := Iterations(p.model.SampleSize(), p.cfg.SuccessProbability, observed, p.cfg.MaxIterations)
	share := int(math.Ceil(float64(expected) * float64(p.size) / float64(p.budget)))
	adaptive := utils.MaxInt(p.floor, utils.MinInt(share, p.adaptive))
	if adaptive != p.adaptive {
		p.logger.Debugw("adapted iteration budget", "partition", p.id, "inliers", inliers, "iterations", adaptive)
	}
	p.adaptive = adaptive
}

// refine alternates between refining the model on its inliers and reclassifying all elements,
// until the inliers stop changing or cfg.MaxRefinementPasses is reached. A failed pass keeps the
// last accepted model.
func refine[P any](
	ctx context.Context,
	model Model[P],
	refiner Refiner[P],
	cfg Config,
	minInliers int,
	result *Result[P],
	logger golog.Logger,
) {
	if cfg.MaxRefinementPasses == 0 || cfg.RefinementIterations == 0 {
		return
	}
	for pass := 0; pass < cfg.MaxRefinementPasses; pass++ {
		refined, stats, err := refiner.Refine(ctx, result.Model, result.Inliers, cfg)
		if err != nil {
			logger.Warnw("refinement failed, keeping the previous model", "pass", pass, "error", err)
			return
		}
		inliers, total, _ := Score(model, refined, cfg.SqrErrorThreshold, false, 0, nil)
		if len(inliers) < minInliers {
			logger.Warnw("refined model lost its consensus, keeping the previous model",
				"pass", pass, "inliers", len(inliers), "minimum", minInliers)
			return
		}

		if pass == 0 {
			result.Refinement = stats
		} else {
			result.Refinement.FinalError = stats.FinalError
			result.Refinement.Iterations += stats.Iterations
		}
		unchanged := slices.Equal(inliers, result.Inliers)
		result.set(refined, inliers, total)
		result.Refined = true
		if unchanged {
			return
		}
	}
}
