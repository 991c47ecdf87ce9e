package ponca

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"
)

// EstimatorConfig controls batch curvature estimation.
// Start with [DefaultEstimatorConfig] and override the fields you need.
type EstimatorConfig struct {
	// K is the neighborhood size used at each evaluation point. The
	// Monge quadric has six unknowns, so K must be >= 6. Default: 30.
	K int

	// RadiusScale inflates the distance to the K-th neighbor to set
	// the kernel support, so the farthest selected neighbor keeps a
	// nonzero weight. Must be > 1. Default: 1.1.
	RadiusScale float64

	// Kernel builds the weight kernel for a given support radius.
	// Default: SmoothKernel.
	Kernel func(radius float64) WeightFunc

	// Workers is the number of goroutines fitting evaluation points.
	// 0 means runtime.NumCPU().
	Workers int
}

// DefaultEstimatorConfig returns an EstimatorConfig with reasonable
// defaults.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		K:           30,
		RadiusScale: 1.1,
		Kernel:      func(r float64) WeightFunc { return SmoothKernel{R: r} },
	}
}

func validateEstimatorConfig(cfg *EstimatorConfig) error {
	if cfg.K < 6 {
		return fmt.Errorf("ponca: estimator K must be >= 6, got %d", cfg.K)
	}
	if cfg.RadiusScale <= 1 {
		return fmt.Errorf("ponca: estimator RadiusScale must be > 1, got %f", cfg.RadiusScale)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("ponca: estimator Workers must be >= 0, got %d", cfg.Workers)
	}
	return nil
}

func applyEstimatorDefaults(cfg *EstimatorConfig) {
	if cfg.K == 0 {
		cfg.K = 30
	}
	if cfg.RadiusScale == 0 {
		cfg.RadiusScale = 1.1
	}
	if cfg.Kernel == nil {
		cfg.Kernel = func(r float64) WeightFunc { return SmoothKernel{R: r} }
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
}

// CurvatureField holds per-point curvature estimates over a cloud.
// Entries whose State is not Stable carry zero values.
type CurvatureField struct {
	Kmin, Kmax     []float64
	Kmean, Kgauss  []float64
	KminDir        []r3.Vector
	KmaxDir        []r3.Vector
	Normals        []r3.Vector
	States         []FitResult
}

// EstimateCurvatures fits a Monge patch at every point of the tree's
// cloud and collects the derived curvature quantities. Evaluation
// points are independent, so the work is fanned out over contiguous
// index ranges, one fit object per range.
func EstimateCurvatures(tree *KdTree, cfg EstimatorConfig) (*CurvatureField, error) {
	applyEstimatorDefaults(&cfg)
	if err := validateEstimatorConfig(&cfg); err != nil {
		return nil, err
	}

	n := tree.SampleCount()
	if n == 0 {
		return nil, ErrEmptyIndex
	}
	k := cfg.K
	if k > n-1 {
		k = n - 1
	}
	if k < 1 {
		return nil, fmt.Errorf("ponca: cloud of %d points is too small to estimate curvatures", n)
	}

	field := &CurvatureField{
		Kmin:    make([]float64, n),
		Kmax:    make([]float64, n),
		Kmean:   make([]float64, n),
		Kgauss:  make([]float64, n),
		KminDir: make([]r3.Vector, n),
		KmaxDir: make([]r3.Vector, n),
		Normals: make([]r3.Vector, n),
		States:  make([]FitResult, n),
	}

	numWorkers := cfg.Workers
	if numWorkers > n {
		numWorkers = n
	}
	rowsPerWorker := (n + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	errs := make([]error, numWorkers)
	for w := 0; w < numWorkers; w++ {
		start := w * rowsPerWorker
		end := start + rowsPerWorker
		if end > n {
			end = n
		}
		if start >= n {
			break
		}

		wg.Add(1)
		go func(worker, start, end int) {
			defer wg.Done()
			fit := NewMongePatchFit(nil) // kernel installed per point
			for i := start; i < end; i++ {
				res, err := fitKNearest(fit, tree, i, k, cfg.RadiusScale, cfg.Kernel)
				if err != nil {
					errs[worker] = err
					return
				}
				field.States[i] = res
				if res != Stable {
					continue
				}
				field.Kmin[i] = fit.Kmin()
				field.Kmax[i] = fit.Kmax()
				field.Kmean[i] = fit.Kmean()
				field.Kgauss[i] = fit.GaussianCurvature()
				field.KminDir[i] = fit.KminDirection()
				field.KmaxDir[i] = fit.KmaxDirection()
				field.Normals[i] = fit.Normal()
			}
		}(w, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	stable := 0
	for _, s := range field.States {
		if s == Stable {
			stable++
		}
	}
	logger().Info("ponca: curvature estimation done",
		"points", n, "stable", stable, "k", k, "workers", numWorkers)
	return field, nil
}

// FieldSummary is the per-quantity mean and standard deviation of the
// stable entries of a CurvatureField.
type FieldSummary struct {
	Stable                 int
	MeanKmean, StdKmean    float64
	MeanKgauss, StdKgauss  float64
}

// Summary aggregates the stable entries of the field. Entries with
// non-finite curvatures are skipped.
func (f *CurvatureField) Summary() FieldSummary {
	var km, kg []float64
	for i, s := range f.States {
		if s != Stable {
			continue
		}
		if math.IsNaN(f.Kmean[i]) || math.IsInf(f.Kmean[i], 0) {
			continue
		}
		km = append(km, f.Kmean[i])
		kg = append(kg, f.Kgauss[i])
	}
	out := FieldSummary{Stable: len(km)}
	if len(km) == 0 {
		return out
	}
	out.MeanKmean = stat.Mean(km, nil)
	out.MeanKgauss = stat.Mean(kg, nil)
	if len(km) > 1 {
		out.StdKmean = stat.StdDev(km, nil)
		out.StdKgauss = stat.StdDev(kg, nil)
	}
	return out
}
