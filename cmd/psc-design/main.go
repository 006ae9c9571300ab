package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/arknyazev/pscopt/core"
	"github.com/arknyazev/pscopt/field"
	"github.com/arknyazev/pscopt/geo"
	"github.com/arknyazev/pscopt/internal/archive"
	"github.com/arknyazev/pscopt/internal/logging"
	"github.com/arknyazev/pscopt/internal/observability"
)

func main() {
	r0 := flag.Float64("major-radius", 1.0, "plasma major radius (m)")
	aMinor := flag.Float64("minor-radius", 0.3, "plasma minor radius (m)")
	nfp := flag.Int("nfp", 2, "number of field periods")
	stellsym := flag.Bool("stellsym", true, "stellarator symmetry")
	poff := flag.Float64("plasma-offset", 0.2, "standoff between plasma and inner winding surface (m)")
	coff := flag.Float64("coil-offset", 0.2, "thickness of the winding shell beyond the inner surface (m)")
	nphi := flag.Int("nphi", 32, "toroidal quadrature points on the plasma surface")
	ntheta := flag.Int("ntheta", 32, "poloidal quadrature points on the plasma surface")
	nx := flag.Int("nx", 12, "grid resolution in x")
	ny := flag.Int("ny", 12, "grid resolution in y")
	nz := flag.Int("nz", 12, "grid resolution in z")
	tfCoils := flag.Int("tf-coils", 4, "toroidal-field coils per half field period")
	tfCurrent := flag.Float64("tf-current", 1e5, "toroidal-field coil current (A)")
	initPolicy := flag.String("init", "zeros", "orientation initialization: zeros | random | field | plasma")
	maxIter := flag.Int("max-iter", 100, "optimizer major-iteration limit")
	metricsAddr := flag.String("metrics-addr", "", "address for the Prometheus /metrics endpoint (empty disables)")
	archivePath := flag.String("archive", "", "SQLite file to archive the run into (empty disables)")
	plotPath := flag.String("plot", "", "PNG file for the convergence plot (empty disables)")

	flag.Parse()

	log := logging.NewFromEnv()
	ctx, log := logging.WithRunLogger(context.Background(), log)
	runID := logging.RunIDFromContext(ctx)

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		fatal(ctx, "init tracing", err)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdown, log)

	collector, err := observability.NewSolverCollector(nil)
	if err != nil {
		fatal(ctx, "init metrics", err)
	}
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error(ctx, "metrics server stopped", logging.Any("err", err))
			}
		}()
		log.Info(ctx, "metrics endpoint up", logging.String("addr", *metricsAddr))
	}

	// ==== Geometry: plasma boundary and winding shell ====

	plasma, err := geo.NewTorus(*r0, *aMinor, *nfp, *stellsym, *nphi, *ntheta)
	if err != nil {
		fatal(ctx, "plasma surface", err)
	}
	inner, err := geo.NewTorus(*r0, *aMinor+*poff, *nfp, *stellsym, *nphi, *ntheta)
	if err != nil {
		fatal(ctx, "inner winding surface", err)
	}
	outer, err := geo.NewTorus(*r0, *aMinor+*poff+*coff, *nfp, *stellsym, *nphi, *ntheta)
	if err != nil {
		fatal(ctx, "outer winding surface", err)
	}
	shell, err := geo.NewShell(inner, outer)
	if err != nil {
		fatal(ctx, "winding shell", err)
	}

	grid, err := core.BuildGrid(plasma, outer, shell, core.GridConfig{
		Nx: *nx, Ny: *ny, Nz: *nz,
		PlasmaOffset: *poff,
	})
	if err != nil {
		fatal(ctx, "grid build", err)
	}
	collector.SetGridShape(grid.NumCoils(), grid.SymmetryOrder())
	log.Info(ctx, "coil grid placed",
		logging.Int("coils", grid.NumCoils()),
		logging.Float64("coil_radius", grid.Geom.R),
	)

	// ==== External field: toroidal-field coil set ====

	tf, err := field.EquallySpacedCoils(*r0, *aMinor+*poff+*coff+grid.Geom.R, *tfCurrent, *tfCoils, *nfp, *stellsym, 128)
	if err != nil {
		fatal(ctx, "tf coils", err)
	}

	policy, err := parseInit(*initPolicy)
	if err != nil {
		fatal(ctx, "init policy", err)
	}
	engine, err := core.NewObjectiveEngine(grid, plasma, tf, core.ObjectiveConfig{
		Init:   policy,
		Logger: log,
	})
	if err != nil {
		fatal(ctx, "objective engine", err)
	}

	// ==== Optimization ====

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			start := time.Now()
			loss, err := engine.Evaluate(x)
			if err != nil {
				log.Error(ctx, "evaluate failed", logging.Any("err", err))
				return math.Inf(1)
			}
			collector.ObserveEvaluation(loss, time.Since(start))
			return loss
		},
		Grad: func(dst, x []float64) {
			start := time.Now()
			g, err := engine.Gradient(x)
			if err != nil {
				log.Error(ctx, "gradient failed", logging.Any("err", err))
				for i := range dst {
					dst[i] = 0
				}
				return
			}
			copy(dst, g)
			collector.ObserveGradient(time.Since(start))
		},
	}

	x0 := engine.Orientation().Kappas()
	settings := &optimize.Settings{
		MajorIterations:   *maxIter,
		GradientThreshold: 1e-10,
	}

	log.Info(ctx, "starting optimization",
		logging.Int("variables", engine.NumVars()),
		logging.Int("max_iterations", *maxIter),
	)
	_, span := otel.Tracer("psc-design").Start(ctx, "optimize",
		trace.WithAttributes(
			attribute.Int("coils", grid.NumCoils()),
			attribute.Int("variables", engine.NumVars()),
		))
	optStart := time.Now()
	result, err := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{})
	span.End()
	if err != nil {
		log.Warn(ctx, "optimizer stopped early", logging.Any("err", err))
	}

	finalLoss, err := engine.Evaluate(result.X)
	if err != nil {
		fatal(ctx, "final evaluation", err)
	}
	log.Info(ctx, "optimization finished",
		logging.Float64("final_loss", finalLoss),
		logging.Int("evaluations", len(engine.History())),
		logging.Duration("elapsed", time.Since(optStart)),
		logging.String("status", result.Status.String()),
	)

	// ==== Run artifacts ====

	if *archivePath != "" {
		if err := archiveRun(runID, *archivePath, grid, engine, finalLoss); err != nil {
			log.Error(ctx, "archive failed", logging.Any("err", err))
		} else {
			log.Info(ctx, "run archived",
				logging.String("path", *archivePath),
				logging.String("run_id", runID),
			)
		}
	}

	if *plotPath != "" {
		if err := plotConvergence(engine.History(), *plotPath); err != nil {
			log.Error(ctx, "convergence plot failed", logging.Any("err", err))
		} else {
			log.Info(ctx, "convergence plot written", logging.String("path", *plotPath))
		}
	}
}

func parseInit(s string) (core.InitPolicy, error) {
	switch s {
	case "zeros", "":
		return core.InitZeros, nil
	case "random":
		return core.InitRandom, nil
	case "field":
		return core.InitFieldAligned, nil
	case "plasma":
		return core.InitPlasmaAligned, nil
	default:
		return 0, fmt.Errorf("unknown init policy %q", s)
	}
}

func archiveRun(runID, path string, grid *core.CoilGrid, engine *core.ObjectiveEngine, finalLoss float64) error {
	db, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.BeginRun(runID, grid.NFP, grid.StellSym, grid.NumCoils(), grid.Geom.R); err != nil {
		return err
	}
	if err := db.SaveLossHistory(runID, engine.History()); err != nil {
		return err
	}

	o := engine.Orientation()
	currents := engine.Currents()
	coils := make([]archive.Coil, grid.NumCoils())
	for i, c := range grid.Centers {
		coils[i] = archive.Coil{
			RunID:   runID,
			Coil:    i,
			CX:      c.X,
			CY:      c.Y,
			CZ:      c.Z,
			Alpha:   o.Alphas[i],
			Delta:   o.Deltas[i],
			Current: currents[i],
		}
	}
	if err := db.SaveCoils(runID, coils); err != nil {
		return err
	}
	return db.FinishRun(runID, finalLoss)
}

func plotConvergence(history []float64, path string) error {
	pts := make(plotter.XYs, len(history))
	for i, loss := range history {
		pts[i] = plotter.XY{X: float64(i), Y: loss}
	}

	p := plot.New()
	p.Title.Text = "Squared-flux convergence"
	p.X.Label.Text = "evaluation"
	p.Y.Label.Text = "loss"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	p.Add(line)

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

func fatal(ctx context.Context, what string, err error) {
	logging.LoggerFromContext(ctx).Error(ctx, what, logging.Any("err", err))
	os.Exit(1)
}
