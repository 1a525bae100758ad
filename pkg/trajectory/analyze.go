package trajectory

import (
	"context"
	"errors"
	"io"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"src.sel.sh/pkg/logutil"
	"src.sel.sh/pkg/selection"
	"src.sel.sh/pkg/topo"
)

var logger = logutil.GetLogger("[trajectory] ")

// Setup creates a collection with its selections parsed. Analyze calls it
// once per worker, so every call must produce the same selections.
type Setup func() (*selection.Collection, error)

// Result holds the selections of one frame.
type Result struct {
	// Index is the position of the frame in the source.
	Index      int
	Frame      *topo.Frame
	Selections []Snapshot
}

// Snapshot is a copy of the state of one selection after evaluation.
type Snapshot struct {
	Name      string
	Indices   []int
	Positions []topo.Vec3
}

// Summary holds statistics over all analyzed frames.
type Summary struct {
	NFrames   int
	Names     []string
	AvgCounts []float64
	MaxCounts []int
}

type job struct {
	index int
	frame *topo.Frame
}

// Analyze evaluates selections on every frame of src with the given number
// of workers. Each worker owns a collection made by setup. Results are
// passed to visit in frame order; an error from visit stops the analysis,
// and so does any evaluation error. A nonpositive workers means one worker
// per CPU. Final hooks of methods run once per worker with the number of
// frames that worker evaluated.
func Analyze(ctx context.Context, src Source, workers int, setup Setup, visit func(Result) error) (*Summary, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	jobs := make(chan job)
	g.Go(func() error {
		defer close(jobs)
		for i := 0; ; i++ {
			f, err := src.Next(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			} else if err != nil {
				return err
			}
			select {
			case jobs <- job{i, f}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	var (
		mu  sync.Mutex
		sum = &Summary{}
		// Total selected atoms per selection.
		totals []int
	)
	results := make(chan Result, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			c, err := setup()
			if err != nil {
				return err
			}
			if err := c.Compile(); err != nil {
				return err
			}
			sels := c.Selections()
			n := 0
			for j := range jobs {
				if err := c.Evaluate(j.frame); err != nil {
					return err
				}
				n++
				r := Result{Index: j.index, Frame: j.frame, Selections: make([]Snapshot, len(sels))}
				for i, s := range sels {
					r.Selections[i] = Snapshot{
						Name:      s.Name(),
						Indices:   slices.Clone(s.Indices()),
						Positions: slices.Clone(s.Positions()),
					}
				}
				select {
				case results <- r:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if n == 0 {
				return nil
			}
			if err := c.EvaluateFinal(n); err != nil {
				return err
			}
			logger.Printf("worker %d evaluated %d frames", w, n)

			mu.Lock()
			defer mu.Unlock()
			if sum.Names == nil {
				for _, s := range sels {
					sum.Names = append(sum.Names, s.Name())
				}
				totals = make([]int, len(sels))
				sum.MaxCounts = make([]int, len(sels))
			}
			sum.NFrames += n
			for i, s := range sels {
				totals[i] += int(s.AvgCount()*float64(n) + 0.5)
				sum.MaxCounts[i] = max(sum.MaxCounts[i], s.MaxCount())
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Deliver in frame order.
	var visitErr error
	pending := map[int]Result{}
	next := 0
	for r := range results {
		if visitErr != nil {
			continue
		}
		pending[r.Index] = r
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if err := visit(r); err != nil {
				visitErr = err
				cancel()
				break
			}
		}
	}
	if err := g.Wait(); err != nil && visitErr == nil {
		return nil, err
	}
	if visitErr != nil {
		return nil, visitErr
	}
	sum.AvgCounts = make([]float64, len(totals))
	for i, t := range totals {
		if sum.NFrames > 0 {
			sum.AvgCounts[i] = float64(t) / float64(sum.NFrames)
		}
	}
	return sum, nil
}
