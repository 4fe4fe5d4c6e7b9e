/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: worker.go
Description: Worker loop for the crashprobe engine. Each worker owns one executor, picks a
seed from the shared scheduler, spends the seed's energy on mutated children and hands
every result back to the engine.
*/

package core

import (
	"context"
	"errors"
	"math/rand"

	"github.com/kleascm/crashprobe/pkg/interfaces"
	"github.com/kleascm/crashprobe/pkg/strategies"
)

// PreSpliceProbability is the chance a seed is spliced before mutation
const PreSpliceProbability = 0.1

// Worker runs mutated test cases through its executor
type Worker struct {
	ID       int
	engine   *Engine
	executor interfaces.Executor
	mutator  *strategies.ScheduleMutator
	roll     func() float64

	executions int64
}

// NewWorker creates a worker bound to engine
func NewWorker(id int, engine *Engine, executor interfaces.Executor) *Worker {
	return &Worker{
		ID:       id,
		engine:   engine,
		executor: executor,
		mutator:  strategies.NewScheduleMutator(engine.dictionary, engine.corpus),
		roll:     rand.Float64,
	}
}

// Run fuzzes until ctx is done. Executor failures other than cancellation
// end the session.
func (w *Worker) Run(ctx context.Context) error {
	defer func() {
		if err := w.executor.Cleanup(); err != nil {
			w.engine.logger.Warnf("Worker %d cleanup failed: %v", w.ID, err)
		}
	}()

	for ctx.Err() == nil {
		seed := w.engine.scheduler.Next()
		if seed == nil {
			return errors.New("corpus is empty")
		}

		for i := Energy(seed.Data); i > 0 && ctx.Err() == nil; i-- {
			child, err := w.mutate(seed)
			if err != nil {
				return err
			}
			if err := w.engine.process(ctx, w.executor, child); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.engine.logger.Errorf("Worker %d failed to execute test case: %v", w.ID, err)
				return err
			}
			w.executions++
		}
	}
	return nil
}

// mutate derives one child from seed, splicing first on some rounds
func (w *Worker) mutate(seed *interfaces.TestCase) (*interfaces.TestCase, error) {
	parent := seed
	if w.roll() < PreSpliceProbability {
		parent = &interfaces.TestCase{
			ID:         seed.ID,
			Data:       w.mutator.Splice(seed.Data),
			Generation: seed.Generation,
		}
	}
	child, err := w.mutator.Mutate(parent)
	if err != nil {
		return nil, err
	}
	child.Metadata["worker"] = w.ID
	return child, nil
}

// Executions returns how many test cases this worker ran
func (w *Worker) Executions() int64 { return w.executions }
