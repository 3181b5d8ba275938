// Package supervisor runs collcache as N worker processes.
//
// The coordinator re-executes its own binary once per worker with
// EnvWorkerID set, then only watches: it never serves requests and never
// respawns a worker that exited. Restarting is left to the operator.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/unkn0wn-root/collcache"
)

// EnvWorkerID marks a worker process; its value is the 1-based worker id.
const EnvWorkerID = "COLLCACHE_WORKER_ID"

// Worker is a running worker process.
type Worker interface {
	PID() int
	// Wait blocks until the worker exits; nil means a clean exit.
	Wait() error
}

// Launcher starts worker id. Workers should stop when ctx is done.
type Launcher interface {
	Launch(ctx context.Context, id int) (Worker, error)
}

// WorkerID reports the id of the current process if it is a worker.
func WorkerID() (int, bool) {
	v := os.Getenv(EnvWorkerID)
	if v == "" {
		return 0, false
	}
	id, err := strconv.Atoi(v)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// IsWorker reports whether this process was launched by a supervisor.
func IsWorker() bool {
	_, ok := WorkerID()
	return ok
}

type Supervisor struct {
	Launcher Launcher
	Workers  int
	Logger   collcache.Logger // if nil, NopLogger is used
	Hooks    collcache.Hooks  // if nil, NopHooks is used
}

// Run launches every worker and returns after all of them exited. If a
// launch fails, workers already started are stopped and the launch error
// is returned. When ctx is done workers are asked to stop and Run returns
// nil once they are gone; otherwise it reports how many exited with an
// error.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.Launcher == nil {
		return errors.New("supervisor: nil launcher")
	}
	if s.Workers < 1 {
		return fmt.Errorf("supervisor: invalid worker count %d", s.Workers)
	}
	log := s.Logger
	if log == nil {
		log = collcache.NopLogger{}
	}
	hooks := s.Hooks
	if hooks == nil {
		hooks = collcache.NopHooks{}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	watch := func(id int, w Worker) {
		defer wg.Done()
		err := w.Wait()
		fields := collcache.Fields{"worker": id, "pid": w.PID(), "cause": cause(err)}
		if err != nil && ctx.Err() == nil {
			log.Error("collcache.worker_exit", fields)
			mu.Lock()
			failed++
			mu.Unlock()
		} else {
			log.Info("collcache.worker_exit", fields)
		}
		hooks.WorkerExited(id, w.PID(), err)
	}

	for id := 1; id <= s.Workers; id++ {
		w, err := s.Launcher.Launch(ctx, id)
		if err != nil {
			log.Error("collcache.worker_launch_failed", collcache.Fields{"worker": id, "err": err})
			cancel()
			wg.Wait()
			return fmt.Errorf("supervisor: launch worker %d: %w", id, err)
		}
		log.Info("collcache.worker_started", collcache.Fields{"worker": id, "pid": w.PID()})
		wg.Add(1)
		go watch(id, w)
	}

	wg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if failed > 0 {
		return fmt.Errorf("supervisor: %d of %d workers exited with an error", failed, s.Workers)
	}
	return nil
}

func cause(err error) string {
	if err == nil {
		return "exited cleanly"
	}
	return err.Error()
}
