// Command oswrapper-demo wires backend/posix through internal/bootstrap
// and exercises ThreadPool, Mutex, EventFlag, and PeriodicTimer end to
// end, the way a host application embedding this module would.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/TheEntropyCollective/oswrapper/backend/posix"
	"github.com/TheEntropyCollective/oswrapper/errkind"
	"github.com/TheEntropyCollective/oswrapper/eventflag"
	"github.com/TheEntropyCollective/oswrapper/internal/bootstrap"
	"github.com/TheEntropyCollective/oswrapper/internal/obs"
	"github.com/TheEntropyCollective/oswrapper/mutex"
	"github.com/TheEntropyCollective/oswrapper/thread"
	"github.com/TheEntropyCollective/oswrapper/threadpool"
	"github.com/TheEntropyCollective/oswrapper/timer"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a JSON config file (optional; OSWRAP_* env vars and defaults apply regardless)")
		jobs       = flag.Int("jobs", 20, "number of demo tasks to submit to the pool")
		workers    = flag.Int("workers", 0, "thread pool worker count (0 selects bootstrap.DefaultPoolSize())")
	)
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oswrapper-demo: loading config: %v\n", err)
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.ThreadPoolSize = *workers
	}

	bootstrap.Init(*cfg, bootstrap.Backend(posix.Register))
	posix.SetPriorityRange(cfg.PriorityLow, cfg.PriorityHigh)

	pool, err := threadpool.Create(cfg.ResolvedPoolSize(), cfg.ThreadPoolStackSize, thread.PriorityNormal(), "oswrapper-demo-pool")
	if err != nil {
		obs.L().Fatalw("creating thread pool", "error", err)
	}
	defer threadpool.Destroy(pool)

	stats, err := timer.CreatePeriodic(runnableFunc(func() { logPoolStats(pool) }), time.Second, "oswrapper-demo-stats")
	if err != nil {
		obs.L().Fatalw("creating stats timer", "error", err)
	}
	defer timer.DestroyPeriodic(stats)
	stats.Start()

	counter, err := mutex.Create()
	if err != nil {
		obs.L().Fatalw("creating counter mutex", "error", err)
	}
	defer mutex.Destroy(counter)

	allDone, err := eventflag.Create(false)
	if err != nil {
		obs.L().Fatalw("creating completion event flag", "error", err)
	}
	defer eventflag.Destroy(allDone)

	total := 0
	var wg sync.WaitGroup
	for i := 0; i < *jobs; i++ {
		i := i
		wg.Add(1)
		task := runnableFunc(func() {
			defer wg.Done()
			time.Sleep(10 * time.Millisecond)
			guard := mutex.Lock(counter)
			total++
			guard.Release()
			obs.L().Infow("task finished", "index", i)
		})
		if errk := pool.Start(task, nil, thread.PriorityNormal()); errk != errkind.OK {
			obs.L().Warnw("failed to dispatch task", "index", i, "error", errk)
			wg.Done()
		}
	}

	go func() {
		wg.Wait()
		allDone.SetAll()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	select {
	case <-ctx.Done():
		obs.L().Infow("shutdown signal received, exiting before all tasks finished")
	case <-waitChan(allDone):
		guard := mutex.Lock(counter)
		obs.L().Infow("all demo tasks finished", "total", total)
		guard.Release()
	}
}

func logPoolStats(pool *threadpool.ThreadPool) {
	stats := pool.Stats()
	obs.L().Infow("pool stats", "capacity", stats.Capacity, "free", stats.Free, "in_flight", stats.InFlight)
}

func waitChan(ev eventflag.EventFlag) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		ev.WaitAny(errkind.Forever)
		close(done)
	}()
	return done
}

type runnableFunc func()

func (f runnableFunc) Run() { f() }
