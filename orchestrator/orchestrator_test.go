package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ensemblekit/ensemble/signal"
	"github.com/ensemblekit/ensemble/task"
)

// newTestOrchestrator wires a fresh bus, registry, and orchestrator with an
// isolated metrics registry. Started orchestrators are stopped via cleanup.
func newTestOrchestrator(t *testing.T, cfg Config) (*Orchestrator, *task.Registry, *signal.Bus) {
	t.Helper()

	bus := signal.New()
	reg, err := task.NewRegistry(task.RegistryConfig{Bus: bus})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	cfg.Bus = bus
	cfg.Registry = reg
	if cfg.Metrics == nil {
		cfg.Metrics = MustNewMetrics(prometheus.NewRegistry())
	}
	orch, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return orch, reg, bus
}

func startOrchestrator(t *testing.T, orch *Orchestrator) {
	t.Helper()
	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(orch.Stop)
}

// waitFor polls until the condition holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func succeedWith(value any) ExecFunc {
	return func(ctx context.Context) (any, error) {
		return value, nil
	}
}

func failWith(err error) ExecFunc {
	return func(ctx context.Context) (any, error) {
		return nil, err
	}
}

func TestNew_Validation(t *testing.T) {
	bus := signal.New()
	reg, err := task.NewRegistry(task.RegistryConfig{Bus: bus})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if _, err := New(Config{Registry: reg}); err == nil {
		t.Error("New without a bus should fail")
	}
	if _, err := New(Config{Bus: bus}); err == nil {
		t.Error("New without a registry should fail")
	}
}

func TestNew_Defaults(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, Config{})
	if orch.maxParallel != DefaultMaxParallelTasks {
		t.Errorf("maxParallel = %d, want %d", orch.maxParallel, DefaultMaxParallelTasks)
	}
	if orch.queueDepth != 2*DefaultMaxParallelTasks {
		t.Errorf("queueDepth = %d, want %d", orch.queueDepth, 2*DefaultMaxParallelTasks)
	}
}

func TestStartStop(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, Config{})

	if orch.Running() {
		t.Error("orchestrator should not be running before Start")
	}
	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !orch.Running() {
		t.Error("orchestrator should be running after Start")
	}
	if err := orch.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	orch.Stop()
	if orch.Running() {
		t.Error("orchestrator should not be running after Stop")
	}
	orch.Stop() // idempotent
}

func TestStop_Restartable(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, Config{})
	startOrchestrator(t, orch)
	orch.Stop()

	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("Start after Stop: %v", err)
	}
	defer orch.Stop()

	id, err := orch.CreateTask(TaskSpec{Name: "work", Exec: succeedWith("ok")})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := orch.ExecuteTask(context.Background(), id); err != nil {
		t.Errorf("ExecuteTask after restart: %v", err)
	}
}

func TestStop_CancelsRunningTask(t *testing.T) {
	orch, reg, _ := newTestOrchestrator(t, Config{})
	startOrchestrator(t, orch)

	entered := make(chan struct{})
	id, err := orch.CreateTask(TaskSpec{Name: "slow", Exec: func(ctx context.Context) (any, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		_, _ = orch.ExecuteParallel(context.Background(), []string{id})
	}()
	<-entered

	orch.Stop()
	<-returned

	got, _ := reg.Get(id)
	if got.Status != task.StatusFailed {
		t.Errorf("Status after Stop = %s, want failed", got.Status)
	}
}

func TestExecute_RequiresStart(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, Config{})
	id, err := orch.CreateTask(TaskSpec{Name: "work", Exec: succeedWith(nil)})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if _, err := orch.ExecuteTask(context.Background(), id); !errors.Is(err, ErrNotStarted) {
		t.Errorf("ExecuteTask err = %v, want ErrNotStarted", err)
	}
	if _, err := orch.ExecuteParallel(context.Background(), []string{id}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("ExecuteParallel err = %v, want ErrNotStarted", err)
	}
	if _, err := orch.ExecuteSequential(context.Background(), []string{id}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("ExecuteSequential err = %v, want ErrNotStarted", err)
	}
	if err := orch.RunUntilComplete(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("RunUntilComplete err = %v, want ErrNotStarted", err)
	}
}

func TestBackpressure_BoundedConcurrency(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, Config{MaxParallelTasks: 2, QueueDepth: 1})
	startOrchestrator(t, orch)

	var running, peak atomic.Int32
	ids := make([]string, 8)
	for i := range ids {
		id, err := orch.CreateTask(TaskSpec{Name: "work", Exec: func(ctx context.Context) (any, error) {
			cur := running.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		}})
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		ids[i] = id
	}

	results, err := orch.ExecuteParallel(context.Background(), ids)
	if err != nil {
		t.Fatalf("ExecuteParallel: %v", err)
	}
	for id, res := range results {
		if res.Err != nil {
			t.Errorf("task %s failed: %v", id, res.Err)
		}
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", got)
	}
}

func TestCooperativeCancellation(t *testing.T) {
	orch, reg, _ := newTestOrchestrator(t, Config{})
	startOrchestrator(t, orch)

	entered := make(chan struct{})
	id, err := orch.CreateTask(TaskSpec{Name: "slow", Exec: func(ctx context.Context) (any, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	type outcome struct {
		results map[string]Result
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := orch.ExecuteParallel(context.Background(), []string{id})
		done <- outcome{results, err}
	}()
	<-entered

	if _, err := reg.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	out := <-done
	if out.err != nil {
		t.Fatalf("ExecuteParallel: %v", out.err)
	}
	if !errors.Is(out.results[id].Err, context.Canceled) {
		t.Errorf("result err = %v, want context.Canceled", out.results[id].Err)
	}

	got, _ := reg.Get(id)
	if got.Status != task.StatusCancelled {
		t.Errorf("Status = %s, want cancelled", got.Status)
	}
}

func TestCancelWhileQueued(t *testing.T) {
	orch, reg, _ := newTestOrchestrator(t, Config{MaxParallelTasks: 1, QueueDepth: 2})
	startOrchestrator(t, orch)

	entered := make(chan struct{})
	release := make(chan struct{})
	blocker, err := orch.CreateTask(TaskSpec{Name: "blocker", Exec: func(ctx context.Context) (any, error) {
		close(entered)
		<-release
		return nil, nil
	}})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	queued, err := orch.CreateTask(TaskSpec{Name: "queued", Exec: succeedWith(nil)})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	type outcome struct {
		results map[string]Result
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := orch.ExecuteParallel(context.Background(), []string{blocker, queued})
		done <- outcome{results, err}
	}()
	<-entered

	// The second task sits in the queue behind the blocker; cancel it there.
	if _, err := reg.Cancel(queued); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(release)

	out := <-done
	if out.err != nil {
		t.Fatalf("ExecuteParallel: %v", out.err)
	}
	if out.results[blocker].Err != nil {
		t.Errorf("blocker err = %v, want nil", out.results[blocker].Err)
	}
	if !errors.Is(out.results[queued].Err, context.Canceled) {
		t.Errorf("queued err = %v, want context.Canceled", out.results[queued].Err)
	}

	got, _ := reg.Get(queued)
	if got.Status != task.StatusCancelled {
		t.Errorf("queued Status = %s, want cancelled", got.Status)
	}
}

func TestReactiveChaining(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, Config{})
	startOrchestrator(t, orch)

	t1, err := orch.CreateTask(TaskSpec{Name: "t1", Exec: succeedWith(1)})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	t2, err := orch.CreateTask(TaskSpec{Name: "t2", Dependencies: []string{t1}, Exec: succeedWith(2)})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if _, err := orch.ExecuteParallel(context.Background(), []string{t1}); err != nil {
		t.Fatalf("ExecuteParallel: %v", err)
	}

	// t2 was never submitted by the caller; the resolver runs it.
	waitFor(t, time.Second, "dependent task completed", func() bool {
		status, err := orch.TaskStatus(t2)
		return err == nil && status == task.StatusCompleted
	})
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.TaskSubmitted()
	m.TaskCompleted()
	m.TaskFailed()
	m.TaskCancelled()
	m.IncRunning()
	m.DecRunning()
	m.SetQueueDepth(3)
	m.ObserveTaskDuration(0.5)
}

func TestMustNewMetrics_ReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg) // must not panic on re-registration

	if first == nil || second == nil {
		t.Fatal("MustNewMetrics returned nil")
	}
	second.TaskCompleted()
	second.SetQueueDepth(1)
}
