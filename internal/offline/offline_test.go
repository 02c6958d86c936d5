package offline

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TWRT/task-tracker/internal/client/tracker"
	"github.com/TWRT/task-tracker/internal/models"
	"github.com/TWRT/task-tracker/internal/repository"
	"github.com/TWRT/task-tracker/internal/service"
)

var ErrMockRemote error = &tracker.TransientError{Err: errors.New("remote unavailable")}

// MockRemote implements client.TaskRemote with overridable behaviour and
// records every operation it receives.
type MockRemote struct {
	ApplyFunc func(ctx context.Context, op models.Operation) (*models.Task, error)
	PingFunc  func(ctx context.Context) error

	mu      sync.Mutex
	applied []models.Operation
	calls   int
}

func (m *MockRemote) Apply(ctx context.Context, op models.Operation) (*models.Task, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.ApplyFunc != nil {
		task, err := m.ApplyFunc(ctx, op)
		if err != nil {
			return nil, err
		}
		m.record(op)
		return task, nil
	}
	m.record(op)
	return &models.Task{Id: op.TaskId}, nil
}

func (m *MockRemote) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func (m *MockRemote) record(op models.Operation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, op)
}

func (m *MockRemote) Applied() []models.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Operation(nil), m.applied...)
}

func (m *MockRemote) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type failingLog struct {
	Log
}

func (failingLog) Append(ctx context.Context, m *models.PendingMutation) error {
	return errors.New("disk full")
}

type localEnv struct {
	store *repository.Store
	queue *Queue
	svc   *service.TaskService
}

func newLocalEnv(t *testing.T) *localEnv {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := repository.NewStore(db)
	return &localEnv{
		store: store,
		queue: NewQueue(repository.NewMutationRepository(db)),
		svc:   service.NewTaskService(store),
	}
}

func completeOp(taskID string) models.Operation {
	return models.Operation{Kind: models.OpComplete, TaskId: taskID}
}

func mustEnqueue(t *testing.T, q *Queue, op models.Operation) *models.PendingMutation {
	t.Helper()
	m, err := q.Enqueue(context.Background(), op)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return m
}

func queued(t *testing.T, q *Queue) []models.PendingMutation {
	t.Helper()
	list, err := q.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	return list
}

func TestQueueFIFOAndRemoveByIdentity(t *testing.T) {
	ctx := context.Background()
	env := newLocalEnv(t)

	a := mustEnqueue(t, env.queue, completeOp("a"))
	b := mustEnqueue(t, env.queue, completeOp("b"))
	c := mustEnqueue(t, env.queue, completeOp("c"))
	if a.Path != "/tasks/a/complete" || a.Method != "POST" {
		t.Errorf("unexpected route %s %s", a.Method, a.Path)
	}

	if err := env.queue.Remove(ctx, b.Id); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	list := queued(t, env.queue)
	if len(list) != 2 || list[0].Id != a.Id || list[1].Id != c.Id {
		t.Fatalf("queue = %+v", list)
	}

	n, err := env.queue.Size(ctx)
	if err != nil || n != 2 {
		t.Errorf("Size = %d, %v", n, err)
	}
}

func TestFlushReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	env := newLocalEnv(t)
	remote := &MockRemote{}
	coord := NewCoordinator(env.queue, remote, time.Second)

	mustEnqueue(t, env.queue, completeOp("a"))
	mustEnqueue(t, env.queue, completeOp("b"))

	result, err := coord.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if result.Replayed != 2 || result.Failed != 0 || result.Remaining != 0 {
		t.Errorf("result = %+v", result)
	}

	applied := remote.Applied()
	if len(applied) != 2 || applied[0].TaskId != "a" || applied[1].TaskId != "b" {
		t.Errorf("remote received %+v, want a then b", applied)
	}
	if len(queued(t, env.queue)) != 0 {
		t.Error("expected empty queue")
	}
}

func TestFlushPartialFailure(t *testing.T) {
	ctx := context.Background()
	env := newLocalEnv(t)
	remote := &MockRemote{
		ApplyFunc: func(ctx context.Context, op models.Operation) (*models.Task, error) {
			if op.TaskId == "a" {
				return nil, ErrMockRemote
			}
			return &models.Task{Id: op.TaskId}, nil
		},
	}
	coord := NewCoordinator(env.queue, remote, time.Second)

	a := mustEnqueue(t, env.queue, completeOp("a"))
	mustEnqueue(t, env.queue, completeOp("b"))

	result, err := coord.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush must swallow replay errors, got %v", err)
	}
	if result.Replayed != 1 || result.Failed != 1 || result.Remaining != 1 {
		t.Errorf("result = %+v", result)
	}

	list := queued(t, env.queue)
	if len(list) != 1 || list[0].Id != a.Id {
		t.Fatalf("queue = %+v, want exactly a", list)
	}
	if list[0].Attempts != 1 || list[0].LastError == "" {
		t.Errorf("failure not recorded: %+v", list[0])
	}

	applied := remote.Applied()
	if len(applied) != 1 || applied[0].TaskId != "b" {
		t.Errorf("remote applied %+v, want b once", applied)
	}

	// The next drain retries a and leaves b alone.
	if _, err := coord.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	list = queued(t, env.queue)
	if len(list) != 1 || list[0].Attempts != 2 {
		t.Errorf("after second drain: %+v", list)
	}
	if got := len(remote.Applied()); got != 1 {
		t.Errorf("b applied %d times, want 1", got)
	}
}

func TestEnqueueDuringDrainSurvives(t *testing.T) {
	ctx := context.Background()
	env := newLocalEnv(t)

	var late *models.PendingMutation
	remote := &MockRemote{}
	remote.ApplyFunc = func(ctx context.Context, op models.Operation) (*models.Task, error) {
		if op.TaskId == "a" && late == nil {
			late = mustEnqueue(t, env.queue, completeOp("late"))
		}
		return &models.Task{Id: op.TaskId}, nil
	}
	coord := NewCoordinator(env.queue, remote, time.Second)

	mustEnqueue(t, env.queue, completeOp("a"))
	mustEnqueue(t, env.queue, completeOp("b"))

	result, err := coord.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if result.Attempted != 2 {
		t.Errorf("attempted %d, want the 2 entries of the snapshot", result.Attempted)
	}

	list := queued(t, env.queue)
	if len(list) != 1 || list[0].Id != late.Id {
		t.Fatalf("queue = %+v, want only the late entry", list)
	}
}

func TestFlushCancelledMidDrain(t *testing.T) {
	env := newLocalEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := &MockRemote{
		ApplyFunc: func(_ context.Context, op models.Operation) (*models.Task, error) {
			cancel()
			return &models.Task{Id: op.TaskId}, nil
		},
	}
	coord := NewCoordinator(env.queue, remote, time.Second)

	mustEnqueue(t, env.queue, completeOp("a"))
	b := mustEnqueue(t, env.queue, completeOp("b"))

	_, err := coord.Flush(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Flush err = %v, want context.Canceled", err)
	}

	list := queued(t, env.queue)
	if len(list) != 1 || list[0].Id != b.Id {
		t.Fatalf("queue = %+v, want only b", list)
	}
}

func TestReplayTimeoutDoesNotStopDrain(t *testing.T) {
	ctx := context.Background()
	env := newLocalEnv(t)
	remote := &MockRemote{
		ApplyFunc: func(ctx context.Context, op models.Operation) (*models.Task, error) {
			if op.TaskId == "slow" {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return &models.Task{Id: op.TaskId}, nil
		},
	}
	coord := NewCoordinator(env.queue, remote, 20*time.Millisecond)

	slow := mustEnqueue(t, env.queue, completeOp("slow"))
	mustEnqueue(t, env.queue, completeOp("fast"))

	result, err := coord.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if result.Replayed != 1 || result.Failed != 1 {
		t.Errorf("result = %+v", result)
	}
	list := queued(t, env.queue)
	if len(list) != 1 || list[0].Id != slow.Id {
		t.Errorf("queue = %+v, want only slow", list)
	}
}

func TestSessionOnlineSendsDirectly(t *testing.T) {
	ctx := context.Background()
	env := newLocalEnv(t)
	remote := &MockRemote{}
	session := NewSession(env.svc, env.queue, NewCoordinator(env.queue, remote, time.Second), remote)

	task, err := session.Apply(ctx, models.Operation{
		Kind:   models.OpCreate,
		Create: &models.CreateInput{Title: "Online task", EstimatedDays: 2},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	applied := remote.Applied()
	if len(applied) != 1 {
		t.Fatalf("remote received %d operations, want 1", len(applied))
	}
	if applied[0].Create.Id != task.Id || applied[0].Create.StartAt == nil {
		t.Errorf("create payload not self-contained: %+v", applied[0].Create)
	}
	if n, _ := session.Pending(ctx); n != 0 {
		t.Errorf("Pending = %d, want 0", n)
	}
}

func TestSessionOfflineQueuesAndReplays(t *testing.T) {
	ctx := context.Background()
	env := newLocalEnv(t)

	online := false
	remote := &MockRemote{
		ApplyFunc: func(ctx context.Context, op models.Operation) (*models.Task, error) {
			if !online {
				return nil, ErrMockRemote
			}
			return &models.Task{Id: op.TaskId}, nil
		},
	}
	session := NewSession(env.svc, env.queue, NewCoordinator(env.queue, remote, time.Second), remote)

	task, err := session.Apply(ctx, models.Operation{
		Kind:   models.OpCreate,
		Create: &models.CreateInput{Title: "Offline task", EstimatedDays: 1},
	})
	if err != nil {
		t.Fatalf("Apply create failed: %v", err)
	}
	if task.Status != models.StatusOnTrack {
		t.Errorf("optimistic status = %q", task.Status)
	}

	callsAfterCreate := remote.Calls()

	done, err := session.Apply(ctx, completeOp(task.Id))
	if err != nil {
		t.Fatalf("Apply complete failed: %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatal("expected local completion")
	}
	if _, err := session.Apply(ctx, models.Operation{Kind: models.OpExtend, TaskId: task.Id, AddDays: 3}); err != nil {
		t.Fatalf("Apply extend failed: %v", err)
	}

	if remote.Calls() != callsAfterCreate {
		t.Error("operations behind a non-empty queue must not be sent directly")
	}
	if n, _ := session.Pending(ctx); n != 3 {
		t.Fatalf("Pending = %d, want 3", n)
	}

	online = true
	result, err := session.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if result.Replayed != 3 || result.Remaining != 0 {
		t.Errorf("result = %+v", result)
	}

	applied := remote.Applied()
	kinds := []models.OperationKind{models.OpCreate, models.OpComplete, models.OpExtend}
	for i, want := range kinds {
		if applied[i].Kind != want {
			t.Errorf("replay[%d] = %s, want %s", i, applied[i].Kind, want)
		}
	}
	if applied[0].Create.Id != task.Id {
		t.Errorf("replayed create id = %q, want %q", applied[0].Create.Id, task.Id)
	}
	if applied[1].CompletedAt == nil || !applied[1].CompletedAt.Equal(*done.CompletedAt) {
		t.Errorf("replayed completion = %v, want %v", applied[1].CompletedAt, done.CompletedAt)
	}
	wantDue := task.DueAt.AddDate(0, 0, 3)
	if applied[2].DueAt == nil || !applied[2].DueAt.Equal(wantDue) || applied[2].AddDays != 3 {
		t.Errorf("replayed extend = %+v, want dueAt %v", applied[2], wantDue)
	}
}

func TestSessionRejectsInvalidWithoutQueueing(t *testing.T) {
	ctx := context.Background()
	env := newLocalEnv(t)
	remote := &MockRemote{}
	session := NewSession(env.svc, env.queue, NewCoordinator(env.queue, remote, time.Second), remote)

	_, err := session.Apply(ctx, models.Operation{
		Kind:   models.OpCreate,
		Create: &models.CreateInput{Title: "", EstimatedDays: 1},
	})
	if !service.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}

	_, err = session.Apply(ctx, models.Operation{Kind: models.OpExtend, TaskId: "missing", AddDays: 1})
	if !service.IsNotFound(err) {
		t.Errorf("err = %v, want NotFoundError", err)
	}

	if remote.Calls() != 0 {
		t.Errorf("remote called %d times", remote.Calls())
	}
	if n, _ := session.Pending(ctx); n != 0 {
		t.Errorf("Pending = %d, want 0", n)
	}
}

func TestSessionReportsQueueFailure(t *testing.T) {
	ctx := context.Background()
	env := newLocalEnv(t)
	broken := NewQueue(failingLog{Log: repository.NewMutationRepository(openDB(t))})
	remote := &MockRemote{
		ApplyFunc: func(ctx context.Context, op models.Operation) (*models.Task, error) {
			return nil, ErrMockRemote
		},
	}
	session := NewSession(env.svc, broken, NewCoordinator(broken, remote, time.Second), remote)

	_, err := session.Apply(ctx, models.Operation{
		Kind:   models.OpCreate,
		Create: &models.CreateInput{Title: "Will not be lost silently", EstimatedDays: 1},
	})
	if err == nil {
		t.Fatal("expected queue failure to be reported")
	}
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "other.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunTriggers(t *testing.T) {
	env := newLocalEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replayed := make(chan string, 4)
	remote := &MockRemote{
		ApplyFunc: func(ctx context.Context, op models.Operation) (*models.Task, error) {
			replayed <- op.TaskId
			return &models.Task{Id: op.TaskId}, nil
		},
	}
	refreshed := make(chan struct{}, 16)
	coord := NewCoordinator(env.queue, remote, time.Second).WithRefresher(refresherFunc(func(ctx context.Context) (int, error) {
		select {
		case refreshed <- struct{}{}:
		default:
		}
		return 0, nil
	}))

	restored := make(chan struct{})
	errc := make(chan error, 1)
	go func() { errc <- coord.Run(ctx, 20*time.Millisecond, restored) }()

	mustEnqueue(t, env.queue, completeOp("via-signal"))
	restored <- struct{}{}
	expectReplay(t, replayed, "via-signal")

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("tick did not refresh statuses")
	}

	mustEnqueue(t, env.queue, completeOp("via-tick"))
	expectReplay(t, replayed, "via-tick")

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v", err)
	}
}

func TestTickSkipsFlushWhenUnreachable(t *testing.T) {
	env := newLocalEnv(t)
	remote := &MockRemote{PingFunc: func(ctx context.Context) error { return ErrMockRemote }}
	coord := NewCoordinator(env.queue, remote, time.Second)

	mustEnqueue(t, env.queue, completeOp("a"))
	coord.tick(context.Background())

	if remote.Calls() != 0 {
		t.Errorf("remote Apply called %d times while unreachable", remote.Calls())
	}
	if list := queued(t, env.queue); len(list) != 1 || list[0].Attempts != 0 {
		t.Errorf("queue = %+v", list)
	}
}

func TestRunRejectsNonPositiveInterval(t *testing.T) {
	env := newLocalEnv(t)
	coord := NewCoordinator(env.queue, &MockRemote{}, time.Second)
	if err := coord.Run(context.Background(), 0, nil); err == nil {
		t.Error("expected error for zero interval")
	}
}

type refresherFunc func(ctx context.Context) (int, error)

func (f refresherFunc) RefreshStatuses(ctx context.Context) (int, error) { return f(ctx) }

func expectReplay(t *testing.T, replayed <-chan string, want string) {
	t.Helper()
	select {
	case got := <-replayed:
		if got != want {
			t.Errorf("replayed %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for replay of %q", want)
	}
}

func TestSessionSurfacesRemoteRejection(t *testing.T) {
	ctx := context.Background()
	env := newLocalEnv(t)
	task, err := env.svc.Create(ctx, models.CreateInput{Title: "Deleted on the server", EstimatedDays: 1})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	remote := &MockRemote{
		ApplyFunc: func(ctx context.Context, op models.Operation) (*models.Task, error) {
			return nil, &tracker.APIError{StatusCode: 404, Message: "task not found"}
		},
	}
	session := NewSession(env.svc, env.queue, NewCoordinator(env.queue, remote, time.Second), remote)

	_, err = session.Apply(ctx, completeOp(task.Id))
	if !tracker.IsNotFound(err) {
		t.Errorf("err = %v, want the 404 from the remote", err)
	}
	if n, _ := session.Pending(ctx); n != 0 {
		t.Errorf("Pending = %d, a rejected mutation must not be queued", n)
	}

	queuedFlag, err := session.EnqueueIfOffline(ctx, models.Operation{Kind: models.OpReopen, TaskId: task.Id})
	if err == nil || queuedFlag {
		t.Errorf("EnqueueIfOffline = %v, %v; want rejection and nothing queued", queuedFlag, err)
	}
}

func TestFlushDropsRejectedMutation(t *testing.T) {
	ctx := context.Background()
	env := newLocalEnv(t)
	remote := &MockRemote{
		ApplyFunc: func(ctx context.Context, op models.Operation) (*models.Task, error) {
			switch op.TaskId {
			case "gone":
				return nil, &tracker.APIError{StatusCode: 404}
			case "down":
				return nil, ErrMockRemote
			}
			return &models.Task{Id: op.TaskId}, nil
		},
	}
	coord := NewCoordinator(env.queue, remote, time.Second)

	mustEnqueue(t, env.queue, completeOp("gone"))
	down := mustEnqueue(t, env.queue, completeOp("down"))
	mustEnqueue(t, env.queue, completeOp("ok"))

	for i := 0; i < 3; i++ {
		if _, err := coord.Flush(ctx); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
	}

	list := queued(t, env.queue)
	if len(list) != 1 || list[0].Id != down.Id || list[0].Attempts != 3 {
		t.Fatalf("queue = %+v, want only the transient failure with 3 attempts", list)
	}

	calls := 0
	for _, op := range remote.Applied() {
		if op.TaskId == "ok" {
			calls++
		}
	}
	if calls != 1 {
		t.Errorf("ok replayed %d times, want 1", calls)
	}
}

func TestFlushCountsRejections(t *testing.T) {
	env := newLocalEnv(t)
	remote := &MockRemote{
		ApplyFunc: func(ctx context.Context, op models.Operation) (*models.Task, error) {
			return nil, &tracker.APIError{StatusCode: 400, Message: "validation: addDays must be at least 1"}
		},
	}
	coord := NewCoordinator(env.queue, remote, time.Second)
	mustEnqueue(t, env.queue, completeOp("a"))

	result, err := coord.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if result.Rejected != 1 || result.Failed != 0 || result.Remaining != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestWatchConnectivitySignalsOnRestore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var up atomic.Bool
	remote := &MockRemote{PingFunc: func(ctx context.Context) error {
		if up.Load() {
			return nil
		}
		return ErrMockRemote
	}}

	restored := WatchConnectivity(ctx, remote, 5*time.Millisecond, time.Second)

	expectNoSignal(t, restored, "while unreachable")

	up.Store(true)
	expectSignal(t, restored, "after first restore")
	expectNoSignal(t, restored, "while staying reachable")

	up.Store(false)
	time.Sleep(30 * time.Millisecond)
	up.Store(true)
	expectSignal(t, restored, "after second restore")
}

func TestRunFlushesWhenConnectivityReturns(t *testing.T) {
	env := newLocalEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var up atomic.Bool
	replayed := make(chan string, 4)
	remote := &MockRemote{
		PingFunc: func(ctx context.Context) error {
			if up.Load() {
				return nil
			}
			return ErrMockRemote
		},
		ApplyFunc: func(ctx context.Context, op models.Operation) (*models.Task, error) {
			replayed <- op.TaskId
			return &models.Task{Id: op.TaskId}, nil
		},
	}
	coord := NewCoordinator(env.queue, remote, time.Second)
	mustEnqueue(t, env.queue, completeOp("waiting"))

	// A tick far in the future leaves the restore signal as the only trigger.
	restored := WatchConnectivity(ctx, remote, 5*time.Millisecond, time.Second)
	go coord.Run(ctx, time.Hour, restored)

	time.Sleep(30 * time.Millisecond)
	if remote.Calls() != 0 {
		t.Fatalf("replayed while unreachable")
	}

	up.Store(true)
	expectReplay(t, replayed, "waiting")
}

func expectSignal(t *testing.T, ch <-chan struct{}, when string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("no restore signal %s", when)
	}
}

func expectNoSignal(t *testing.T, ch <-chan struct{}, when string) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("unexpected restore signal %s", when)
	case <-time.After(30 * time.Millisecond):
	}
}
