package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codecontextai/codecontext/pkg/db"
)

// MockQueue hands out a fixed list of projects then returns nil
type MockQueue struct {
	mu       sync.Mutex
	projects []*db.Project
	claims   int
}

func (m *MockQueue) ClaimNextIndexingProject(staleAfter time.Duration) (*db.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims++
	if len(m.projects) == 0 {
		return nil, nil
	}
	p := m.projects[0]
	m.projects = m.projects[1:]
	return p, nil
}

func TestDrain_ProcessesAllQueued(t *testing.T) {
	queue := &MockQueue{projects: []*db.Project{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	}}

	var mu sync.Mutex
	var ran []string
	runner := RunnerFunc(func(ctx context.Context, p *db.Project) error {
		mu.Lock()
		defer mu.Unlock()
		ran = append(ran, p.ID)
		return nil
	})

	w := NewIndexWorker(nil, queue, runner)
	w.drain(context.Background())

	if len(ran) != 3 {
		t.Fatalf("Expected 3 projects run, got %d", len(ran))
	}
	if ran[0] != "a" || ran[1] != "b" || ran[2] != "c" {
		t.Errorf("Projects run out of order: %v", ran)
	}
}

func TestDrain_ContinuesAfterRunnerError(t *testing.T) {
	queue := &MockQueue{projects: []*db.Project{
		{ID: "bad"}, {ID: "good"},
	}}

	var mu sync.Mutex
	var ran []string
	runner := RunnerFunc(func(ctx context.Context, p *db.Project) error {
		mu.Lock()
		defer mu.Unlock()
		ran = append(ran, p.ID)
		if p.ID == "bad" {
			return errors.New("boom")
		}
		return nil
	})

	w := NewIndexWorker(nil, queue, runner)
	w.drain(context.Background())

	if len(ran) != 2 {
		t.Fatalf("Expected failure to not stop the drain, ran %v", ran)
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	queue := &MockQueue{}
	runner := RunnerFunc(func(ctx context.Context, p *db.Project) error { return nil })

	w := NewIndexWorker(&Config{PollInterval: 10 * time.Millisecond}, queue, runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Worker did not stop after cancel")
	}

	queue.mu.Lock()
	claims := queue.claims
	queue.mu.Unlock()
	if claims == 0 {
		t.Error("Worker never polled the queue")
	}
}
