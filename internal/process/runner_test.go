package process

import (
	"context"
	"errors"
	"os/exec"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecRunner_SpawnError(t *testing.T) {
	r := NewExecRunner()
	_, err := r.Run(context.Background(), Command{Name: "definitely-not-a-real-tool-1f3a"})

	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
	if spawnErr.Tool != "definitely-not-a-real-tool-1f3a" {
		t.Errorf("tool = %q", spawnErr.Tool)
	}
}

func TestExecRunner_ExitCodeAndStderr(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := NewExecRunner()
	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if string(res.Stderr) != "boom\n" {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestExecRunner_ContextCancel(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewExecRunner().Run(ctx, Command{Name: "sleep", Args: []string{"5"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestParseTool(t *testing.T) {
	tool, err := ParseTool(`espeak -v "es-la"`)
	if err != nil {
		t.Fatalf("ParseTool: %v", err)
	}
	if tool.Name != "espeak" || !reflect.DeepEqual(tool.BaseArgs, []string{"-v", "es-la"}) {
		t.Fatalf("unexpected tool %+v", tool)
	}

	cmd := tool.Command("/tmp/job", "-w", "out.wav", "--", "hello")
	want := []string{"-v", "es-la", "-w", "out.wav", "--", "hello"}
	if !reflect.DeepEqual(cmd.Args, want) || cmd.Dir != "/tmp/job" {
		t.Errorf("Command = %+v", cmd)
	}

	if _, err := ParseTool("   "); err == nil {
		t.Error("expected error for empty command")
	}
}

type blockingRunner struct {
	mu      sync.Mutex
	active  int32
	peak    int32
	release chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	n := atomic.AddInt32(&b.active, 1)
	b.mu.Lock()
	if n > b.peak {
		b.peak = n
	}
	b.mu.Unlock()
	<-b.release
	atomic.AddInt32(&b.active, -1)
	return Result{}, nil
}

func TestPool_BoundsConcurrency(t *testing.T) {
	inner := &blockingRunner{release: make(chan struct{})}
	pool := NewPool(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = pool.Run(context.Background(), Command{Name: "x"})
		}()
	}

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&inner.active); got != 2 {
		t.Errorf("active = %d, want 2", got)
	}
	close(inner.release)
	wg.Wait()

	if inner.peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", inner.peak)
	}
}

func TestPool_AcquireHonoursContext(t *testing.T) {
	inner := &blockingRunner{release: make(chan struct{})}
	pool := NewPool(inner, 1)
	defer close(inner.release)

	go func() { _, _ = pool.Run(context.Background(), Command{Name: "x"}) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Run(ctx, Command{Name: "y"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
