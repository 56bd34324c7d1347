package encoder

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Backend used by tests and by environments without
// an encoder binary. It records staged frames and run invocations and can
// be primed to fail or to emit synthetic progress.
type Memory struct {
	mu     sync.Mutex
	files  map[string][]byte
	runs   [][]string
	closed bool

	// RunErr, when set, fails the next Run call.
	RunErr error
	// Output is the artifact returned for any unknown name on ReadOutput.
	Output []byte
	// ProgressSteps are synthetic fractions emitted during Run.
	ProgressSteps []float64
}

func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

func (m *Memory) WorkDir() string {
	return "memory:"
}

func (m *Memory) WriteFrame(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("backend closed")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.files[name] = buf
	return nil
}

func (m *Memory) Run(ctx context.Context, args []string, onProgress func(float64)) error {
	m.mu.Lock()
	m.runs = append(m.runs, append([]string(nil), args...))
	err := m.RunErr
	steps := m.ProgressSteps
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	for _, f := range steps {
		if onProgress != nil {
			onProgress(f)
		}
	}
	if onProgress != nil {
		onProgress(1)
	}
	return nil
}

func (m *Memory) ReadOutput(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.files[name]; ok {
		return data, nil
	}
	if m.Output != nil {
		return m.Output, nil
	}
	return nil, fmt.Errorf("no output %q", name)
}

func (m *Memory) DeleteFile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.files = make(map[string][]byte)
	return nil
}

// FrameCount returns how many staged files remain.
func (m *Memory) FrameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// Frames returns the staged file names.
func (m *Memory) Frames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.files))
	for n := range m.files {
		names = append(names, n)
	}
	return names
}

// Runs returns every argument list passed to Run.
func (m *Memory) Runs() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs
}
