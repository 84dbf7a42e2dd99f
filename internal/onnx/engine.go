package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	onnxrt "github.com/yalue/onnxruntime_go"
)

// Engine owns the ONNX Runtime environment and loads models. Model
// handles are immutable after load and safe to share across workers.
type Engine struct {
	mu     sync.Mutex
	models []*Model
}

// ModelOptions configures a single loaded model.
type ModelOptions struct {
	NumThreads int       // intra-op threads (0 = runtime default)
	QueueDepth int       // pending-job queue capacity (0 = 8)
	GPU        GPUConfig // CUDA acceleration settings
}

const defaultQueueDepth = 8

// NewEngine initializes the shared ONNX Runtime environment.
func NewEngine() (*Engine, error) {
	if err := setLibraryPath(); err != nil {
		return nil, err
	}
	if !onnxrt.IsInitialized() {
		if err := onnxrt.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
		}
	}
	return &Engine{}, nil
}

// Load creates a model handle for the ONNX file at path.
func (e *Engine) Load(path string, opts ModelOptions) (*Model, error) {
	if path == "" {
		return nil, errors.New("model path cannot be empty")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file not found: %s", path)
	}

	inputs, outputs, err := onnxrt.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 output, got %d", len(outputs))
	}

	sessOpts, err := onnxrt.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer func() { _ = sessOpts.Destroy() }()
	if opts.NumThreads > 0 {
		_ = sessOpts.SetIntraOpNumThreads(opts.NumThreads)
	}
	if err := ConfigureSessionForGPU(sessOpts, opts.GPU); err != nil {
		slog.Warn("GPU configuration failed, falling back to CPU", "model", path, "error", err)
	}

	session, err := onnxrt.NewDynamicAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, sessOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", path, err)
	}

	depth := opts.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	m := &Model{
		path:       path,
		session:    session,
		inputInfo:  inputs[0],
		outputInfo: outputs[0],
		jobs:       make(chan *Job, depth),
	}
	m.wg.Add(1)
	go m.dispatchLoop()

	e.mu.Lock()
	e.models = append(e.models, m)
	e.mu.Unlock()

	slog.Debug("Model loaded", "path", path, "input", inputs[0].Name, "output", outputs[0].Name)
	return m, nil
}

// Close shuts down all models loaded through this engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	models := e.models
	e.models = nil
	e.mu.Unlock()

	var firstErr error
	for _, m := range models {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Model is an opaque handle to a loaded network. Submissions are run by
// one dispatch goroutine, so completions are FIFO per model: Await on a
// job always returns that job's output.
type Model struct {
	path       string
	session    *onnxrt.DynamicAdvancedSession
	inputInfo  onnxrt.InputOutputInfo
	outputInfo onnxrt.InputOutputInfo
	jobs       chan *Job
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// Job is the handle for one in-flight inference.
type Job struct {
	input  Tensor
	output Tensor
	err    error
	done   chan struct{}
}

// Path returns the model file this handle was loaded from.
func (m *Model) Path() string { return m.path }

// InputShape returns the declared input tensor dimensions.
func (m *Model) InputShape() []int64 {
	shape := make([]int64, len(m.inputInfo.Dimensions))
	copy(shape, m.inputInfo.Dimensions)
	return shape
}

// Submit enqueues the tensor for inference and returns a job handle.
// Blocks when the model's queue is full.
func (m *Model) Submit(t Tensor) *Job {
	j := &Job{input: t, done: make(chan struct{})}
	m.jobs <- j
	return j
}

// Await blocks until the job completes or ctx is cancelled.
func (j *Job) Await(ctx context.Context) (Tensor, error) {
	select {
	case <-j.done:
		return j.output, j.err
	case <-ctx.Done():
		return Tensor{}, ctx.Err()
	}
}

// Run is a convenience for Submit followed by Await.
func (m *Model) Run(ctx context.Context, t Tensor) (Tensor, error) {
	return m.Submit(t).Await(ctx)
}

// Close stops the dispatch loop and releases the session. Pending jobs
// are completed before the session is destroyed.
func (m *Model) Close() error {
	m.closeOnce.Do(func() {
		close(m.jobs)
	})
	m.wg.Wait()
	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			slog.Warn("Failed to destroy session", "model", m.path, "error", err)
		}
		m.session = nil
	}
	return nil
}

func (m *Model) dispatchLoop() {
	defer m.wg.Done()
	for j := range m.jobs {
		j.output, j.err = m.runOne(j.input)
		close(j.done)
	}
}

func (m *Model) runOne(t Tensor) (Tensor, error) {
	if err := t.Verify(); err != nil {
		return Tensor{}, err
	}
	input, err := onnxrt.NewTensor(onnxrt.NewShape(t.Shape...), t.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("create input tensor: %w", err)
	}
	defer func() { _ = input.Destroy() }()

	outs := []onnxrt.Value{nil}
	if err := m.session.Run([]onnxrt.Value{input}, outs); err != nil {
		return Tensor{}, fmt.Errorf("inference failed for %s: %w", filepath.Base(m.path), err)
	}
	if len(outs) == 0 || outs[0] == nil {
		return Tensor{}, errors.New("no output from model")
	}
	defer func() { _ = outs[0].Destroy() }()

	ot, ok := outs[0].(*onnxrt.Tensor[float32])
	if !ok {
		return Tensor{}, errors.New("unexpected output tensor type")
	}
	shape := ot.GetShape()
	outShape := make([]int64, len(shape))
	copy(outShape, shape)
	src := ot.GetData()
	data := make([]float32, len(src))
	copy(data, src)
	return Tensor{Data: data, Shape: outShape}, nil
}

const (
	libLinux   = "libonnxruntime.so"
	libDarwin  = "libonnxruntime.dylib"
	libWindows = "onnxruntime.dll"
)

// setLibraryPath points onnxruntime_go at the shared library. The
// ONNXRUNTIME_LIB_PATH environment variable wins; otherwise we look next
// to the executable and in the working directory.
func setLibraryPath() error {
	if path := os.Getenv("ONNXRUNTIME_LIB_PATH"); path != "" {
		onnxrt.SetSharedLibraryPath(path)
		return nil
	}

	var libName string
	switch runtime.GOOS {
	case "linux":
		libName = libLinux
	case "darwin":
		libName = libDarwin
	case "windows":
		libName = libWindows
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), libName)
		if _, err := os.Stat(candidate); err == nil {
			onnxrt.SetSharedLibraryPath(candidate)
			return nil
		}
	}
	onnxrt.SetSharedLibraryPath(libName)
	return nil
}
