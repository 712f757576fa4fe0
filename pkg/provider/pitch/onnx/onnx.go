// Package onnx implements pitch.Engine on top of ONNX Runtime using the
// github.com/yalue/onnxruntime_go bindings.
//
// The ONNX Runtime shared library must be available at run time. Its location
// can be set with [WithLibraryPath]; otherwise the bindings' platform default
// is used.
//
// One Engine owns one AdvancedSession and one pair of pre-allocated input and
// output tensors that are reused for every call, so Infer performs no
// per-frame allocations on the runtime side.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/MrWong99/pitchtrace/pkg/provider/pitch"
)

const (
	engineName = "onnx"

	defaultInputName  = "input"
	defaultOutputName = "output_0"
)

// Compile-time assertion that Engine satisfies pitch.Engine.
var _ pitch.Engine = (*Engine)(nil)

// envMu guards the process-wide ONNX Runtime environment, which is shared by
// every Engine and torn down when the last one closes.
var (
	envMu   sync.Mutex
	envRefs int
)

// Engine runs a packaged CREPE model through ONNX Runtime.
type Engine struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	closed  bool

	modelPath   string
	libraryPath string
	inputName   string
	outputName  string
	threads     int
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLibraryPath sets the path of the ONNX Runtime shared library.
func WithLibraryPath(path string) Option {
	return func(e *Engine) { e.libraryPath = path }
}

// WithInputName overrides the model's input binding name. Defaults to "input".
func WithInputName(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.inputName = name
		}
	}
}

// WithOutputName overrides the model's output binding name. Defaults to "output_0".
func WithOutputName(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.outputName = name
		}
	}
}

// WithIntraOpThreads sets the number of intra-op threads. Zero lets ONNX
// Runtime decide.
func WithIntraOpThreads(n int) Option {
	return func(e *Engine) { e.threads = n }
}

// New loads the model at modelPath and returns a ready Engine. The caller must
// call Close when done.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("onnx: modelPath must not be empty")
	}
	e := &Engine{
		modelPath:  modelPath,
		inputName:  defaultInputName,
		outputName: defaultOutputName,
	}
	for _, o := range opts {
		o(e)
	}

	if err := acquireEnvironment(e.libraryPath); err != nil {
		return nil, err
	}
	if err := e.load(); err != nil {
		e.destroyTensors()
		releaseEnvironment()
		return nil, err
	}

	slog.Info("onnx pitch model loaded",
		"path", modelPath,
		"input", e.inputName,
		"output", e.outputName,
	)
	return e, nil
}

func (e *Engine) load() error {
	var err error
	e.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, pitch.InputSize))
	if err != nil {
		return fmt.Errorf("onnx: create input tensor: %w", err)
	}
	e.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, pitch.ActivationSize))
	if err != nil {
		return fmt.Errorf("onnx: create output tensor: %w", err)
	}

	so, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("onnx: create session options: %w", err)
	}
	defer so.Destroy()
	if e.threads > 0 {
		if err := so.SetIntraOpNumThreads(e.threads); err != nil {
			slog.Warn("onnx: failed to set intra-op threads", "threads", e.threads, "err", err)
		}
	}

	e.session, err = ort.NewAdvancedSession(e.modelPath,
		[]string{e.inputName}, []string{e.outputName},
		[]ort.Value{e.input}, []ort.Value{e.output},
		so,
	)
	if err != nil {
		return fmt.Errorf("onnx: load model %q: %w", e.modelPath, err)
	}
	return nil
}

// Infer copies features into the input tensor, runs the session and returns a
// copy of the output tensor.
func (e *Engine) Infer(ctx context.Context, features []float32) (pitch.Activation, error) {
	if err := ctx.Err(); err != nil {
		return pitch.Activation{}, pitch.Wrap(engineName, err)
	}
	if err := pitch.CheckInput(features); err != nil {
		return pitch.Activation{}, pitch.Wrap(engineName, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return pitch.Activation{}, pitch.Wrap(engineName, pitch.ErrUnavailable)
	}

	copy(e.input.GetData(), features)
	if err := e.session.Run(); err != nil {
		return pitch.Activation{}, pitch.Wrap(engineName, err)
	}

	act, err := pitch.ToActivation(e.output.GetData())
	if err != nil {
		return pitch.Activation{}, pitch.Wrap(engineName, err)
	}
	for i, v := range act {
		if math.IsNaN(float64(v)) {
			return pitch.Activation{}, pitch.Wrap(engineName, fmt.Errorf("output bin %d is NaN", i))
		}
	}
	return act, nil
}

// Close destroys the session and tensors. Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if e.session != nil {
		errs = append(errs, e.session.Destroy())
	}
	errs = append(errs, e.destroyTensors())
	releaseEnvironment()
	return errors.Join(errs...)
}

func (e *Engine) destroyTensors() error {
	var errs []error
	if e.input != nil {
		errs = append(errs, e.input.Destroy())
		e.input = nil
	}
	if e.output != nil {
		errs = append(errs, e.output.Destroy())
		e.output = nil
	}
	return errors.Join(errs...)
}

func acquireEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 && !ort.IsInitialized() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("onnx: initialize runtime: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	envRefs--
	if envRefs > 0 {
		return
	}
	envRefs = 0
	if err := ort.DestroyEnvironment(); err != nil {
		slog.Warn("onnx: destroy runtime environment", "err", err)
	}
}
