// Package tflite wraps pretrained TensorFlow Lite authenticity
// classifiers. Models load once at process start; a model that fails to
// load stays unavailable for the process lifetime and the pipeline
// degrades to the heuristic path, never to a per-request error.
package tflite

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/tphakala/go-tflite"

	"github.com/bramasta/verimedia/internal/domain/analysis"
)

type Adapter struct {
	name        string
	interpreter *tflite.Interpreter
	model       *tflite.Model

	// the C runtime is not safe for concurrent Invoke, serialize here
	mu sync.Mutex

	available bool
}

// New loads the model at path. A load failure is reported to the caller
// for logging but the returned adapter is still usable: Available()
// is false and Infer routes to the fallback.
func New(name, path string, threads int) (*Adapter, error) {
	a := &Adapter{name: name}
	if path == "" {
		return a, fmt.Errorf("%s: no model path configured", name)
	}

	model := tflite.NewModelFromFile(path)
	if model == nil {
		return a, fmt.Errorf("%s: cannot load model from %s", name, path)
	}

	options := tflite.NewInterpreterOptions()
	if threads > 0 {
		options.SetNumThread(threads)
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return a, fmt.Errorf("%s: cannot create interpreter", name)
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return a, fmt.Errorf("%s: tensor allocation failed", name)
	}

	a.model = model
	a.interpreter = interpreter
	a.available = true
	return a, nil
}

// ID identifies the analyzer path in stored results.
func (a *Adapter) ID() string { return a.name }

// Available is fixed at process start; load failures are never retried
// per request.
func (a *Adapter) Available() bool { return a.available }

// Infer runs one unit through the network and returns the probability
// of the unit being fake.
func (a *Adapter) Infer(ctx context.Context, input []float32) (float64, error) {
	if !a.available {
		return 0, analysis.ErrModelUnavailable
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%v: %w", err, analysis.ErrCanceled)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	in := a.interpreter.GetInputTensor(0)
	if in == nil {
		return 0, fmt.Errorf("%s: cannot get input tensor: %w", a.name, analysis.ErrTransientInference)
	}
	dst := in.Float32s()
	if len(dst) != len(input) {
		return 0, fmt.Errorf("%s: input length %d, model expects %d", a.name, len(input), len(dst))
	}
	copy(dst, input)

	if status := a.interpreter.Invoke(); status != tflite.OK {
		return 0, fmt.Errorf("%s: invoke failed: %w", a.name, analysis.ErrTransientInference)
	}

	out := a.interpreter.GetOutputTensor(0)
	if out == nil {
		return 0, fmt.Errorf("%s: cannot get output tensor: %w", a.name, analysis.ErrTransientInference)
	}
	return scoreFromOutput(out.Float32s()), nil
}

// scoreFromOutput normalizes the two output head shapes seen in the
// wild: a single logit, or a {real, fake} pair.
func scoreFromOutput(raw []float32) float64 {
	switch len(raw) {
	case 0:
		return 0
	case 1:
		return sigmoid(float64(raw[0]))
	default:
		// softmax over the first two classes, fake is index 1; shift by
		// the max logit so large logits cannot overflow Exp
		a := float64(raw[0])
		b := float64(raw[1])
		m := math.Max(a, b)
		ea := math.Exp(a - m)
		eb := math.Exp(b - m)
		return eb / (ea + eb)
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// Close releases the C-side buffers. Only called at shutdown.
func (a *Adapter) Close() {
	if a.interpreter != nil {
		a.interpreter.Delete()
	}
	if a.model != nil {
		a.model.Delete()
	}
	a.available = false
}
