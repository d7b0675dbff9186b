package agent

import (
	"fmt"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
	"gonum.org/v1/gonum/mat"

	"github.com/rustyeddy/tradegym/env"
	"github.com/rustyeddy/tradegym/history"
)

// ONNXOptions describe a model taking a float32 observation of shape
// [1, ObsShape...] and returning one score per action, shape [1, Actions].
type ONNXOptions struct {
	Model      string
	Library    string
	ObsShape   []int
	Actions    int
	InputName  string // default "input"
	OutputName string // default "output"
}

// ONNX plays the highest scoring action of an exported model.
type ONNX struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	size    int
}

func defaultLibrary() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	}
	return "/usr/lib/libonnxruntime.so"
}

// InitializeORT loads the onnxruntime shared library once per process.
func InitializeORT(lib string) error {
	if ort.IsInitialized() {
		return nil
	}
	if lib == "" {
		lib = defaultLibrary()
	}
	ort.SetSharedLibraryPath(lib)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("onnxruntime %s: %w", lib, err)
	}
	return nil
}

func NewONNX(o ONNXOptions) (*ONNX, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("onnx: model path is required")
	}
	if len(o.ObsShape) == 0 || o.Actions <= 0 {
		return nil, fmt.Errorf("onnx: observation shape %v and %d actions", o.ObsShape, o.Actions)
	}
	if o.InputName == "" {
		o.InputName = "input"
	}
	if o.OutputName == "" {
		o.OutputName = "output"
	}
	if err := InitializeORT(o.Library); err != nil {
		return nil, err
	}

	dims := []int64{1}
	size := 1
	for _, d := range o.ObsShape {
		dims = append(dims, int64(d))
		size *= d
	}
	input, err := ort.NewTensor(ort.NewShape(dims...), make([]float32, size))
	if err != nil {
		return nil, fmt.Errorf("onnx input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(o.Actions)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("onnx output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(o.Model,
		[]string{o.InputName}, []string{o.OutputName},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("onnx session %s: %w", o.Model, err)
	}

	return &ONNX{session: session, input: input, output: output, size: size}, nil
}

func (m *ONNX) Act(obs *mat.Dense, _ history.Record) (*int, error) {
	flat := env.Flatten(obs)
	if len(flat) != m.size {
		return nil, fmt.Errorf("onnx: observation has %d values, model takes %d", len(flat), m.size)
	}
	data := m.input.GetData()
	for i, x := range flat {
		data[i] = float32(x)
	}
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	a := argmax(m.output.GetData())
	return &a, nil
}

func (m *ONNX) Close() error {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.input != nil {
		m.input.Destroy()
	}
	if m.output != nil {
		m.output.Destroy()
	}
	return nil
}

// argmax returns the index of the largest score, the first one on ties.
func argmax(scores []float32) int {
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	return best
}
