package classify

import (
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/cormorant-bio/indelclass/internal/features"
)

// ortEnv manages global ONNX Runtime initialization (process-wide
// singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Safe to call
// multiple times; only the first call has any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNXModel runs a converted classifier through ONNX Runtime. The
// artifact must take a single [batch, n_features] float32 input and
// produce a [batch, 3] probability tensor in (somatic, germline,
// artifact) order. The runtime shared library ships alongside the
// artifacts in the models directory.
type ONNXModel struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string

	// One inference at a time; sessions tolerate concurrent Run but the
	// artifacts make no such promise.
	mu sync.Mutex
}

// LoadONNX loads an ONNX artifact and validates its tensor shapes
// against the feature schema.
func LoadONNX(path string) (*ONNXModel, error) {
	libPath := filepath.Join(filepath.Dir(path), "libonnxruntime.so")
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}

	name := filepath.Base(path)
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx model %s: expected one input tensor, found %d", name, len(inputs))
	}
	in := inputs[0]
	if len(in.Dimensions) == 0 {
		return nil, fmt.Errorf("onnx model %s: input %s has no dimensions", name, in.Name)
	}
	if err := features.CheckWidth(name, int(in.Dimensions[len(in.Dimensions)-1])); err != nil {
		return nil, err
	}

	var outputName string
	for _, out := range outputs {
		d := out.Dimensions
		if len(d) == 2 && d[1] == 3 {
			outputName = out.Name
			break
		}
	}
	if outputName == "" {
		return nil, fmt.Errorf("onnx model %s: no [batch, 3] probability output", name)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(1)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(path, []string{in.Name}, []string{outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &ONNXModel{session: session, inputName: in.Name, outputName: outputName}, nil
}

// Probs runs one inference call.
func (m *ONNXModel) Probs(x []float64) ([3]float64, error) {
	var out [3]float64

	vals := make([]float32, len(x))
	for i, v := range x {
		vals[i] = float32(v)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tIn, err := ort.NewTensor(ort.NewShape(1, int64(len(x))), vals)
	if err != nil {
		return out, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer tIn.Destroy()

	tOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3))
	if err != nil {
		return out, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer tOut.Destroy()

	if err := m.session.Run([]ort.Value{tIn}, []ort.Value{tOut}); err != nil {
		return out, fmt.Errorf("onnx: inference failed: %w", err)
	}

	probs := tOut.GetData()
	if len(probs) < 3 {
		return out, fmt.Errorf("onnx: probability tensor has %d values", len(probs))
	}
	for i := 0; i < 3; i++ {
		out[i] = float64(probs[i])
	}
	return out, nil
}

// Close releases the session resources.
func (m *ONNXModel) Close() error {
	return m.session.Destroy()
}
