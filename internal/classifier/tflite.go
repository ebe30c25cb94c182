//go:build !notflite

package classifier

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/logger"
)

// TFLiteModel is a Predictor backed by a TensorFlow Lite interpreter.
// The interpreter is not safe for concurrent use so calls are serialised.
type TFLiteModel struct {
	mu          sync.Mutex
	path        string
	model       *tflite.Model
	interpreter *tflite.Interpreter
	delegate    delegates.Delegater
}

// LoadTFLiteModel reads and allocates a model from disk.
func LoadTFLiteModel(path string, opts ModelOptions) (*TFLiteModel, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the model directory setting
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("model_path", path).
			Build()
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("model_path", path).
			Context("model_size_kb", len(data)/1024).
			Build()
	}

	threads := determineThreadCount(opts.Threads)
	options := tflite.NewInterpreterOptions()

	m := &TFLiteModel{path: path, model: model}
	log := GetLogger()
	if opts.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // bounded by CPU count
		if delegate == nil {
			log.Warn("failed to create XNNPACK delegate, falling back to default CPU",
				logger.String("model_path", path))
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
			m.delegate = delegate
		}
	} else {
		options.SetNumThread(threads)
	}

	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg), logger.String("model_path", path))
	}, nil)

	m.interpreter = tflite.NewInterpreter(model, options)
	if m.interpreter == nil {
		m.release()
		return nil, errors.New(fmt.Errorf("cannot create interpreter")).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("model_path", path).
			Build()
	}
	if status := m.interpreter.AllocateTensors(); status != tflite.OK {
		m.release()
		return nil, errors.New(fmt.Errorf("tensor allocation failed: %v", status)).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("model_path", path).
			Build()
	}

	// TFLite keeps its own copy of the flatbuffer
	runtime.GC()

	log.Debug("model loaded",
		logger.String("model_path", path),
		logger.Int("threads", threads),
		logger.Bool("xnnpack", m.delegate != nil))
	return m, nil
}

// Predict copies seq into the input tensor, runs the model and returns the
// first output value.
func (m *TFLiteModel) Predict(ctx context.Context, seq []int32) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interpreter == nil {
		return 0, errors.New(fmt.Errorf("interpreter is closed")).
			Component("classifier").
			Category(errors.CategoryModelInference).
			Build()
	}

	input := m.interpreter.GetInputTensor(0)
	if input == nil {
		return 0, m.inferenceError(fmt.Errorf("cannot get input tensor"))
	}

	switch input.Type() {
	case tflite.Int32:
		clear(input.Int32s())
		copy(input.Int32s(), seq)
	case tflite.Float32:
		buf := input.Float32s()
		clear(buf)
		for i := 0; i < len(seq) && i < len(buf); i++ {
			buf[i] = float32(seq[i])
		}
	default:
		return 0, m.inferenceError(fmt.Errorf("unsupported input tensor type %v", input.Type()))
	}

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return 0, m.inferenceError(fmt.Errorf("tensor invoke failed: %v", status))
	}

	output := m.interpreter.GetOutputTensor(0)
	if output == nil {
		return 0, m.inferenceError(fmt.Errorf("cannot get output tensor"))
	}
	values := output.Float32s()
	if len(values) == 0 {
		return 0, m.inferenceError(fmt.Errorf("empty output tensor"))
	}
	return values[0], nil
}

// Close releases the interpreter and model.
func (m *TFLiteModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
	return nil
}

// release drops the native handles; go-tflite frees them through runtime
// cleanups once they become unreachable.
func (m *TFLiteModel) release() {
	m.interpreter = nil
	m.delegate = nil
	m.model = nil
}

func (m *TFLiteModel) inferenceError(err error) error {
	return errors.New(err).
		Component("classifier").
		Category(errors.CategoryModelInference).
		Context("model_path", m.path).
		Build()
}
