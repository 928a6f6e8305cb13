package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var envMu sync.Mutex

// ONNXOptions controls session construction.
type ONNXOptions struct {
	SeqLen       int
	IntraThreads int
}

// onnxSession wraps one ONNX session plus its tokenizer and I/O tensors.
// Runs are serialised because the tensors are shared.
type onnxSession struct {
	session       *ort.AdvancedSession
	tokenizer     *WordPieceTokenizer
	labels        []string
	seqLen        int
	modelFile     string
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	output        *ort.Tensor[float32]

	mu     sync.Mutex
	closed bool
}

func initEnvironment(modelDir string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	libPath := resolveSharedLibraryPath(modelDir)
	if libPath == "" {
		return errors.New("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

func openSession(dir string, opts ONNXOptions) (*onnxSession, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("model dir is empty")
	}
	seqLen := opts.SeqLen
	if seqLen <= 0 {
		seqLen = 256
	}
	if err := initEnvironment(dir); err != nil {
		return nil, err
	}

	modelPath := filepath.Join(dir, "model.onnx")
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", modelPath, err)
	}
	labels, err := loadLabels(filepath.Join(dir, "label_map.json"))
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	vocabPath, err := findVocab(dir)
	if err != nil {
		return nil, err
	}
	tokenizer, err := LoadWordPieceTokenizer(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	inputShape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	attnMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		inputIDs.Destroy()
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(labels))))
	if err != nil {
		inputIDs.Destroy()
		attnMask.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	var sessOpts *ort.SessionOptions
	if opts.IntraThreads > 0 {
		sessOpts, err = ort.NewSessionOptions()
		if err == nil {
			defer sessOpts.Destroy()
			err = sessOpts.SetIntraOpNumThreads(opts.IntraThreads)
		}
		if err != nil {
			inputIDs.Destroy()
			attnMask.Destroy()
			output.Destroy()
			return nil, fmt.Errorf("session options: %w", err)
		}
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		[]ort.Value{inputIDs, attnMask},
		[]ort.Value{output},
		sessOpts,
	)
	if err != nil {
		inputIDs.Destroy()
		attnMask.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &onnxSession{
		session:       session,
		tokenizer:     tokenizer,
		labels:        labels,
		seqLen:        seqLen,
		modelFile:     modelPath,
		inputIDs:      inputIDs,
		attentionMask: attnMask,
		output:        output,
	}, nil
}

// run returns the raw logits for text.
func (s *onnxSession) run(text string) ([]float32, error) {
	ids, attn := s.tokenizer.Encode(text, s.seqLen)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("session closed")
	}

	copy(s.inputIDs.GetData(), ids)
	copy(s.attentionMask.GetData(), attn)
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	raw := s.output.GetData()
	out := make([]float32, len(raw))
	copy(out, raw)
	return out, nil
}

// ModelFile is the path of the loaded .onnx file.
func (s *onnxSession) ModelFile() string { return s.modelFile }

func (s *onnxSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.session.Destroy()
	s.inputIDs.Destroy()
	s.attentionMask.Destroy()
	s.output.Destroy()
	return err
}

// ONNXBinary is the harassment / no-harassment sequence classifier.
type ONNXBinary struct {
	*onnxSession
}

// LoadONNXBinary opens a binary classifier. The model emits either two
// logits (softmax, index 1 is "harassment") or a single logit (sigmoid).
func LoadONNXBinary(dir string, opts ONNXOptions) (*ONNXBinary, error) {
	s, err := openSession(dir, opts)
	if err != nil {
		return nil, err
	}
	if n := len(s.labels); n != 1 && n != 2 {
		s.Close()
		return nil, fmt.Errorf("binary model must have 1 or 2 labels, got %d", n)
	}
	return &ONNXBinary{onnxSession: s}, nil
}

func (m *ONNXBinary) PredictBinary(_ context.Context, text string) (BinaryPrediction, error) {
	logits, err := m.run(text)
	if err != nil {
		return BinaryPrediction{}, err
	}
	var p float64
	switch len(logits) {
	case 1:
		p = sigmoid(logits[0])
	case 2:
		p = softmax(logits)[1]
	default:
		return BinaryPrediction{}, fmt.Errorf("unexpected logits length %d", len(logits))
	}
	label := 0
	if p >= BinaryThreshold {
		label = 1
	}
	return BinaryPrediction{Label: label, Probability: p}, nil
}

// ONNXMultilabel scores the six toxicity facets with independent sigmoids.
type ONNXMultilabel struct {
	*onnxSession
}

// LoadONNXMultilabel opens a multilabel classifier whose label map covers
// every facet. Extra labels are ignored at prediction time.
func LoadONNXMultilabel(dir string, opts ONNXOptions) (*ONNXMultilabel, error) {
	s, err := openSession(dir, opts)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(s.labels))
	for _, l := range s.labels {
		have[l] = true
	}
	for _, f := range facets {
		if !have[f] {
			s.Close()
			return nil, fmt.Errorf("multilabel model missing facet %q", f)
		}
	}
	return &ONNXMultilabel{onnxSession: s}, nil
}

func (m *ONNXMultilabel) PredictMultilabel(_ context.Context, text string) (map[string]float64, error) {
	logits, err := m.run(text)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(facets))
	for i, logit := range logits {
		if i >= len(m.labels) {
			break
		}
		if isFacet(m.labels[i]) {
			scores[m.labels[i]] = sigmoid(logit)
		}
	}
	return scores, nil
}

func sigmoid(x float32) float64 {
	return 1.0 / (1.0 + math.Exp(-float64(x)))
}

func softmax(logits []float32) []float64 {
	maxLogit := float64(logits[0])
	for _, l := range logits[1:] {
		maxLogit = math.Max(maxLogit, float64(l))
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil && len(arr) > 0 {
		return arr, nil
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, errors.New("label map is empty")
	}
	out := make([]string, len(m))
	for k, v := range m {
		idx, convErr := strconv.Atoi(k)
		if convErr != nil {
			return nil, fmt.Errorf("invalid label index %q: %w", k, convErr)
		}
		if idx < 0 || idx >= len(m) {
			return nil, fmt.Errorf("label index %d out of range", idx)
		}
		out[idx] = v
	}
	return out, nil
}

// resolveSharedLibraryPath locates the onnxruntime shared library.
// ONNXRUNTIME_SHARED_LIBRARY_PATH wins; otherwise common names/locations are tried.
func resolveSharedLibraryPath(modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}
	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
