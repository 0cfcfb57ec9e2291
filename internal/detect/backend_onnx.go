//go:build onnx
// +build onnx

package detect

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/veilproject/veil/internal/config"
	"github.com/veilproject/veil/internal/entity"
)

// OnnxBackend implements ModelBackend with a token-classification model
// running on ONNX Runtime (via yalue/onnxruntime_go).
type OnnxBackend struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	vocab      map[string]int64
	tags       []string
	kinds      map[string]entity.Kind
	maxLength  int
	logger     *zap.Logger
	ready      bool
	mu         sync.RWMutex
}

const (
	unkTokenID = 100
	clsTokenID = 101
	sepTokenID = 102
)

// NewModelBackend initializes the ONNX Runtime backend. Requires build tag 'onnx'.
func NewModelBackend(logger *zap.Logger, cfg config.ModelConfig) ModelBackend {
	// Allow user to provide shared library path via environment variable.
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		logger.Error("ONNX Runtime environment init failed", zap.Error(err))
		return nil
	}

	vocab, err := loadVocab(cfg.VocabPath)
	if err != nil {
		logger.Error("Failed to load model vocabulary", zap.Error(err), zap.String("vocab", cfg.VocabPath))
		return nil
	}

	// Inspect model IO to determine names
	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(cfg.Path)
	if err != nil {
		logger.Error("Failed to inspect ONNX model IO", zap.Error(err), zap.String("model", cfg.Path))
		return nil
	}

	// Prefer common transformer inputs order
	preferredInputs := []string{"input_ids", "attention_mask", "token_type_ids"}
	available := map[string]bool{}
	for _, ii := range inputsInfo {
		available[strings.ToLower(ii.Name)] = true
	}
	var inputNames []string
	for _, name := range preferredInputs {
		if available[name] {
			inputNames = append(inputNames, name)
		}
	}
	// If no preferred names matched, fall back to model-declared order
	if len(inputNames) == 0 && len(inputsInfo) > 0 {
		sorted := make([]string, 0, len(inputsInfo))
		for _, ii := range inputsInfo {
			sorted = append(sorted, ii.Name)
		}
		sort.Strings(sorted)
		inputNames = sorted
	}

	if len(outputsInfo) == 0 {
		logger.Error("ONNX model reports no outputs", zap.String("model", cfg.Path))
		return nil
	}
	outputName := outputsInfo[0].Name

	sess, err := ort.NewDynamicAdvancedSession(cfg.Path, inputNames, []string{outputName}, nil)
	if err != nil {
		logger.Error("ONNX Runtime session creation failed", zap.Error(err), zap.String("model", cfg.Path))
		return nil
	}

	kinds := make(map[string]entity.Kind, len(cfg.Labels))
	for tag, kind := range cfg.Labels {
		kinds[tag] = entity.Kind(kind)
	}

	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = 512
	}

	logger.Info("ONNX Runtime backend ready",
		zap.String("model", cfg.Path),
		zap.Strings("inputs", inputNames),
		zap.String("output", outputName),
		zap.Int("vocab_size", len(vocab)),
		zap.Int("tags", len(cfg.Tags)))

	return &OnnxBackend{
		session:    sess,
		inputNames: inputNames,
		outputName: outputName,
		vocab:      vocab,
		tags:       cfg.Tags,
		kinds:      kinds,
		maxLength:  maxLength,
		logger:     logger,
		ready:      true,
	}
}

// IsReady reports whether the backend is initialized.
func (b *OnnxBackend) IsReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready && b.session != nil
}

// Close releases session and environment resources.
func (b *OnnxBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.Destroy()
		b.session = nil
	}
	ort.DestroyEnvironment()
	b.ready = false
	return nil
}

// Entities tokenizes the text, runs one inference pass, and folds the
// per-token tag predictions back into character spans.
func (b *OnnxBackend) Entities(ctx context.Context, text string) ([]entity.Entity, error) {
	if !b.IsReady() {
		return nil, fmt.Errorf("onnx backend not ready")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	tokens := b.tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	if len(tokens) > b.maxLength-2 {
		tokens = tokens[:b.maxLength-2]
	}

	seqLen := len(tokens) + 2 // CLS and SEP
	inputIDs := make([]int64, 0, seqLen)
	attention := make([]int64, 0, seqLen)
	tokenTypes := make([]int64, seqLen)

	inputIDs = append(inputIDs, clsTokenID)
	attention = append(attention, 1)
	for _, t := range tokens {
		inputIDs = append(inputIDs, t.id)
		attention = append(attention, 1)
	}
	inputIDs = append(inputIDs, sepTokenID)
	attention = append(attention, 1)

	shape := ort.NewShape(1, int64(seqLen))
	idsTensor, err := ort.NewTensor[int64](shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor[int64](shape, attention)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()
	typeTensor, err := ort.NewTensor[int64](shape, tokenTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	inputs := make([]ort.Value, 0, len(b.inputNames))
	for _, rawName := range b.inputNames {
		name := strings.ToLower(rawName)
		switch {
		case strings.Contains(name, "ids") && !strings.Contains(name, "token_type"):
			inputs = append(inputs, idsTensor)
		case strings.Contains(name, "attention") || strings.Contains(name, "mask"):
			inputs = append(inputs, maskTensor)
		default:
			inputs = append(inputs, typeTensor)
		}
	}

	outputs := make([]ort.Value, 1)
	if err := b.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	if len(outputs) == 0 || outputs[0] == nil {
		return nil, fmt.Errorf("onnx returned no outputs")
	}
	defer func() {
		if outputs[0] != nil {
			_ = outputs[0].Destroy()
		}
	}()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want float32 tensor)")
	}
	data := outTensor.GetData()
	outShape := outTensor.GetShape()
	if len(outShape) != 3 || int(outShape[1]) != seqLen {
		return nil, fmt.Errorf("unsupported output shape %v (want [1, %d, tags])", outShape, seqLen)
	}
	numTags := int(outShape[2])
	if numTags != len(b.tags) {
		return nil, fmt.Errorf("model emits %d tags but %d are configured", numTags, len(b.tags))
	}

	// Argmax per content token, skipping CLS/SEP positions.
	preds := make([]tokenPrediction, len(tokens))
	for i := range tokens {
		offset := (i + 1) * numTags
		logits := data[offset : offset+numTags]
		best, conf := argmaxSoftmax(logits)
		preds[i] = tokenPrediction{tag: b.tags[best], confidence: conf}
	}

	return b.foldSpans(text, tokens, preds), nil
}

type wordToken struct {
	id    int64
	start int
	end   int
}

type tokenPrediction struct {
	tag        string
	confidence float64
}

// tokenize performs greedy longest-match wordpiece over whitespace-split
// words, tracking byte offsets so predictions map back to the source text.
func (b *OnnxBackend) tokenize(text string) []wordToken {
	var tokens []wordToken

	wordStart := -1
	flush := func(end int) {
		if wordStart < 0 {
			return
		}
		word := strings.ToLower(text[wordStart:end])
		pos := 0
		first := true
		for pos < len(word) {
			matched := false
			for length := len(word) - pos; length > 0; length-- {
				piece := word[pos : pos+length]
				if !first {
					piece = "##" + piece
				}
				if id, ok := b.vocab[piece]; ok {
					tokens = append(tokens, wordToken{id: id, start: wordStart + pos, end: wordStart + pos + length})
					pos += length
					matched = true
					break
				}
			}
			if !matched {
				tokens = append(tokens, wordToken{id: unkTokenID, start: wordStart + pos, end: end})
				break
			}
			first = false
		}
		wordStart = -1
	}

	for i, r := range text {
		if unicode.IsSpace(r) {
			flush(i)
		} else if wordStart < 0 {
			wordStart = i
		}
	}
	flush(len(text))

	return tokens
}

// foldSpans merges consecutive same-kind token predictions into entities,
// honoring B-/I- prefixes on the configured tags.
func (b *OnnxBackend) foldSpans(text string, tokens []wordToken, preds []tokenPrediction) []entity.Entity {
	var out []entity.Entity
	var cur *entity.Entity
	var confSum float64
	var confCount int

	close := func() {
		if cur == nil {
			return
		}
		cur.Value = text[cur.Start:cur.End]
		cur.Confidence = confSum / float64(confCount)
		out = append(out, *cur)
		cur = nil
	}

	for i, p := range preds {
		tag := p.tag
		if tag == "O" || tag == "" {
			close()
			continue
		}

		begin := strings.HasPrefix(tag, "B-")
		name := strings.TrimPrefix(strings.TrimPrefix(tag, "B-"), "I-")
		kind, ok := b.kinds[name]
		if !ok {
			kind = entity.KindOther
		}

		if cur != nil && !begin && cur.Kind == kind {
			cur.End = tokens[i].end
			confSum += p.confidence
			confCount++
			continue
		}

		close()
		cur = &entity.Entity{Kind: kind, Start: tokens[i].start, End: tokens[i].end}
		confSum = p.confidence
		confCount = 1
	}
	close()

	return out
}

// argmaxSoftmax returns the index of the largest logit and its softmax
// probability.
func argmaxSoftmax(logits []float32) (int, float64) {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}

	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v - logits[best]))
	}
	return best, 1.0 / sum
}

// loadVocab reads a wordpiece vocabulary file, one token per line.
func loadVocab(path string) (map[string]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	var id int64
	for scanner.Scan() {
		vocab[strings.TrimRight(scanner.Text(), "\r\n")] = id
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vocab, nil
}
