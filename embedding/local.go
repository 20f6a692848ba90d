//go:build onnx

package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// localBackend runs a small sentence-embedding ONNX model in-process. It is
// grounded on becomeliminal-nim-go-sdk's memory/embedder/onnx provider: a
// BERT-style WordPiece tokenizer feeding a DynamicAdvancedSession, with
// mean-pooling over the last hidden state when the model doesn't already
// pool for us. First use pays model-load cost; subsequent embeds reuse the
// session (spec §4.2's <500ms-per-chunk target assumes a warm session).
type localBackend struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	tokenizer  *wordPieceTokenizer
	dimensions int
}

func newLocalBackend(cfg Config) (Backend, error) {
	if cfg.LocalModelPath == "" {
		return nil, fmt.Errorf("embedding: LocalModelPath is required for the local backend")
	}
	if cfg.LocalTokenizerPath == "" {
		return nil, fmt.Errorf("embedding: LocalTokenizerPath is required for the local backend")
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("embedding: failed to initialize onnxruntime: %w", err)
	}

	tok, err := loadWordPieceTokenizer(cfg.LocalTokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.LocalModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to create onnx session: %w", err)
	}

	return &localBackend{
		session:    session,
		tokenizer:  tok,
		dimensions: cfg.Dimensions,
	}, nil
}

func (b *localBackend) Dimensions() int { return b.dimensions }

func (b *localBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	const maxLen = 128
	ids, mask := b.tokenizer.Encode(text, maxLen)

	inputIDs, err := ort.NewTensor(ort.NewShape(1, int64(maxLen)), ids)
	if err != nil {
		return nil, fmt.Errorf("embedding: input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	attentionMask, err := ort.NewTensor(ort.NewShape(1, int64(maxLen)), mask)
	if err != nil {
		return nil, fmt.Errorf("embedding: attention_mask tensor: %w", err)
	}
	defer attentionMask.Destroy()

	tokenTypeIDs, err := ort.NewTensor(ort.NewShape(1, int64(maxLen)), make([]int64, maxLen))
	if err != nil {
		return nil, fmt.Errorf("embedding: token_type_ids tensor: %w", err)
	}
	defer tokenTypeIDs.Destroy()

	inputs := []ort.Value{inputIDs, attentionMask, tokenTypeIDs}
	outputs := []ort.Value{nil}
	if err := b.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("embedding: onnx inference failed: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("embedding: unexpected output tensor type")
	}

	return meanPool(out.GetData(), out.GetShape(), mask, b.dimensions)
}

func (b *localBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := b.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// meanPool averages the last hidden state over attended tokens, or extracts
// an already-pooled 2D output directly.
func meanPool(data []float32, shape ort.Shape, mask []int64, dimensions int) ([]float32, error) {
	switch len(shape) {
	case 2:
		if len(data) < dimensions {
			return nil, fmt.Errorf("embedding: output dimension mismatch: got %d, want %d", len(data), dimensions)
		}
		vec := make([]float32, dimensions)
		copy(vec, data[:dimensions])
		return normalize(vec), nil
	case 3:
		seqLen := int(shape[1])
		hidden := int(shape[2])
		if hidden != dimensions {
			return nil, fmt.Errorf("embedding: hidden size mismatch: got %d, want %d", hidden, dimensions)
		}
		vec := make([]float32, dimensions)
		var attended float32
		for i := 0; i < seqLen && i < len(mask); i++ {
			if mask[i] == 0 {
				continue
			}
			attended++
			offset := i * hidden
			for j := 0; j < hidden; j++ {
				vec[j] += data[offset+j]
			}
		}
		if attended == 0 {
			attended = 1
		}
		for j := range vec {
			vec[j] /= attended
		}
		return normalize(vec), nil
	default:
		return nil, fmt.Errorf("embedding: unexpected output shape %v", shape)
	}
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

// wordPieceTokenizer is a minimal BERT-style WordPiece tokenizer loaded from
// a HuggingFace tokenizer.json vocab, enough to drive a sentence-embedding
// ONNX model deterministically.
type wordPieceTokenizer struct {
	vocab    map[string]int
	clsToken int
	sepToken int
	unkToken int
}

func loadWordPieceTokenizer(path string) (*wordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	return &wordPieceTokenizer{
		vocab:    parsed.Model.Vocab,
		clsToken: 101,
		sepToken: 102,
		unkToken: 100,
	}, nil
}

// Encode tokenizes text and pads/truncates to maxLen, returning input ids
// and the attention mask.
func (t *wordPieceTokenizer) Encode(text string, maxLen int) ([]int64, []int64) {
	ids := make([]int64, maxLen)
	mask := make([]int64, maxLen)

	ids[0] = int64(t.clsToken)
	mask[0] = 1

	pos := 1
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		for _, piece := range t.wordPieces(word) {
			if pos >= maxLen-1 {
				break
			}
			if id, ok := t.vocab[piece]; ok {
				ids[pos] = int64(id)
			} else {
				ids[pos] = int64(t.unkToken)
			}
			mask[pos] = 1
			pos++
		}
		if pos >= maxLen-1 {
			break
		}
	}

	ids[pos] = int64(t.sepToken)
	mask[pos] = 1

	return ids, mask
}

func (t *wordPieceTokenizer) wordPieces(word string) []string {
	if _, ok := t.vocab[word]; ok {
		return []string{word}
	}

	var pieces []string
	start := 0
	for start < len(word) {
		end := len(word)
		matched := false
		for end > start {
			candidate := word[start:end]
			if start > 0 {
				candidate = "##" + candidate
			}
			if _, ok := t.vocab[candidate]; ok {
				pieces = append(pieces, candidate)
				start = end
				matched = true
				break
			}
			end--
		}
		if !matched {
			pieces = append(pieces, "[UNK]")
			start++
		}
	}
	return pieces
}
