package tokenizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/born-ml/emodiary/internal/vocab"
)

// HFTokenizerType identifies the tokenizer implementation type.
type HFTokenizerType string

const (
	// HFTypeBPE indicates Byte-Pair Encoding tokenizer.
	HFTypeBPE HFTokenizerType = "BPE"

	// HFTypeWordPiece indicates WordPiece tokenizer (BERT-style).
	HFTypeWordPiece HFTokenizerType = "WordPiece"

	// HFTypeUnigram indicates Unigram tokenizer (SentencePiece-style).
	HFTypeUnigram HFTokenizerType = "Unigram"

	// HFTypeUnknown indicates an unknown or unsupported tokenizer type.
	HFTypeUnknown HFTokenizerType = "Unknown"
)

// Model directory file names.
const (
	VocabFile     = "vocab.txt"
	TokenizerFile = "tokenizer.json"
)

// ErrUnsupportedTokenizer is returned for tokenizer.json models other than WordPiece.
var ErrUnsupportedTokenizer = errors.New("unsupported tokenizer type")

// HFTokenizerMetadata contains metadata from tokenizer.json.
type HFTokenizerMetadata struct {
	Type          HFTokenizerType
	VocabSize     int
	HasBOS        bool
	HasEOS        bool
	HasPAD        bool
	HasUNK        bool
	TokenizerType string
}

// hfTokenizerJSON is the subset of tokenizer.json needed for WordPiece.
type hfTokenizerJSON struct {
	Model struct {
		Type                    string           `json:"type"`
		Vocab                   map[string]int32 `json:"vocab"`
		ContinuingSubwordPrefix string           `json:"continuing_subword_prefix"`
	} `json:"model"`
	AddedTokens []struct {
		ID      int32  `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

func readHFTokenizerJSON(path string) (*hfTokenizerJSON, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path comes from trusted caller
	if err != nil {
		return nil, fmt.Errorf("failed to read tokenizer.json: %w", err)
	}

	var raw hfTokenizerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer.json: %w", err)
	}
	return &raw, nil
}

// DetectHFTokenizerType determines the tokenizer type from tokenizer.json.
func DetectHFTokenizerType(path string) (*HFTokenizerMetadata, error) {
	raw, err := readHFTokenizerJSON(path)
	if err != nil {
		return nil, err
	}

	metadata := &HFTokenizerMetadata{
		Type:          HFTypeUnknown,
		TokenizerType: raw.Model.Type,
		VocabSize:     len(raw.Model.Vocab),
	}
	switch raw.Model.Type {
	case "BPE":
		metadata.Type = HFTypeBPE
	case "WordPiece":
		metadata.Type = HFTypeWordPiece
	case "Unigram":
		metadata.Type = HFTypeUnigram
	}

	for _, token := range raw.AddedTokens {
		switch token.Content {
		case "<s>", "<bos>", vocab.ClassToken:
			metadata.HasBOS = true
		case "</s>", "<eos>", vocab.SepToken:
			metadata.HasEOS = true
		case "<pad>", vocab.PadToken:
			metadata.HasPAD = true
		case "<unk>", vocab.UnknownToken:
			metadata.HasUNK = true
		}
	}

	return metadata, nil
}

// LoadFromHuggingFace loads a WordPiece tokenizer from a HuggingFace model directory.
//
// The directory must contain tokenizer.json with a WordPiece model whose ids
// are dense. Added tokens missing from the model vocabulary are appended.
func LoadFromHuggingFace(modelPath string) (*WordPiece, error) {
	tokenizerPath := filepath.Join(modelPath, TokenizerFile)

	raw, err := readHFTokenizerJSON(tokenizerPath)
	if err != nil {
		return nil, err
	}
	if raw.Model.Type != string(HFTypeWordPiece) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTokenizer, raw.Model.Type)
	}
	if p := raw.Model.ContinuingSubwordPrefix; p != "" && p != ContinuationPrefix {
		return nil, fmt.Errorf("%w: continuing subword prefix %q", ErrUnsupportedTokenizer, p)
	}

	entries := make(map[int32]string, len(raw.Model.Vocab)+len(raw.AddedTokens))
	for token, id := range raw.Model.Vocab {
		entries[id] = token
	}
	for _, added := range raw.AddedTokens {
		if _, ok := entries[added.ID]; !ok {
			entries[added.ID] = added.Content
		}
	}

	ids := make([]int32, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	tokens := make([]string, len(ids))
	for i, id := range ids {
		if id != int32(i) { //nolint:gosec // G115: vocab size < 2^31
			return nil, fmt.Errorf("%w: tokenizer.json ids are not dense (missing id %d)", vocab.ErrVocabLoad, i)
		}
		tokens[i] = entries[id]
	}

	return NewWordPiece(vocab.FromTokens(tokens)), nil
}

// LoadVocab loads the vocabulary of a model directory.
//
// vocab.txt is preferred; tokenizer.json is used when vocab.txt is absent.
func LoadVocab(modelPath string) (*vocab.Vocab, error) {
	vocabPath := filepath.Join(modelPath, VocabFile)
	if _, err := os.Stat(vocabPath); err == nil {
		return vocab.Load(vocabPath)
	}

	if _, err := os.Stat(filepath.Join(modelPath, TokenizerFile)); err == nil {
		wp, err := LoadFromHuggingFace(modelPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", vocab.ErrVocabLoad, err)
		}
		return wp.Vocab(), nil
	}

	return nil, fmt.Errorf("%w: no %s or %s in %q", vocab.ErrVocabLoad, VocabFile, TokenizerFile, modelPath)
}

// AutoLoad loads a WordPiece tokenizer from a model directory.
func AutoLoad(modelPath string) (*WordPiece, error) {
	v, err := LoadVocab(modelPath)
	if err != nil {
		return nil, err
	}
	return NewWordPiece(v), nil
}
