// Package tokenizer turns text into the fixed-length inputs of a BERT-style
// classifier.
//
// This package wraps the internal implementations and provides a small
// public API: vocabulary loading, WordPiece subword splitting and
// [CLS]/[SEP] sequence encoding.
//
// Example usage:
//
//	import "github.com/born-ml/emodiary/tokenizer"
//
//	v, err := tokenizer.LoadVocab("models/emotion_model_onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	wp := tokenizer.NewWordPiece(v)
//	pieces := wp.Tokenize("오늘 정말 행복했다")
//
//	enc := tokenizer.NewEncoder(v, 128)
//	encoding := enc.Encode(pieces)
//	// encoding.TokenIDs and encoding.AttentionMask both have length 128.
package tokenizer

import (
	"io"

	"github.com/born-ml/emodiary/internal/tokenizer"
	"github.com/born-ml/emodiary/internal/vocab"
)

// Tokenizer is the core interface for text tokenization.
type Tokenizer = tokenizer.Tokenizer

// Vocab is an immutable token <-> id mapping.
type Vocab = vocab.Vocab

// WordPiece splits text into vocabulary subwords.
type WordPiece = tokenizer.WordPiece

// Encoder produces fixed-length encodings.
type Encoder = tokenizer.Encoder

// Encoding is a fixed-length token id sequence with its attention mask.
type Encoding = tokenizer.Encoding

// ErrVocabLoad is returned when a vocabulary source is missing or unreadable.
var ErrVocabLoad = vocab.ErrVocabLoad

// LoadVocab loads the vocabulary of a model directory.
//
// vocab.txt is preferred; tokenizer.json is used when vocab.txt is absent.
func LoadVocab(modelPath string) (*Vocab, error) {
	return tokenizer.LoadVocab(modelPath)
}

// ReadVocab reads a newline-delimited token list.
func ReadVocab(r io.Reader) (*Vocab, error) {
	return vocab.Read(r)
}

// NewVocab builds a vocabulary from tokens in id order.
func NewVocab(tokens []string) *Vocab {
	return vocab.FromTokens(tokens)
}

// NewWordPiece creates a WordPiece tokenizer over v.
func NewWordPiece(v *Vocab) *WordPiece {
	return tokenizer.NewWordPiece(v)
}

// AutoLoad loads a WordPiece tokenizer from a model directory.
func AutoLoad(modelPath string) (Tokenizer, error) {
	wp, err := tokenizer.AutoLoad(modelPath)
	if err != nil {
		return nil, err
	}
	return wp, nil
}

// NewEncoder creates an encoder producing sequences of exactly maxLength ids.
func NewEncoder(v *Vocab, maxLength int) *Encoder {
	return tokenizer.NewEncoder(v, maxLength)
}
