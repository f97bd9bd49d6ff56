package tokenizer

import (
	"github.com/born-ml/emodiary/internal/vocab"
)

// Encoding is a fixed-length model input.
//
// TokenIDs and AttentionMask always have the encoder's MaxLength.
// AttentionMask[i] is 1 for real content (boundary markers included) and 0 for padding.
type Encoding struct {
	TokenIDs      []int64
	AttentionMask []int64
}

// RealLength returns the number of non-padding positions.
func (e Encoding) RealLength() int {
	n := 0
	for _, m := range e.AttentionMask {
		n += int(m)
	}
	return n
}

// Len returns the sequence length.
func (e Encoding) Len() int {
	return len(e.TokenIDs)
}

// Encoder builds Encodings of a fixed length.
type Encoder struct {
	wordpiece *WordPiece
	maxLength int
}

// NewEncoder creates an encoder over v producing sequences of maxLength.
// A non-positive maxLength is clamped to 1.
func NewEncoder(v *vocab.Vocab, maxLength int) *Encoder {
	return &Encoder{
		wordpiece: NewWordPiece(v),
		maxLength: max(maxLength, 1),
	}
}

// MaxLength returns the configured sequence length.
func (e *Encoder) MaxLength() int {
	return e.maxLength
}

// WordPiece returns the subword tokenizer used by EncodeText.
func (e *Encoder) WordPiece() *WordPiece {
	return e.wordpiece
}

// EncodeText tokenizes and encodes text.
func (e *Encoder) EncodeText(text string) Encoding {
	return e.Encode(e.wordpiece.Tokenize(text))
}

// Encode wraps subwords in [CLS]/[SEP], maps them to ids and fits the
// result to MaxLength.
//
// Overlong sequences keep their prefix, so [SEP] is dropped when the
// content alone fills the window.
func (e *Encoder) Encode(subwords []string) Encoding {
	v := e.wordpiece.vocab

	ids := make([]int64, 0, len(subwords)+2)
	ids = append(ids, int64(v.IDOrUnknown(vocab.ClassToken)))
	for _, piece := range subwords {
		ids = append(ids, int64(v.IDOrUnknown(piece)))
	}
	ids = append(ids, int64(v.IDOrUnknown(vocab.SepToken)))

	out := Encoding{
		TokenIDs:      make([]int64, e.maxLength),
		AttentionMask: make([]int64, e.maxLength),
	}
	n := min(len(ids), e.maxLength)
	copy(out.TokenIDs, ids[:n])
	for i := 0; i < n; i++ {
		out.AttentionMask[i] = 1
	}

	pad := int64(v.PadID())
	for i := n; i < e.maxLength; i++ {
		out.TokenIDs[i] = pad
	}
	return out
}
