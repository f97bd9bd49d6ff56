package tokenizer

import (
	"strings"

	"github.com/born-ml/emodiary/internal/vocab"
)

// ContinuationPrefix marks a subword that does not start a word.
const ContinuationPrefix = "##"

// WordPiece implements greedy longest-match subword tokenization.
//
// A fragment that cannot be fully covered by vocabulary pieces is replaced by
// a single [UNK]; partial matches are discarded.
type WordPiece struct {
	vocab *vocab.Vocab
}

// NewWordPiece creates a WordPiece tokenizer over v.
func NewWordPiece(v *vocab.Vocab) *WordPiece {
	if v == nil {
		v = vocab.Empty()
	}
	return &WordPiece{vocab: v}
}

// Vocab returns the underlying vocabulary.
func (w *WordPiece) Vocab() *vocab.Vocab {
	return w.vocab
}

// Tokenize splits text into subword strings.
// Blank text yields an empty slice.
func (w *WordPiece) Tokenize(text string) []string {
	fragments := BasicSplit(text)
	pieces := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		pieces = append(pieces, w.Split(fragment)...)
	}
	return pieces
}

// Split runs the greedy longest-prefix search on a single fragment.
//
// Positions are rune offsets, so multi-byte scripts are never cut mid-rune.
// Worst case is quadratic in the fragment length.
func (w *WordPiece) Split(fragment string) []string {
	if fragment == "" {
		return nil
	}
	if w.vocab.Contains(fragment) {
		return []string{fragment}
	}

	runes := []rune(fragment)
	var pieces []string
	for start := 0; start < len(runes); {
		match := ""
		end := len(runes)
		for ; end > start; end-- {
			candidate := string(runes[start:end])
			if start > 0 {
				candidate = ContinuationPrefix + candidate
			}
			if w.vocab.Contains(candidate) {
				match = candidate
				break
			}
		}
		if match == "" {
			return []string{vocab.UnknownToken}
		}
		pieces = append(pieces, match)
		start = end
	}
	return pieces
}

// Encode converts text to token IDs without boundary markers.
func (w *WordPiece) Encode(text string) ([]int32, error) {
	pieces := w.Tokenize(text)
	ids := make([]int32, len(pieces))
	for i, piece := range pieces {
		ids[i] = w.vocab.IDOrUnknown(piece)
	}
	return ids, nil
}

// Decode converts token IDs back to text.
//
// Continuation pieces are glued to the previous piece and special tokens are
// skipped. Unknown ids decode to the replacement character.
func (w *WordPiece) Decode(tokens []int32) (string, error) {
	var sb strings.Builder
	for _, id := range tokens {
		if w.vocab.IsSpecial(id) {
			continue
		}
		piece, ok := w.vocab.Token(id)
		if !ok {
			piece = "�"
		}
		if rest, found := strings.CutPrefix(piece, ContinuationPrefix); found {
			sb.WriteString(rest)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(piece)
	}
	return sb.String(), nil
}

// VocabSize returns the total vocabulary size.
func (w *WordPiece) VocabSize() int {
	return w.vocab.Size()
}

// BosToken returns the [CLS] id, or -1 if the vocabulary has none.
func (w *WordPiece) BosToken() int32 { return w.optional(vocab.ClassToken) }

// EosToken returns the [SEP] id, or -1 if the vocabulary has none.
func (w *WordPiece) EosToken() int32 { return w.optional(vocab.SepToken) }

// PadToken returns the [PAD] id, or -1 if the vocabulary has none.
func (w *WordPiece) PadToken() int32 { return w.optional(vocab.PadToken) }

// UnkToken returns the [UNK] id, or -1 if the vocabulary has none.
func (w *WordPiece) UnkToken() int32 { return w.optional(vocab.UnknownToken) }

// IsSpecialToken checks if a token ID is a special token.
func (w *WordPiece) IsSpecialToken(token int32) bool {
	return w.vocab.IsSpecial(token)
}

func (w *WordPiece) optional(token string) int32 {
	if id, ok := w.vocab.ID(token); ok {
		return id
	}
	return -1
}
