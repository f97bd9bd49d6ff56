// Package vocab provides the ordered WordPiece vocabulary used by the tokenizer.
//
// A vocabulary is loaded once from a newline-delimited token list (vocab.txt)
// where the line order defines token ids. After loading it is read-only and can
// be shared by any number of goroutines.
package vocab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Reserved tokens of BERT-style vocabularies.
const (
	UnknownToken = "[UNK]"
	PadToken     = "[PAD]"
	ClassToken   = "[CLS]"
	SepToken     = "[SEP]"
)

// ErrVocabLoad is returned when a vocabulary source is missing or unreadable.
var ErrVocabLoad = errors.New("failed to load vocabulary")

// Vocab is an immutable token <-> id mapping.
type Vocab struct {
	ids    map[string]int32 // token -> ID
	tokens []string         // ID -> token
}

// Load reads a vocabulary from a vocab.txt file.
func Load(path string) (*Vocab, error) {
	f, err := os.Open(path) //nolint:gosec // G304: Path comes from trusted caller
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVocabLoad, err)
	}
	defer f.Close()

	v, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// Read parses a newline-delimited token list.
//
// Tokens are trimmed and blank lines are skipped without consuming an id.
// Every other line consumes one; a token listed twice resolves to its last line.
func Read(r io.Reader) (*Vocab, error) {
	var tokens []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		tok := strings.TrimSpace(scanner.Text())
		if tok == "" {
			continue
		}
		tokens = append(tokens, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVocabLoad, err)
	}
	return FromTokens(tokens), nil
}

// FromTokens builds a vocabulary where tokens[i] has id i.
// A repeated token maps to its last index; Token still returns the entry
// stored at every index.
func FromTokens(tokens []string) *Vocab {
	v := &Vocab{
		ids:    make(map[string]int32, len(tokens)),
		tokens: make([]string, len(tokens)),
	}
	copy(v.tokens, tokens)
	for i, tok := range tokens {
		v.ids[tok] = int32(i) //nolint:gosec // G115: vocab size < 2^31
	}
	return v
}

// Empty returns a vocabulary without entries.
// Every lookup misses, so the pipeline built on it runs in fallback mode.
func Empty() *Vocab {
	return FromTokens(nil)
}

// ID returns the id of token. It never fails; ok reports whether the token exists.
func (v *Vocab) ID(token string) (id int32, ok bool) {
	id, ok = v.ids[token]
	return id, ok
}

// Contains reports whether token is in the vocabulary.
func (v *Vocab) Contains(token string) bool {
	_, ok := v.ids[token]
	return ok
}

// IDOrUnknown returns the id of token, or UnknownID when it is absent.
func (v *Vocab) IDOrUnknown(token string) int32 {
	if id, ok := v.ids[token]; ok {
		return id
	}
	return v.UnknownID()
}

// Token returns the token for id.
func (v *Vocab) Token(id int32) (string, bool) {
	if id < 0 || int(id) >= len(v.tokens) {
		return "", false
	}
	return v.tokens[id], true
}

// Size returns the number of tokens.
func (v *Vocab) Size() int {
	return len(v.tokens)
}

// IsEmpty reports whether the vocabulary has no tokens.
func (v *Vocab) IsEmpty() bool {
	return len(v.tokens) == 0
}

// UnknownID returns the id of [UNK], or 0 if the vocabulary has none.
func (v *Vocab) UnknownID() int32 { return v.reserved(UnknownToken) }

// PadID returns the id of [PAD], or 0 if the vocabulary has none.
func (v *Vocab) PadID() int32 { return v.reserved(PadToken) }

// ClassID returns the id of [CLS], or 0 if the vocabulary has none.
func (v *Vocab) ClassID() int32 { return v.reserved(ClassToken) }

// SepID returns the id of [SEP], or 0 if the vocabulary has none.
func (v *Vocab) SepID() int32 { return v.reserved(SepToken) }

// IsSpecial reports whether id belongs to one of the reserved tokens.
func (v *Vocab) IsSpecial(id int32) bool {
	tok, ok := v.Token(id)
	if !ok {
		return false
	}
	switch tok {
	case UnknownToken, PadToken, ClassToken, SepToken:
		return true
	}
	return false
}

func (v *Vocab) reserved(token string) int32 {
	if id, ok := v.ids[token]; ok {
		return id
	}
	return 0
}
