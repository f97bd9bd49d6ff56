// Package tokenizer turns diary text into fixed-length model inputs.
//
// The pipeline has three stages:
//   - BasicSplit: whitespace and punctuation segmentation
//   - WordPiece: greedy longest-match subword splitting with ## continuations
//   - Encoder: [CLS]/[SEP] wrapping, id lookup, truncation and padding
//
// Example usage:
//
//	v, err := vocab.Load("model/vocab.txt")
//	if err != nil {
//	    v = vocab.Empty()
//	}
//
//	enc := tokenizer.NewEncoder(v, 512)
//	encoding := enc.EncodeText("오늘 정말 행복했다")
//	// encoding.TokenIDs and encoding.AttentionMask have length 512.
//
// All types are immutable after construction and safe for concurrent use.
package tokenizer
