package chunker

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens for a text. Implementations must be deterministic
// for the lifetime of an index.
type Tokenizer interface {
	CountTokens(text string) int
}

type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewTiktokenCounter loads a BPE encoding such as o200k_base or cl100k_base.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
	}
	return &TiktokenCounter{encoding: encoding, enc: enc}, nil
}

// NewTiktokenCounterForModel resolves the encoding a chat or embedding model uses.
func NewTiktokenCounterForModel(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding for %s: %w", model, err)
	}
	return &TiktokenCounter{encoding: model, enc: enc}, nil
}

func (t *TiktokenCounter) CountTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

func (t *TiktokenCounter) Encoding() string {
	return t.encoding
}
