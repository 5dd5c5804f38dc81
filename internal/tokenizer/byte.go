package tokenizer

import "fmt"

// ByteVocab is the vocabulary size of ByteLevel.
const ByteVocab = 256

// ByteLevel maps every byte of the input to its own token id. It needs no
// vocabulary file and round-trips arbitrary input, including invalid UTF-8.
type ByteLevel struct{}

// NewByteLevel returns a byte-level tokenizer.
func NewByteLevel() ByteLevel { return ByteLevel{} }

func (ByteLevel) VocabSize() int { return ByteVocab }

// Encode converts text to token ids, one per byte.
func (ByteLevel) Encode(text string) ([]int, error) {
	out := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		out[i] = int(text[i])
	}
	return out, nil
}

// Decode converts ids back to text. Ids outside [0, 256) are rejected.
func (ByteLevel) Decode(ids []int) (string, error) {
	out := make([]byte, len(ids))
	for i, id := range ids {
		if id < 0 || id >= ByteVocab {
			return "", fmt.Errorf("tokenizer: id %d at position %d outside byte vocab", id, i)
		}
		out[i] = byte(id)
	}
	return string(out), nil
}

// DecodeLossy converts ids back to text, dropping ids outside the byte vocab.
// Generated suffixes can contain pad values, which are not bytes.
func (ByteLevel) DecodeLossy(ids []int) string {
	out := make([]byte, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id < ByteVocab {
			out = append(out, byte(id))
		}
	}
	return string(out)
}
