package dataset

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// UnkToken is the conventional out-of-vocabulary entry.
const UnkToken = "<unk>"

// Vocab is the bidirectional mapping between label tokens and indices,
// driven by a vocabulary file with one token per line.
type Vocab struct {
	tokens []string
	index  map[string]int
	unk    int // -1 when the vocabulary has no <unk> entry
}

// LoadVocab reads a vocabulary file. Index equals line number, blank
// lines and #-comments are skipped.
func LoadVocab(path string) (*Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open vocab")
	}
	defer f.Close()

	v := &Vocab{index: map[string]int{}, unk: -1}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tok := strings.TrimSpace(scanner.Text())
		if tok == "" || strings.HasPrefix(tok, "#") {
			continue
		}
		if _, dup := v.index[tok]; dup {
			return nil, errors.Errorf("vocab %s: duplicate token %q", path, tok)
		}
		v.index[tok] = len(v.tokens)
		v.tokens = append(v.tokens, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read vocab")
	}
	if id, ok := v.index[UnkToken]; ok {
		v.unk = id
	}
	return v, nil
}

// Size returns the number of entries.
func (v *Vocab) Size() int {
	return len(v.tokens)
}

// ID maps a token to its index. Unknown tokens map to <unk> when the
// vocabulary has one.
func (v *Vocab) ID(tok string) (int, bool) {
	if id, ok := v.index[tok]; ok {
		return id, true
	}
	if v.unk >= 0 {
		return v.unk, true
	}
	return -1, false
}

// Token maps an index back to its token.
func (v *Vocab) Token(id int) (string, bool) {
	if id < 0 || id >= len(v.tokens) {
		return "", false
	}
	return v.tokens[id], true
}

// Encode maps a token sequence to indices, dropping tokens that cannot
// be mapped.
func (v *Vocab) Encode(tokens []string) []int {
	ids := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		if id, ok := v.ID(tok); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Decode maps an index sequence back to tokens. The second result is
// false when any index was out of range.
func (v *Vocab) Decode(ids []int) ([]string, bool) {
	tokens := make([]string, 0, len(ids))
	ok := true
	for _, id := range ids {
		tok, found := v.Token(id)
		if !found {
			ok = false
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens, ok
}

// Tokenize splits a transcript into the tokens of a label scheme:
// space-separated units for word and phone schemes, single characters
// (word boundaries included) otherwise.
func Tokenize(labelType, transcript string) []string {
	if strings.Contains(labelType, "word") || strings.Contains(labelType, "phone") {
		return strings.Fields(transcript)
	}
	out := make([]string, 0, len(transcript))
	for _, r := range transcript {
		out = append(out, string(r))
	}
	return out
}
