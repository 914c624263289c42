package dataset

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeVocab(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVocabRoundTrip(t *testing.T) {
	v, err := LoadVocab(writeVocab(t, "あ\nい\nう\n_\n"))
	if err != nil {
		t.Fatal(err)
	}
	if v.Size() != 4 {
		t.Fatalf("Size() = %d, want 4", v.Size())
	}

	ids := v.Encode([]string{"あ", "う", "_", "い"})
	if want := []int{0, 2, 3, 1}; !reflect.DeepEqual(ids, want) {
		t.Errorf("Encode() = %v, want %v", ids, want)
	}

	tokens, ok := v.Decode(ids)
	if !ok {
		t.Error("Decode() reported failure for valid ids")
	}
	if want := []string{"あ", "う", "_", "い"}; !reflect.DeepEqual(tokens, want) {
		t.Errorf("Decode() = %v, want %v", tokens, want)
	}
}

func TestVocabUnknownToken(t *testing.T) {
	// Without <unk> an unknown token is dropped.
	v, err := LoadVocab(writeVocab(t, "a\nb\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := v.Encode([]string{"a", "x", "b"}); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("Encode() without <unk> = %v, want [0 1]", got)
	}

	// With <unk> it maps there instead.
	v, err = LoadVocab(writeVocab(t, "a\nb\n<unk>\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := v.Encode([]string{"a", "x"}); !reflect.DeepEqual(got, []int{0, 2}) {
		t.Errorf("Encode() with <unk> = %v, want [0 2]", got)
	}
}

func TestVocabDecodeOutOfRange(t *testing.T) {
	v, err := LoadVocab(writeVocab(t, "a\nb\n"))
	if err != nil {
		t.Fatal(err)
	}
	tokens, ok := v.Decode([]int{0, 7})
	if ok {
		t.Error("Decode() with out-of-range id reported success")
	}
	if !reflect.DeepEqual(tokens, []string{"a"}) {
		t.Errorf("Decode() = %v, want [a]", tokens)
	}
}

func TestVocabRejectsDuplicates(t *testing.T) {
	if _, err := LoadVocab(writeVocab(t, "a\nb\na\n")); err == nil {
		t.Error("LoadVocab() accepted a duplicate token")
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name       string
		labelType  string
		transcript string
		want       []string
	}{
		{"char_scheme", "kana", "あい_う", []string{"あ", "い", "_", "う"}},
		{"word_scheme", "word_freq5", "今日 は 晴れ", []string{"今日", "は", "晴れ"}},
		{"phone_scheme", "phone", "k y o:", []string{"k", "y", "o:"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Tokenize(tt.labelType, tt.transcript); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize() = %v, want %v", got, tt.want)
			}
		})
	}
}
