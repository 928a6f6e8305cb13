package classifier

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// WordPieceTokenizer implements a minimal BERT-compatible WordPiece encoder.
type WordPieceTokenizer struct {
	vocab        map[string]int64
	clsID        int64
	sepID        int64
	padID        int64
	unkID        int64
	continuation string
	maxWordRunes int
}

// LoadWordPieceTokenizer builds the tokenizer from a vocab.txt file.
func LoadWordPieceTokenizer(path string) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	sc := bufio.NewScanner(f)
	var idx int64
	for sc.Scan() {
		token := strings.TrimSpace(sc.Text())
		if token == "" {
			continue
		}
		vocab[token] = idx
		idx++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan vocab: %w", err)
	}
	return newWordPieceTokenizer(vocab)
}

func newWordPieceTokenizer(vocab map[string]int64) (*WordPieceTokenizer, error) {
	for _, special := range []string{"[CLS]", "[SEP]", "[PAD]", "[UNK]"} {
		if _, ok := vocab[special]; !ok {
			return nil, fmt.Errorf("vocab missing %s", special)
		}
	}
	return &WordPieceTokenizer{
		vocab:        vocab,
		continuation: "##",
		clsID:        vocab["[CLS]"],
		sepID:        vocab["[SEP]"],
		padID:        vocab["[PAD]"],
		unkID:        vocab["[UNK]"],
		maxWordRunes: 100,
	}, nil
}

// findVocab looks for vocab.txt next to the model or under tokenizer/.
func findVocab(dir string) (string, error) {
	for _, p := range []string{
		filepath.Join(dir, "vocab.txt"),
		filepath.Join(dir, "tokenizer", "vocab.txt"),
	} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("vocab.txt not found under %s", dir)
}

// Encode converts text into token IDs and an attention mask, both of length seqLen.
func (t *WordPieceTokenizer) Encode(text string, seqLen int) ([]int64, []int64) {
	if seqLen < 2 {
		return nil, nil
	}

	tokens := make([]int64, 0, seqLen)
	tokens = append(tokens, t.clsID)
	for _, w := range splitWords(strings.ToLower(text)) {
		pieces := t.wordPiece(w)
		if len(tokens)+len(pieces) > seqLen-1 {
			pieces = pieces[:seqLen-1-len(tokens)]
		}
		tokens = append(tokens, pieces...)
		if len(tokens) >= seqLen-1 {
			break
		}
	}
	tokens = append(tokens, t.sepID)

	ids := make([]int64, seqLen)
	attn := make([]int64, seqLen)
	for i := range ids {
		if i < len(tokens) {
			ids[i] = tokens[i]
			attn[i] = 1
			continue
		}
		ids[i] = t.padID
	}
	return ids, attn
}

// splitWords splits on whitespace and isolates punctuation, as BERT's basic
// tokenizer does.
func splitWords(text string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			out = append(out, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

func (t *WordPieceTokenizer) wordPiece(word string) []int64 {
	if id, ok := t.vocab[word]; ok {
		return []int64{id}
	}
	if len([]rune(word)) > t.maxWordRunes {
		return []int64{t.unkID}
	}

	var pieces []int64
	start := 0
	for start < len(word) {
		end := len(word)
		found := false
		for end > start {
			sub := word[start:end]
			if start > 0 {
				sub = t.continuation + sub
			}
			if id, ok := t.vocab[sub]; ok {
				pieces = append(pieces, id)
				found = true
				break
			}
			end--
		}
		if !found {
			return []int64{t.unkID}
		}
		start = end
	}
	return pieces
}
