package classifier

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testTokenizer(t *testing.T) *WordPieceTokenizer {
	t.Helper()
	tok, err := newWordPieceTokenizer(map[string]int64{
		"[PAD]": 0, "[UNK]": 1, "[CLS]": 2, "[SEP]": 3,
		"he": 4, "touched": 5, "me": 6, "harass": 7, "##ment": 8, "!": 9,
	})
	if err != nil {
		t.Fatalf("tokenizer: %v", err)
	}
	return tok
}

func TestEncodePadsAndMasks(t *testing.T) {
	ids, attn := testTokenizer(t).Encode("He touched me!", 8)
	if diff := cmp.Diff([]int64{2, 4, 5, 6, 9, 3, 0, 0}, ids); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1, 1, 1, 1, 1, 1, 0, 0}, attn); diff != "" {
		t.Fatalf("mask (-want +got):\n%s", diff)
	}
}

func TestEncodeWordPiecesAndUnknown(t *testing.T) {
	ids, _ := testTokenizer(t).Encode("harassment xyz", 6)
	if diff := cmp.Diff([]int64{2, 7, 8, 1, 3, 0}, ids); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
}

func TestEncodeTruncatesKeepingSeparator(t *testing.T) {
	ids, attn := testTokenizer(t).Encode("he he he he he he", 4)
	if diff := cmp.Diff([]int64{2, 4, 4, 3}, ids); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1, 1, 1, 1}, attn); diff != "" {
		t.Fatalf("mask (-want +got):\n%s", diff)
	}
}

func TestTokenizerRequiresSpecials(t *testing.T) {
	if _, err := newWordPieceTokenizer(map[string]int64{"[PAD]": 0}); err == nil {
		t.Fatalf("expected missing specials error")
	}
}
