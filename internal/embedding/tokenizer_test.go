package embedding

import "testing"

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	inputIDs, attentionMask := tok.Tokenize("sunset over water", 8)
	if len(inputIDs) != 8 || len(attentionMask) != 8 {
		t.Fatalf("lengths %d, %d", len(inputIDs), len(attentionMask))
	}
	if inputIDs[0] != tokenStartOfText {
		t.Errorf("first token = %d", inputIDs[0])
	}
	if inputIDs[4] != tokenEndOfText {
		t.Errorf("token after words = %d, want end-of-text", inputIDs[4])
	}
	for i := 0; i < 5; i++ {
		if attentionMask[i] != 1 {
			t.Errorf("attention mask[%d] = %d", i, attentionMask[i])
		}
	}
	if attentionMask[5] != 0 {
		t.Errorf("padding should not be attended, mask[5] = %d", attentionMask[5])
	}
}

func TestSimpleTokenizer_Deterministic(t *testing.T) {
	tok := &SimpleTokenizer{}
	a, _ := tok.Tokenize("red bicycle", 16)
	b, _ := tok.Tokenize("red bicycle", 16)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("token %d differs: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestSimpleTokenizer_Truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	inputIDs, _ := tok.Tokenize("a b c d e f g h", 4)
	if len(inputIDs) != 4 {
		t.Fatalf("len=%d", len(inputIDs))
	}
}

func TestSplitWords(t *testing.T) {
	got := SplitWords("  dog \t on\nbeach ")
	if len(got) != 3 || got[0] != "dog" || got[2] != "beach" {
		t.Errorf("SplitWords=%v", got)
	}
}
