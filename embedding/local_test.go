//go:build onnx

package embedding

import "testing"

func TestWordPieceTokenizerEncode(t *testing.T) {
	tok := &wordPieceTokenizer{
		vocab: map[string]int{
			"hello": 10, "world": 11, "[UNK]": 100,
		},
		clsToken: 101, sepToken: 102, unkToken: 100,
	}

	ids, mask := tok.Encode("hello world", 8)
	want := []int64{101, 10, 11, 102, 0, 0, 0, 0}
	for i, id := range want {
		if ids[i] != id {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], id)
		}
	}
	wantMask := []int64{1, 1, 1, 1, 0, 0, 0, 0}
	for i, m := range wantMask {
		if mask[i] != m {
			t.Errorf("mask[%d] = %d, want %d", i, mask[i], m)
		}
	}
}

func TestWordPieceTokenizerUnknownWord(t *testing.T) {
	tok := &wordPieceTokenizer{
		vocab:    map[string]int{"[UNK]": 100},
		clsToken: 101, sepToken: 102, unkToken: 100,
	}
	ids, _ := tok.Encode("zzz", 8)
	if ids[1] != 100 {
		t.Errorf("expected an unknown single-char-run word to map to [UNK] (100), got %d", ids[1])
	}
}

func TestNormalizeProducesUnitVector(t *testing.T) {
	vec := normalize([]float32{3, 4})
	if vec[0] < 0.59 || vec[0] > 0.61 {
		t.Errorf("expected normalized x ~= 0.6, got %f", vec[0])
	}
}
