package filter

import (
	"fmt"
	"testing"
)

// TestBloomFilterBasic checks membership for added keys and a bounded false
// positive rate for absent keys.
func TestBloomFilterBasic(t *testing.T) {
	b := NewBloomFilterBuilder(10)
	for i := 0; i < 1000; i++ {
		b.AddKey(fmt.Appendf(nil, "key-%d", i))
	}
	if b.NumKeys() != 1000 {
		t.Fatalf("NumKeys = %d, want 1000", b.NumKeys())
	}

	data := b.Finish()
	r := NewBloomFilterReader(data)

	for i := 0; i < 1000; i++ {
		if !r.MayContain(fmt.Appendf(nil, "key-%d", i)) {
			t.Fatalf("added key-%d reported absent", i)
		}
	}

	falsePositives := 0
	for i := 0; i < 10000; i++ {
		if r.MayContain(fmt.Appendf(nil, "absent-%d", i)) {
			falsePositives++
		}
	}
	// 10 bits/key targets ~1%; allow generous slack.
	if falsePositives > 300 {
		t.Errorf("false positive rate too high: %d/10000", falsePositives)
	}
}

// TestBloomFilterEmpty yields no filter bytes; the reader then never rules
// keys out.
func TestBloomFilterEmpty(t *testing.T) {
	b := NewBloomFilterBuilder(10)
	if data := b.Finish(); data != nil {
		t.Errorf("empty builder should produce nil filter, got %d bytes", len(data))
	}

	r := NewBloomFilterReader(nil)
	if !r.MayContain([]byte("anything")) {
		t.Error("missing filter must not rule out keys")
	}
}

// TestBloomFilterMalformed treats garbage as match-all rather than failing.
func TestBloomFilterMalformed(t *testing.T) {
	r := NewBloomFilterReader([]byte{1, 2, 3})
	if !r.MayContain([]byte("k")) {
		t.Error("malformed filter must not rule out keys")
	}
}

// TestBloomFilterReset reuses a builder.
func TestBloomFilterReset(t *testing.T) {
	b := NewBloomFilterBuilder(10)
	b.AddKey([]byte("a"))
	b.Reset()
	if b.NumKeys() != 0 {
		t.Errorf("NumKeys after reset = %d, want 0", b.NumKeys())
	}
}
