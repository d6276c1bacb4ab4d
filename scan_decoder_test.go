package jpegstream

import "testing"

func TestHuffmanTableMaxEobRun(t *testing.T) {
	// Symbols, in code order: EOB0 (0x00), EOB3 (0x30), ZRL (0xF0).
	// ZRL must not count as an EOB symbol; EOB3 (run bits = 3) gives
	// the largest run, 1<<3 plus 3 appended bits = 15.
	spec := huffmanSpec{
		counts: [17]uint8{0, 0, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		values: []uint8{0x00, 0x30, 0xF0},
	}
	tbl := BuildHuffmanTable(spec, true)
	if got := tbl.MaxEobRun(); got != 15 {
		t.Errorf("MaxEobRun() = %d, want 15", got)
	}
}

func TestHuffmanTableMaxEobRunDefaultsToOne(t *testing.T) {
	spec := huffmanSpec{
		counts: [17]uint8{0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		values: []uint8{0x11}, // run=1,size=1: not an EOB symbol at all
	}
	tbl := BuildHuffmanTable(spec, true)
	if got := tbl.MaxEobRun(); got != 1 {
		t.Errorf("MaxEobRun() = %d, want 1", got)
	}
}

func TestCheckPadBitAcceptsConsistentPadding(t *testing.T) {
	w, r := NewByteStream(64)
	if _, err := w.Write([]byte{0xFF}); err != nil { // 1111 1111
		t.Fatalf("write: %v", err)
	}
	w.WriteEOF()

	s := &decodeSession{input: r}
	huff := NewHuffmanDecoder(r)
	if _, err := huff.GetBits(5); err != nil { // consume 5 bits, leave 3 pad bits "111"
		t.Fatalf("GetBits: %v", err)
	}
	if err := s.checkPadBit(huff); err != nil {
		t.Fatalf("checkPadBit: %v", err)
	}
	if s.padBit == nil || *s.padBit != 1 {
		t.Fatalf("padBit = %v, want 1", s.padBit)
	}
}

func TestCheckPadBitAcceptsUniformZeroRemainder(t *testing.T) {
	w, r := NewByteStream(64)
	if _, err := w.Write([]byte{0b10100000}); err != nil { // leftover 5 bits: 00000
		t.Fatalf("write: %v", err)
	}
	w.WriteEOF()

	s := &decodeSession{input: r}
	huff := NewHuffmanDecoder(r)
	if _, err := huff.GetBits(3); err != nil { // consume top 3 bits "101"
		t.Fatalf("GetBits: %v", err)
	}
	if err := s.checkPadBit(huff); err != nil {
		t.Fatalf("checkPadBit on uniform-zero remainder: %v", err)
	}
	if s.padBit == nil || *s.padBit != 0 {
		t.Fatalf("padBit = %v, want 0", s.padBit)
	}
}

func TestCheckPadBitRejectsMixedPadding(t *testing.T) {
	w, r := NewByteStream(64)
	if _, err := w.Write([]byte{0b10010000}); err != nil { // leftover 5 bits: 10000 (mixed)
		t.Fatalf("write: %v", err)
	}
	w.WriteEOF()

	s := &decodeSession{input: r}
	huff := NewHuffmanDecoder(r)
	if _, err := huff.GetBits(3); err != nil {
		t.Fatalf("GetBits: %v", err)
	}
	err := s.checkPadBit(huff)
	je, ok := IsJpegError(err)
	if !ok || je.Kind != KindMalformatted {
		t.Fatalf("checkPadBit on mixed remainder = %v, want Malformatted", err)
	}
}

func TestCheckPadBitRejectsChangedPadAcrossCalls(t *testing.T) {
	w, r := NewByteStream(64)
	// 0xFF, 0x00, 0x00: the first 0x00 is the JPEG stuffing byte that
	// escapes the literal 0xFF; the second 0x00 is the all-zero byte.
	if _, err := w.Write([]byte{0xFF, 0x00, 0x00}); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.WriteEOF()

	s := &decodeSession{input: r}
	huff := NewHuffmanDecoder(r)
	if _, err := huff.GetBits(4); err != nil { // leftover "1111" from the 0xFF byte
		t.Fatalf("GetBits: %v", err)
	}
	if err := s.checkPadBit(huff); err != nil {
		t.Fatalf("first checkPadBit: %v", err)
	}
	huff.Reset()
	if _, err := huff.GetBits(4); err != nil { // leftover "0000" from the 0x00 byte
		t.Fatalf("GetBits: %v", err)
	}
	err := s.checkPadBit(huff)
	je, ok := IsJpegError(err)
	if !ok || je.Kind != KindMalformatted {
		t.Fatalf("checkPadBit on changed pad value = %v, want Malformatted", err)
	}
}

func TestCheckOptimalEobRunRejectsNonMaximalRun(t *testing.T) {
	spec := huffmanSpec{
		counts: [17]uint8{0, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		values: []uint8{0x00, 0x30}, // EOB0, EOB3: max run = 15
	}
	tbl := BuildHuffmanTable(spec, true)

	s := &decodeSession{}
	prev := uint16(2) // far short of the maximal run of 15-1=14
	if err := s.checkOptimalEobRun(tbl, &prev, 0, true); err == nil {
		t.Fatalf("checkOptimalEobRun should reject a non-maximal previous run")
	}
}

func TestCheckOptimalEobRunAcceptsNonEmptyBlock(t *testing.T) {
	spec := huffmanSpec{
		counts: [17]uint8{0, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		values: []uint8{0x00, 0x30},
	}
	tbl := BuildHuffmanTable(spec, true)

	s := &decodeSession{}
	prev := uint16(2)
	if err := s.checkOptimalEobRun(tbl, &prev, 5, false); err != nil {
		t.Fatalf("checkOptimalEobRun on a non-empty block: %v", err)
	}
	if prev != 5 {
		t.Fatalf("prevEobRun = %d, want 5", prev)
	}
}
