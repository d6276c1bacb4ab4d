package jpegstream

import "testing"

// segment returns a marker segment: 0xFF, marker, a big-endian length
// (including the two length bytes), then payload.
func segment(marker byte, payload []byte) []byte {
	length := len(payload) + 2
	out := []byte{0xFF, marker, byte(length >> 8), byte(length)}
	return append(out, payload...)
}

// minimalBaselineJPEG builds a complete, decodable single-component
// 8x8 baseline JPEG: one MCU, one block, a trivial one-symbol DC table
// (always category 0) and a trivial one-symbol AC table (immediate
// end-of-block). Used to exercise the full marker-dispatch and MCU
// loop without needing a real encoder.
func minimalBaselineJPEG() []byte {
	var out []byte
	out = append(out, 0xFF, markerSOI)

	sof := []byte{8, 0, 8, 0, 8, 1, 1, 0x11, 0}
	out = append(out, segment(markerSOF0, sof)...)

	dcCounts := make([]byte, 16)
	dcCounts[0] = 1 // one code of length 1
	dht := append([]byte{0x00}, dcCounts...)
	dht = append(dht, 0x00) // symbol: category 0
	acCounts := make([]byte, 16)
	acCounts[0] = 1
	dhtAC := append([]byte{0x10}, acCounts...)
	dhtAC = append(dhtAC, 0x00) // symbol: run=0,size=0 (EOB)
	out = append(out, segment(markerDHT, append(dht, dhtAC...))...)

	dqt := make([]byte, 65)
	for i := 1; i < 65; i++ {
		dqt[i] = 1
	}
	out = append(out, segment(markerDQT, dqt)...)

	sos := []byte{1, 1, 0x00, 0, 63, 0x00}
	out = append(out, segment(markerSOS, sos)...)

	// Entropy data: bit0 = DC codeword "0" (category 0, no extra
	// bits), bit1 = AC codeword "0" (EOB, no extra bits); the
	// remaining 6 bits are padding.
	out = append(out, 0x3F)

	out = append(out, 0xFF, markerEOI)
	return out
}

// truncatedEntropyHeader builds a 16x8 single-component image (two
// 8x8 blocks in one row) whose DC table always decodes category 0
// ("0", one bit) and whose AC table decodes either an immediate EOB
// ("0") or one run=0/size=5 coefficient ("1" plus 5 magnitude bits).
// The single entropy byte is chosen so the first block's DC and AC
// decode consume it down to the last bit, leaving the second block's
// DC decode with nothing to read and no further bytes coming: a
// genuine mid-scan EOF after one full block has already landed.
func truncatedEntropyHeader() []byte {
	var out []byte
	out = append(out, 0xFF, markerSOI)

	sof := []byte{8, 0, 8, 0, 16, 1, 1, 0x11, 0}
	out = append(out, segment(markerSOF0, sof)...)

	dcCounts := make([]byte, 16)
	dcCounts[0] = 1 // one code of length 1
	dht := append([]byte{0x00}, dcCounts...)
	dht = append(dht, 0) // symbol: category 0

	acCounts := make([]byte, 16)
	acCounts[0] = 2 // two codes of length 1
	dhtAC := append([]byte{0x10}, acCounts...)
	dhtAC = append(dhtAC, 0x00, 0x05) // symbols, in code order: EOB, then run=0/size=5
	out = append(out, segment(markerDHT, append(dht, dhtAC...))...)

	dqt := make([]byte, 65)
	for i := 1; i < 65; i++ {
		dqt[i] = 1
	}
	out = append(out, segment(markerDQT, dqt)...)

	sos := []byte{1, 1, 0x00, 0, 63, 0x00}
	out = append(out, segment(markerSOS, sos)...)

	// Bits: DC "0" (cat 0), AC "1" (run=0/size=5) + 5 magnitude bits
	// "00000", AC "0" (EOB). Exactly 8 bits, so the second block's DC
	// read has nothing left and no second byte ever arrives.
	out = append(out, 0x40)
	return out
}

// restartJPEG builds a 16x8 single-component baseline image (two 8x8
// blocks) with restart_interval=1, so one restart marker sits between
// the two blocks' entropy data. rst is the marker type byte to place
// there (markerRST0 for a conforming stream).
func restartJPEG(rst byte) []byte {
	full := truncatedEntropyHeader()
	sosHeader := segment(markerSOS, []byte{1, 1, 0x00, 0, 63, 0x00})
	out := append([]byte(nil), full[:len(full)-1-len(sosHeader)]...)
	out = append(out, segment(markerDRI, []byte{0, 1})...)
	out = append(out, sosHeader...)
	// Each block: DC "0" (category 0), AC "0" (EOB), six 1-bits of padding.
	out = append(out, 0x3F, 0xFF, rst, 0x3F)
	out = append(out, 0xFF, markerEOI)
	return out
}

// progressiveJPEG builds a three-scan progressive 8x8 single-component
// image: a DC-first scan (Al=1) storing 3<<1, an AC-first scan (band
// 1..5, Al=2) storing one coefficient at zigzag index 1, and an AC
// refinement scan (Ah=2, Al=1) that corrects that coefficient upward
// and introduces a new one at zigzag index 2. The DC table decodes "0"
// to category 0 and "10" to category 2; the AC table decodes "0" to
// EOB and "10" to run=0/size=1.
func progressiveJPEG() []byte {
	var out []byte
	out = append(out, 0xFF, markerSOI)

	sof := []byte{8, 0, 8, 0, 8, 1, 1, 0x11, 0}
	out = append(out, segment(markerSOF2, sof)...)

	counts := make([]byte, 16)
	counts[0], counts[1] = 1, 1
	dht := append([]byte{0x00}, counts...)
	dht = append(dht, 0x00, 0x02)
	dhtAC := append([]byte{0x10}, counts...)
	dhtAC = append(dhtAC, 0x00, 0x01)
	out = append(out, segment(markerDHT, append(dht, dhtAC...))...)

	dqt := make([]byte, 65)
	for i := 1; i < 65; i++ {
		dqt[i] = 1
	}
	out = append(out, segment(markerDQT, dqt)...)

	// DC first: category 2 ("10"), magnitude bits "11" (+3).
	out = append(out, segment(markerSOS, []byte{1, 1, 0x00, 0, 0, 0x01})...)
	out = append(out, writeBits([][2]uint{{0b10, 2}, {0b11, 2}})...)

	// AC first: run=0/size=1 ("10"), sign "1" (+1 at zigzag 1), EOB ("0").
	out = append(out, segment(markerSOS, []byte{1, 1, 0x00, 1, 5, 0x02})...)
	out = append(out, writeBits([][2]uint{{0b10, 2}, {1, 1}, {0, 1}})...)

	// AC refine: run=0/size=1 ("10"), sign "1", correction "1" for the
	// existing zigzag-1 coefficient, then EOB ("0").
	out = append(out, segment(markerSOS, []byte{1, 1, 0x00, 1, 5, 0x21})...)
	out = append(out, writeBits([][2]uint{{0b10, 2}, {1, 1}, {1, 1}, {0, 1}})...)

	out = append(out, 0xFF, markerEOI)
	return out
}

// newTestStream writes data then EOF to a fresh ByteStream pair and
// returns the InputView ready for Decode.
func newTestStream(t *testing.T, data []byte) *InputView {
	t.Helper()
	w, r := NewByteStream(4096)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.WriteEOF()
	return r
}
