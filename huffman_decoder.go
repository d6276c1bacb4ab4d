package jpegstream

// HuffmanDecoder is the per-scan entropy decoding front end: a
// BitReader plus the byte-retention bookkeeping used to reconstruct
// PGE (pre-entropy garbage, from start_byte on) and GRB (trailing
// garbage past a truncation point or EOI). Every byte the BitReader
// consumes is retained by the underlying InputView; clear_buffer/
// view_buffer just delimit which stretch of that retention belongs to
// which purpose.
type HuffmanDecoder struct {
	br *BitReader
	in *InputView
}

// NewHuffmanDecoder wraps in for one scan's entropy decoding.
func NewHuffmanDecoder(in *InputView) *HuffmanDecoder {
	return &HuffmanDecoder{br: NewBitReader(in), in: in}
}

// GetBits reads n (0..16) raw bits.
func (h *HuffmanDecoder) GetBits(n uint) (uint16, error) {
	return h.br.GetBits(n)
}

// ReceiveExtend reads an n-bit magnitude and sign-extends it.
func (h *HuffmanDecoder) ReceiveExtend(n uint) (int16, error) {
	return h.br.ReceiveExtend(n)
}

// Decode returns the next Huffman symbol from table.
func (h *HuffmanDecoder) Decode(table *HuffmanTable) (uint8, error) {
	return table.Decode(h.br)
}

// DecodeFastAC attempts the 9-bit fast path for an AC coefficient.
func (h *HuffmanDecoder) DecodeFastAC(table *HuffmanTable) (value int16, run uint8, ok bool) {
	return table.DecodeFastAC(h.br)
}

// Reset discards any fractional bit buffer, used at restart boundaries.
func (h *HuffmanDecoder) Reset() {
	h.br.Reset()
}

// ReadRst validates and consumes an RSTn marker with n == expectedN.
func (h *HuffmanDecoder) ReadRst(expectedN int) error {
	return h.br.ReadRst(expectedN)
}

// HandoverByte returns the fractional byte currently buffered, for a
// thread-handoff checkpoint.
func (h *HuffmanDecoder) HandoverByte() (byte, uint8) {
	return h.br.HandoverByte()
}

// BufferedWholeBytes returns the count of whole bytes read ahead into
// the bit accumulator but not yet consumed, which a stream-position
// checkpoint must subtract back out.
func (h *HuffmanDecoder) BufferedWholeBytes() int {
	return h.br.BufferedWholeBytes()
}

// PendingMarker reports a marker discovered mid-fill, if any.
func (h *HuffmanDecoder) PendingMarker() (byte, bool) {
	return h.br.PendingMarker()
}

// GetPge returns the bytes retained since the last ClearBuffer/EndPge,
// without discarding them.
func (h *HuffmanDecoder) GetPge() []byte {
	return h.in.ViewRetainedData()
}

// EndPge discards the retained bytes, marking the end of one logged
// stretch (the pre-entropy garbage, or a trailing-garbage segment)
// so the next stretch starts counting from zero.
func (h *HuffmanDecoder) EndPge() {
	h.in.ClearRetainedData()
}

// ClearBuffer is an alias for EndPge used at points in the scan
// decoder where the "start a new logged stretch" framing reads more
// naturally than "the PGE has ended".
func (h *HuffmanDecoder) ClearBuffer() {
	h.in.ClearRetainedData()
}

// ViewBuffer is an alias for GetPge used where the caller is peeking
// at trailing-garbage bytes rather than the PGE specifically.
func (h *HuffmanDecoder) ViewBuffer() []byte {
	return h.in.ViewRetainedData()
}
