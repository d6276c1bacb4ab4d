package jpegstream

// decodeSession is the top-level lifecycle owner: the marker
// dispatcher plus all state shared with the scan decoder for one
// call to Decode, driving a single whole-file read into a streaming,
// resumable decode.
type decodeSession struct {
	input      *InputView
	startByte  int64
	headerOnly bool

	frame *FrameInfo
	scans []Scan

	// coefficients is the per-frame-component accumulation storage,
	// allocated lazily at the first scan and shared by every scan
	// touching that component: progressive refinement passes read the
	// values earlier passes stored.
	coefficients [][]Block

	tables          HuffmanTables
	quant           QuantizationTables
	restartInterval int
	isMJPEG         bool

	format          FormatInfo
	pgeCrossed      bool
	handoffRecorded bool
	scanCount       int

	// previousMarker is the marker handled by the previous dispatch
	// iteration, used for the positional rules on RSTn and DNL.
	previousMarker byte

	// carriedMarker holds a marker type byte whose leading 0xFF was
	// already consumed by the scan's BitReader while it filled its bit
	// accumulator past the last entropy-coded bit. Zero
	// means none; no real marker type byte is ever 0x00.
	carriedMarker byte

	// padBit is the single pad-bit value (0 or 1) discovered at the
	// first restart boundary with leftover fractional bits, checked
	// for consistency at every later restart boundary. Nil
	// until the first boundary with a nonzero overhang is seen.
	padBit *uint8

	// allowNonOptimalEobRun disables the progressive first-pass
	// optimal-EOB-run check.
	allowNonOptimalEobRun bool
}

// DecodeOptions carries the optional relaxations to Decode's default
// strictness. The zero value is strict on both checks.
type DecodeOptions struct {
	// AllowNonOptimalEobRun, when true, skips the check that a
	// progressive AC first-pass scan's EOB runs are maximal. False
	// (the default) rejects any non-optimal-but-structurally-valid
	// stream.
	AllowNonOptimalEobRun bool
}

// Decode is the package's single entry point. start_byte marks the entropy-byte offset at which PGE
// logging ends and the caller's intended decode region begins;
// headerOnly forces start_byte to 0 and skips scan decoding entirely.
func Decode(input *InputView, startByte int64, headerOnly bool) (*Jpeg, error) {
	return DecodeWithOptions(input, startByte, headerOnly, DecodeOptions{})
}

// DecodeWithOptions is Decode with explicit control over the optional
// strictness relaxations in DecodeOptions.
func DecodeWithOptions(input *InputView, startByte int64, headerOnly bool, opts DecodeOptions) (*Jpeg, error) {
	if headerOnly {
		startByte = 0
	}
	s := &decodeSession{
		input:                 input,
		startByte:             startByte,
		headerOnly:            headerOnly,
		allowNonOptimalEobRun: opts.AllowNonOptimalEobRun,
	}
	return s.run()
}

func (s *decodeSession) run() (*Jpeg, error) {
	var soi [2]byte
	if _, err := s.input.Read(soi[:], true, true); err != nil {
		return nil, Malformatted("incomplete header")
	}
	if soi[0] != 0xFF || soi[1] != markerSOI {
		return nil, Malformatted("missing SOI marker")
	}
	s.previousMarker = markerSOI

	truncated := false

dispatchLoop:
	for {
		marker, err := s.readMarker()
		if err != nil {
			return nil, s.classifyTopLevelEOF(err)
		}

		switch {
		case marker == markerEOI:
			// Everything retained up to and including EOI is
			// structural; only bytes past EOI belong to grb.
			s.input.ClearRetainedData()
			break dispatchLoop

		case isSOF(marker):
			payload, err := s.readSegmentPayload()
			if err != nil {
				return nil, s.classifyTopLevelEOF(err)
			}
			if s.frame != nil {
				return nil, Malformatted("multiple SOF markers")
			}
			frame, err := ParseSOF(marker, payload)
			if err != nil {
				return nil, err
			}
			s.frame = frame

		case marker == markerSOS:
			if s.frame == nil {
				return nil, Malformatted("SOS before SOF")
			}
			lenBuf, payload, err := s.readSegmentPayloadKeepingHeader()
			if err != nil {
				return nil, s.classifyTopLevelEOF(err)
			}
			scanInfo, err := ParseSOS(s.frame, payload)
			if err != nil {
				return nil, err
			}
			rawHeader := make([]byte, 0, 2+2+len(payload))
			rawHeader = append(rawHeader, 0xFF, markerSOS)
			rawHeader = append(rawHeader, lenBuf[:]...)
			rawHeader = append(rawHeader, payload...)

			s.scanCount++
			scan := Scan{RawHeader: rawHeader, Info: *scanInfo}
			if !s.pgeCrossed {
				s.maybeCrossPGE()
			} else {
				// Inter-scan segments are structural, not garbage.
				s.input.ClearRetainedData()
			}

			if !s.headerOnly {
				if s.coefficients == nil {
					s.coefficients = make([][]Block, len(s.frame.Components))
					for i, c := range s.frame.Components {
						s.coefficients[i] = make([]Block, c.SizeInBlocks.Width*c.SizeInBlocks.Height)
					}
				}
				scan.Coefficients = make([][]Block, len(scanInfo.ComponentIndices))
				for i, ci := range scanInfo.ComponentIndices {
					scan.Coefficients[i] = s.coefficients[ci]
				}
				if err := s.decodeScan(&scan); err != nil {
					je, isJE := IsJpegError(err)
					if isJE && je.Kind == KindEOF {
						s.scans = append(s.scans, scan)
						if !s.pgeCrossed {
							return nil, Malformatted("EOF encountered before start_byte")
						}
						if !s.handoffRecorded {
							return nil, Malformatted("no/insufficient entropy encoded data")
						}
						truncated = true
						break dispatchLoop
					}
					return nil, err
				}
			}
			s.scans = append(s.scans, scan)

		case marker == markerDQT:
			payload, err := s.readSegmentPayload()
			if err != nil {
				return nil, s.classifyTopLevelEOF(err)
			}
			if err := ParseDQT(payload, &s.quant); err != nil {
				return nil, err
			}

		case marker == markerDHT:
			payload, err := s.readSegmentPayload()
			if err != nil {
				return nil, s.classifyTopLevelEOF(err)
			}
			if err := ParseDHT(payload, &s.tables); err != nil {
				return nil, err
			}

		case marker == markerDRI:
			payload, err := s.readSegmentPayload()
			if err != nil {
				return nil, s.classifyTopLevelEOF(err)
			}
			ri, err := ParseDRI(payload)
			if err != nil {
				return nil, err
			}
			s.restartInterval = ri

		case marker == markerDAC:
			return nil, Unsupported("arithmetic conditioning tables (DAC)")

		case marker == markerCOM:
			if _, err := s.readSegmentPayload(); err != nil {
				return nil, s.classifyTopLevelEOF(err)
			}

		case isAPPn(marker):
			payload, err := s.readSegmentPayload()
			if err != nil {
				return nil, s.classifyTopLevelEOF(err)
			}
			info, err := ParseAPP(marker, payload)
			if err != nil {
				return nil, err
			}
			if info.IsMJPEG {
				s.isMJPEG = true
			}

		case isRST(marker):
			// Some encoders emit a final RST marker after the
			// entropy-coded data; tolerate it there and only there.
			if s.previousMarker != markerSOS {
				return nil, Malformatted("unexpected restart marker outside entropy-coded data")
			}

		case marker == markerDNL:
			// Section B.2.1: a DNL segment shall immediately follow
			// the first scan.
			if s.previousMarker != markerSOS || s.scanCount != 1 {
				return nil, Malformatted("DNL is only allowed immediately after the first scan")
			}
			return nil, Unsupported("DNL (height redefinition)")

		case marker == markerDHP, marker == markerEXP:
			return nil, Unsupported("hierarchical mode (DHP/EXP)")

		default:
			return nil, Malformattedf("unknown marker %#02x", marker)
		}
		s.previousMarker = marker
	}

	s.finalize(truncated)

	if s.frame == nil {
		return nil, Malformatted("incomplete header")
	}

	result := &Jpeg{Frame: *s.frame, Scans: s.scans, Format: &s.format}
	if s.headerOnly {
		result.Format = nil
	}
	result.MaxDecodedBlock = s.maxDecodedBlock()
	return result, nil
}

// classifyTopLevelEOF reclassifies a stream-ended condition observed
// outside of scan decoding. Header paths never recover from EOF, so a
// raw ByteStream status here always becomes Malformatted.
func (s *decodeSession) classifyTopLevelEOF(err error) error {
	if _, ok := IsJpegError(err); ok {
		return err
	}
	if s.frame == nil || s.scanCount == 0 {
		return Malformatted("incomplete header")
	}
	return wrapMalformatted("unexpected end of stream between segments", err)
}

// readMarker skips any stray non-0xFF bytes and any run of 0xFF fill
// bytes, returning the marker type byte that follows. If the
// preceding scan's BitReader already consumed this marker's leading
// 0xFF while topping up its accumulator, that carried-over state is
// consumed here instead of re-reading a 0xFF from the stream.
func (s *decodeSession) readMarker() (byte, error) {
	if s.carriedMarker != 0 {
		marker := s.carriedMarker
		s.carriedMarker = 0
		if _, err := s.input.ReadByte(true); err != nil {
			return 0, err
		}
		return marker, nil
	}
	for {
		b, err := s.input.ReadByte(true)
		if err != nil {
			return 0, err
		}
		if b != 0xFF {
			continue
		}
		for {
			nb, err := s.input.PeekByte()
			if err != nil {
				return 0, err
			}
			if nb != 0xFF {
				break
			}
			if _, err := s.input.ReadByte(true); err != nil {
				return 0, err
			}
		}
		marker, err := s.input.ReadByte(true)
		if err != nil {
			return 0, err
		}
		if marker == 0x00 {
			return 0, Malformatted("0xFF00 found where marker was expected")
		}
		return marker, nil
	}
}

// readSegmentPayload reads a marker segment's 2-byte big-endian length
// (inclusive of itself) and returns the remaining payload bytes.
func (s *decodeSession) readSegmentPayload() ([]byte, error) {
	_, payload, err := s.readSegmentPayloadKeepingHeader()
	return payload, err
}

func (s *decodeSession) readSegmentPayloadKeepingHeader() ([2]byte, []byte, error) {
	var lenBuf [2]byte
	if _, err := s.input.Read(lenBuf[:], true, true); err != nil {
		return lenBuf, nil, err
	}
	length := int(lenBuf[0])<<8 | int(lenBuf[1])
	if length < 2 {
		return lenBuf, nil, Malformatted("segment length must be at least 2")
	}
	payload := make([]byte, length-2)
	if len(payload) > 0 {
		if _, err := s.input.Read(payload, true, true); err != nil {
			return lenBuf, nil, err
		}
	}
	return lenBuf, payload, nil
}

// maybeCrossPGE ends PGE logging the first time processed_len reaches
// start_byte. The retained bytes covering stream positions
// [start_byte, processed_len) become FormatInfo.pge: the stretch the
// caller's segment must reproduce verbatim before entropy
// reconstruction can take over. Anything retained from before
// start_byte is another segment's territory and is dropped.
func (s *decodeSession) maybeCrossPGE() {
	if s.pgeCrossed {
		return
	}
	if s.input.ProcessedLen() < s.startByte {
		return
	}
	s.pgeCrossed = true
	retained := s.input.ViewRetainedData()
	from := int64(len(retained)) - (s.input.ProcessedLen() - s.startByte)
	if from < 0 {
		from = 0
	}
	s.format.PGE = append([]byte(nil), retained[from:]...)
	s.input.ClearRetainedData()
}

// finalize aborts the stream and flushes whatever remains into grb:
// any retained bytes plus the still-buffered queue go into
// FormatInfo.GRB before the stream closes. After a truncation nothing
// is flushed here; handleScanEOF has already moved the retained bytes
// into grb.
func (s *decodeSession) finalize(truncated bool) {
	s.input.Abort()
	if !truncated {
		tail := append([]byte(nil), s.input.ViewRetainedData()...)
		tail = append(tail, s.drainQueued()...)
		s.format.GRB = append(s.format.GRB, tail...)
		s.input.ClearRetainedData()
	}
	s.input.Close()
}

// drainQueued best-effort reads whatever bytes are already sitting in
// the stream's queue without blocking for more, so a writer that stops
// right after EOI hands its trailing bytes to grb rather than leaving
// them stranded.
func (s *decodeSession) drainQueued() []byte {
	var out []byte
	for {
		buf := make([]byte, 4096)
		n, err := s.input.Read(buf, false, false)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil || n == 0 {
			return out
		}
	}
}

// maxDecodedBlock returns, per frame component, the index of the last
// block of that component's real (non-padding) block grid. It is
// derived from the frame alone; truncated scans do not lower it.
func (s *decodeSession) maxDecodedBlock() [4]uint32 {
	var out [4]uint32
	if s.frame == nil {
		return out
	}
	for i, c := range s.frame.Components {
		if i >= 4 {
			break
		}
		blocks := uint32(c.ActualSizeInBlocks.Width * c.ActualSizeInBlocks.Height)
		if blocks > 0 {
			out[i] = blocks - 1
		}
	}
	return out
}
