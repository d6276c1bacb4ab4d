package jpegstream

import "fmt"

// Flip on to trace scan decoding: scan shape, restart resync points,
// and truncation.
var debugScanTrace = false

// decodeScan is the MCU iteration and block decode loop, walking the
// frame's MCU grid against frame/scan descriptions parsed once up
// front rather than rebuilt ad hoc per segment.
func (s *decodeSession) decodeScan(scan *Scan) error {
	info := &scan.Info
	frame := s.frame
	ns := len(info.ComponentIndices)
	interleaved := ns > 1

	if debugScanTrace {
		fmt.Printf("scan %d: Ns=%d Ss=%d Se=%d Ah=%d Al=%d\n",
			s.scanCount, ns, info.SpectralStart, info.SpectralEnd,
			info.SuccessiveApproxHigh, info.SuccessiveApproxLow)
	}

	if s.isMJPEG {
		s.tables.InstallMJPEGDefaults()
		if debugScanTrace {
			fmt.Println("MJPEG stream: default huffman tables installed")
		}
	}
	for i := range info.ComponentIndices {
		c := frame.Components[info.ComponentIndices[i]]
		if s.quant.Tables[c.QuantizationTableIndex] == nil {
			return Malformatted("quantization table not installed")
		}
		if info.SpectralStart == 0 && s.tables.DC[info.DCTableIndices[i]] == nil {
			return Malformatted("DC huffman table not installed")
		}
		if info.SpectralEnd > 0 && s.tables.AC[info.ACTableIndices[i]] == nil {
			return Malformatted("AC huffman table not installed")
		}
	}

	huff := NewHuffmanDecoder(s.input)
	dcPred := make([]int16, ns)
	eobRun := uint16(0)
	expectedRst := 0
	restartCountdown := s.restartInterval

	// isACFirst marks a progressive AC first-pass scan (always
	// non-interleaved, ISO/IEC 10918-1 G.1.1.1.2), the only scan kind
	// the optimal-EOB-run check applies to.
	isACFirst := !interleaved && info.SuccessiveApproxHigh == 0 && info.SpectralStart > 0
	var acFirstTable *HuffmanTable
	var prevEobRun uint16
	if isACFirst {
		acFirstTable = s.tables.AC[info.ACTableIndices[0]]
	}

	var mcuRows, mcuCols int
	if interleaved {
		mcuRows, mcuCols = frame.SizeInMCU.Height, frame.SizeInMCU.Width
	} else {
		c := frame.Components[info.ComponentIndices[0]]
		mcuRows, mcuCols = c.SizeInBlocks.Height, c.SizeInBlocks.Width
	}
	totalMCUs := mcuRows * mcuCols
	mcuIndex := 0

	for mcuY := 0; mcuY < mcuRows; mcuY++ {
		if !s.pgeCrossed {
			s.maybeCrossPGE()
		}
		if s.pgeCrossed {
			s.pushHandoff(huff, mcuY)
			// Rows behind this checkpoint re-encode from their
			// coefficients; only the bit reader's unconsumed lookahead
			// stays logged, since the checkpoint's stream position
			// excludes it.
			s.input.TrimRetainedData(huff.BufferedWholeBytes())
		}

		for mcuX := 0; mcuX < mcuCols; mcuX++ {
			if interleaved {
				for ci, compIdx := range info.ComponentIndices {
					c := frame.Components[compIdx]
					for oy := 0; oy < c.VerticalSamplingFactor; oy++ {
						for ox := 0; ox < c.HorizontalSamplingFactor; ox++ {
							by := mcuY*c.VerticalSamplingFactor + oy
							bx := mcuX*c.HorizontalSamplingFactor + ox
							if _, err := s.decodeOneBlock(huff, info, ci, compIdx, &dcPred[ci], &eobRun, scan, by, bx); err != nil {
								return s.handleScanEOF(scan, huff, err, ci, by, bx)
							}
						}
					}
				}
			} else {
				compIdx := info.ComponentIndices[0]
				eobRunWasZero := eobRun == 0
				empty, err := s.decodeOneBlock(huff, info, 0, compIdx, &dcPred[0], &eobRun, scan, mcuY, mcuX)
				if err != nil {
					return s.handleScanEOF(scan, huff, err, 0, mcuY, mcuX)
				}
				if isACFirst && eobRunWasZero && !s.allowNonOptimalEobRun {
					if err := s.checkOptimalEobRun(acFirstTable, &prevEobRun, eobRun, empty); err != nil {
						return err
					}
				}
			}

			mcuIndex++
			if s.restartInterval > 0 {
				restartCountdown--
				if restartCountdown == 0 && mcuIndex < totalMCUs {
					if err := s.checkPadBit(huff); err != nil {
						return err
					}
					huff.Reset()
					if err := huff.ReadRst(expectedRst); err != nil {
						return err
					}
					if debugScanTrace {
						fmt.Printf("RST%d at mcu %d/%d\n", expectedRst, mcuIndex, totalMCUs)
					}
					huff.Reset()
					for i := range dcPred {
						dcPred[i] = 0
					}
					eobRun = 0
					prevEobRun = 0
					expectedRst = (expectedRst + 1) % 8
					restartCountdown = s.restartInterval
				}
			}
		}
	}

	// The final block's last fill attempt may have already consumed the
	// leading 0xFF of whatever marker follows this scan; hand that state
	// back to the top-level dispatcher so it doesn't look for a 0xFF
	// that is no longer there.
	if mb, ok := huff.PendingMarker(); ok {
		s.carriedMarker = mb
	}

	return nil
}

// decodeOneBlock decodes the block at (by, bx) of frame component
// compIdx (scan-relative index ci) into scan.Coefficients[ci]. The
// returned bool is only meaningful for a progressive AC first-pass
// block: it reports whether the block decoded zero
// coefficients before its first EOB run began.
func (s *decodeSession) decodeOneBlock(huff *HuffmanDecoder, info *ScanInfo, ci, compIdx int, dcPred *int16, eobRun *uint16, scan *Scan, by, bx int) (bool, error) {
	c := s.frame.Components[compIdx]
	width := c.SizeInBlocks.Width
	idx := by*width + bx
	block := &scan.Coefficients[ci][idx]

	acTable := s.tables.AC[info.ACTableIndices[ci]]
	ss, se, al := info.SpectralStart, info.SpectralEnd, info.SuccessiveApproxLow

	if info.SuccessiveApproxHigh == 0 {
		dcTable := s.tables.DC[info.DCTableIndices[ci]]
		return s.decodeBlockFirst(huff, dcTable, acTable, dcPred, eobRun, block, ss, se, al)
	}
	return false, s.decodeBlockRefine(huff, acTable, eobRun, block, ss, se, al)
}

// decodeBlockFirst implements the Ah=0 pass, used for every
// baseline/sequential block and for a progressive scan's first visit
// to its spectral band.
func (s *decodeSession) decodeBlockFirst(huff *HuffmanDecoder, dcTable, acTable *HuffmanTable, dcPred *int16, eobRun *uint16, block *Block, ss, se, al int) (bool, error) {
	if ss == 0 {
		cat, err := huff.Decode(dcTable)
		if err != nil {
			return false, err
		}
		if cat > 11 {
			return false, Malformatted("invalid DC difference magnitude category")
		}
		diff, err := huff.ReceiveExtend(uint(cat))
		if err != nil {
			return false, err
		}
		*dcPred = *dcPred + diff // wraps modulo 2^16; overflow is explicitly permitted
		block[0] = *dcPred << uint(al)
	}
	if se == 0 {
		return false, nil
	}

	start := ss
	if start < 1 {
		start = 1
	}
	if *eobRun > 0 {
		*eobRun--
		return false, nil
	}

	decodedAny := false
	for k := start; k <= se; {
		if val, run, ok := huff.DecodeFastAC(acTable); ok {
			decodedAny = true
			k += int(run)
			if k > se {
				break
			}
			block.SetZigzag(k, val<<uint(al))
			k++
			continue
		}

		rs, err := huff.Decode(acTable)
		if err != nil {
			return false, err
		}
		run := int(rs >> 4)
		size := rs & 0x0F
		if size == 0 {
			if run == 15 {
				decodedAny = true
				k += 16
				continue
			}
			extra, err := huff.GetBits(uint(run))
			if err != nil {
				return false, err
			}
			*eobRun = (uint16(1) << uint(run)) + extra - 1
			return !decodedAny, nil
		}
		decodedAny = true
		k += run
		if k > se {
			break
		}
		val, err := huff.ReceiveExtend(uint(size))
		if err != nil {
			return false, err
		}
		block.SetZigzag(k, val<<uint(al))
		k++
	}
	return !decodedAny, nil
}

// decodeBlockRefine implements the Ah>0 successive-approximation
// refinement pass.
func (s *decodeSession) decodeBlockRefine(huff *HuffmanDecoder, acTable *HuffmanTable, eobRun *uint16, block *Block, ss, se, al int) error {
	bit := int16(1) << uint(al)

	if ss == 0 {
		b, err := huff.GetBits(1)
		if err != nil {
			return err
		}
		if b == 1 {
			block[0] |= bit
		}
		return nil
	}

	refineExisting := func(k int) error {
		v := block.GetZigzag(k)
		if v == 0 {
			return nil
		}
		rb, err := huff.GetBits(1)
		if err != nil {
			return err
		}
		if rb == 1 && v&bit == 0 {
			if v >= 0 {
				block.SetZigzag(k, v+bit)
			} else {
				block.SetZigzag(k, v-bit)
			}
		}
		return nil
	}

	k := ss
	if *eobRun == 0 {
		for k <= se {
			rs, err := huff.Decode(acTable)
			if err != nil {
				return err
			}
			run := int(rs >> 4)
			size := rs & 0x0F
			var newVal int16
			if size != 0 {
				b1, err := huff.GetBits(1)
				if err != nil {
					return err
				}
				if b1 == 1 {
					newVal = bit
				} else {
					newVal = -bit
				}
			} else if run != 15 {
				extra, err := huff.GetBits(uint(run))
				if err != nil {
					return err
				}
				*eobRun = (uint16(1) << uint(run)) + extra
				break
			}
			// size==0 && run==15 is ZRL: newVal stays 0, 16 zero-history slots are walked below.

			for k <= se {
				v := block.GetZigzag(k)
				if v != 0 {
					if err := refineExisting(k); err != nil {
						return err
					}
				} else {
					if run == 0 {
						if size != 0 {
							block.SetZigzag(k, newVal)
						}
						break
					}
					run--
				}
				k++
			}
			k++
		}
	}
	if *eobRun > 0 {
		for ; k <= se; k++ {
			if err := refineExisting(k); err != nil {
				return err
			}
		}
		*eobRun--
	}
	return nil
}

// handleScanEOF records a truncation point and folds the garbage
// accumulated so far into FormatInfo.grb.
func (s *decodeSession) handleScanEOF(scan *Scan, huff *HuffmanDecoder, err error, ci, y, x int) error {
	je, ok := IsJpegError(err)
	if !ok || je.Kind != KindEOF {
		return err
	}

	scan.Truncation = &Truncation{ComponentIndex: ci, Y: y, X: x}
	if debugScanTrace {
		fmt.Printf("truncated at component %d block (%d, %d)\n", ci, y, x)
	}
	s.format.GRB = append(s.format.GRB, huff.ViewBuffer()...)
	huff.ClearBuffer()

	if y == 0 && x == 0 && ci == 0 {
		// Nothing of this scan decoded: from the reconstruction point
		// of view the whole scan, header included, is garbage.
		if n := len(s.format.Handoff); n > 0 {
			s.format.Handoff = s.format.Handoff[:n-1]
		}
		tail := append([]byte(nil), scan.RawHeader...)
		s.format.GRB = append(tail, s.format.GRB...)
		if s.startByte > 0 {
			scan.Coefficients = nil
		}
	}
	return err
}

// pushHandoff appends a resumable MCU-row checkpoint. last_dc is left
// zero at emission time; a conforming consumer may
// populate it post-hoc once the row it precedes has actually decoded.
// SegmentSize excludes any whole bytes the bit reader has already
// pulled from the stream as lookahead but not yet consumed, so a
// resumed decode starts from a position it can still read fresh.
func (s *decodeSession) pushHandoff(huff *HuffmanDecoder, mcuY int) {
	s.handoffRecorded = true
	overhang, nbits := huff.HandoverByte()
	segmentSize := s.input.ProcessedLen() - int64(huff.BufferedWholeBytes())
	scanIdx := uint16(s.scanCount - 1)
	s.format.Handoff = append(s.format.Handoff, ThreadHandoffExt{
		StartScan:    scanIdx,
		EndScan:      scanIdx,
		MCUYStart:    uint16(mcuY),
		SegmentSize:  uint32(segmentSize),
		OverhangByte: overhang,
		NOverhangBit: nbits,
	})
}

// checkPadBit verifies that the fractional bits left over at a
// restart boundary are a single consistent pad value (all 0 or all 1)
// across the whole image. A JPEG encoder pads the last byte of each
// restart segment with one repeated bit value; a mismatch here means
// the entropy stream is corrupt rather than merely ended.
func (s *decodeSession) checkPadBit(huff *HuffmanDecoder) error {
	overhang, n := huff.HandoverByte()
	if n == 0 {
		return nil
	}
	mask := byte(0xFF) << (8 - n)
	bits := overhang & mask

	var bit uint8
	switch bits {
	case 0:
		bit = 0
	case mask:
		bit = 1
	default:
		return Malformattedf("inconsistent padding bits before restart marker: %#08b", bits>>(8-n))
	}

	if s.padBit == nil {
		s.padBit = &bit
		return nil
	}
	if *s.padBit != bit {
		return Malformattedf("padding bit changed across restart segments: had %d, found %d", *s.padBit, bit)
	}
	return nil
}

// checkOptimalEobRun enforces that a progressive AC first-pass scan's
// EOB runs are maximal: if this block decoded no coefficients before
// starting a fresh EOB run, the previous EOB run (if any) must itself
// have been within one of the table's maximum encodable run length,
// otherwise the encoder could have folded this block into that run
// instead of starting a new one.
func (s *decodeSession) checkOptimalEobRun(acTable *HuffmanTable, prevEobRun *uint16, newEobRun uint16, blockWasEmpty bool) error {
	if blockWasEmpty {
		maxRun := acTable.MaxEobRun()
		if *prevEobRun > 0 && *prevEobRun < maxRun-1 {
			return Malformattedf(
				"non-optimal eob runs (could have encoded up to %d zero blocks, but only did %d followed by %d)",
				maxRun, *prevEobRun+1, newEobRun+1)
		}
	}
	*prevEobRun = newEobRun
	return nil
}
