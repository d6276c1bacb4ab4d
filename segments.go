package jpegstream

// HuffmanTables holds the four DC and four AC table slots, mutated in place by ParseDHT and consulted by ScanDecoder.
type HuffmanTables struct {
	DC [4]*HuffmanTable
	AC [4]*HuffmanTable
}

// InstallMJPEGDefaults fills any still-unset luma/chroma slots (0 and
// 1) with the ITU-T T.81 Annex K.3 default tables, used for
// Motion-JPEG streams that omit their own DHT segments.
func (t *HuffmanTables) InstallMJPEGDefaults() {
	if t.DC[0] == nil {
		t.DC[0] = BuildHuffmanTable(mjpegDefaultDCLuma, false)
	}
	if t.DC[1] == nil {
		t.DC[1] = BuildHuffmanTable(mjpegDefaultDCChroma, false)
	}
	if t.AC[0] == nil {
		t.AC[0] = BuildHuffmanTable(mjpegDefaultACLuma, true)
	}
	if t.AC[1] == nil {
		t.AC[1] = BuildHuffmanTable(mjpegDefaultACChroma, true)
	}
}

// QuantizationTables holds the four optional 64-entry tables,
// stored in zigzag order exactly as read from DQT.
type QuantizationTables struct {
	Tables [4]*[64]uint16
}

// AppInfo is the decoded content of an APP0/APP14 segment relevant to
// decoding; other APPn/APP segments carry no
// actionable fields and are represented by the zero value.
type AppInfo struct {
	IsMJPEG             bool
	HasAdobeTransform   bool
	AdobeColorTransform uint8
}

// ParseSOF parses an SOFn segment payload (length bytes already
// consumed by the caller) and returns the frame it describes. marker
// is the raw SOFn marker byte, used to classify the coding process
// and reject unsupported variants.
func ParseSOF(marker byte, data []byte) (*FrameInfo, error) {
	switch marker {
	case markerSOF3:
		return nil, Unsupported("lossless JPEG (SOF3)")
	case markerSOF5, markerSOF6, markerSOF7:
		return nil, Unsupported("differential/hierarchical JPEG (SOF5-7)")
	case markerSOF9, markerSOF10, markerSOF11:
		return nil, Unsupported("arithmetic-entropy-coded JPEG (SOF9-11)")
	case markerSOF13, markerSOF14, markerSOF15:
		return nil, Unsupported("differential/hierarchical arithmetic JPEG (SOF13-15)")
	case markerJPG:
		return nil, Unsupported("extension JPG marker (SOF8)")
	case markerSOF0, markerSOF1, markerSOF2:
		// supported
	default:
		return nil, Malformattedf("not a SOF marker: %#02x", marker)
	}

	if len(data) < 6 {
		return nil, Malformatted("SOF segment too short")
	}

	precision := int(data[0])
	if precision != 8 {
		return nil, Unsupported("sample precision other than 8 bits")
	}

	height := int(data[1])<<8 | int(data[2])
	width := int(data[3])<<8 | int(data[4])
	numComponents := int(data[5])

	if height == 0 {
		return nil, Unsupported("DNL-deferred frame height")
	}
	if width == 0 {
		return nil, Malformatted("frame width cannot be zero")
	}
	if numComponents != 1 && numComponents != 3 && numComponents != 4 {
		return nil, Unsupported("component count other than 1, 3, or 4")
	}

	frame := &FrameInfo{
		Precision:     precision,
		PixelSize:     Size{Width: width, Height: height},
		Differential:  false,
		EntropyCoding: Huffman,
		Components:    make([]Component, numComponents),
	}
	switch marker {
	case markerSOF0:
		frame.CodingProcess = Baseline
	case markerSOF1:
		frame.CodingProcess = SequentialExtended
	case markerSOF2:
		frame.CodingProcess = Progressive
	}

	pos := 6
	for i := 0; i < numComponents; i++ {
		if pos+3 > len(data) {
			return nil, Malformatted("SOF segment too short for components")
		}
		id := int(data[pos])
		h := int(data[pos+1] >> 4)
		v := int(data[pos+1] & 0x0F)
		qIdx := int(data[pos+2])
		pos += 3

		if h < 1 || h > 4 || v < 1 || v > 4 {
			return nil, Malformatted("sampling factor out of range 1..4")
		}
		if qIdx > 3 {
			return nil, Malformatted("quantization table index out of range")
		}
		frame.Components[i] = Component{
			ID:                       id,
			HorizontalSamplingFactor: h,
			VerticalSamplingFactor:   v,
			QuantizationTableIndex:   qIdx,
		}
		if h > frame.maxH {
			frame.maxH = h
		}
		if v > frame.maxV {
			frame.maxV = v
		}
	}

	frame.MCUSize = Size{Width: frame.maxH * 8, Height: frame.maxV * 8}
	frame.SizeInMCU = Size{
		Width:  (width + frame.MCUSize.Width - 1) / frame.MCUSize.Width,
		Height: (height + frame.MCUSize.Height - 1) / frame.MCUSize.Height,
	}

	for i := range frame.Components {
		c := &frame.Components[i]
		c.SizeInBlocks = Size{
			Width:  frame.SizeInMCU.Width * c.HorizontalSamplingFactor,
			Height: frame.SizeInMCU.Height * c.VerticalSamplingFactor,
		}
		c.ActualSizeInBlocks = Size{
			Width:  (width*c.HorizontalSamplingFactor + frame.MCUSize.Width - 1) / frame.MCUSize.Width,
			Height: (height*c.VerticalSamplingFactor + frame.MCUSize.Height - 1) / frame.MCUSize.Height,
		}
	}

	return frame, nil
}

// ParseSOS parses an SOS segment payload against an already-installed
// frame.
func ParseSOS(frame *FrameInfo, data []byte) (*ScanInfo, error) {
	if len(data) < 1 {
		return nil, Malformatted("SOS segment too short")
	}
	ns := int(data[0])
	if ns < 1 || ns > 4 {
		return nil, Malformatted("scan component count out of range 1..4")
	}
	if ns > len(frame.Components) {
		return nil, Malformatted("scan references more components than the frame has")
	}

	info := &ScanInfo{
		ComponentIndices: make([]int, ns),
		DCTableIndices:   make([]int, ns),
		ACTableIndices:   make([]int, ns),
	}

	pos := 1
	for i := 0; i < ns; i++ {
		if pos+2 > len(data) {
			return nil, Malformatted("SOS segment too short for components")
		}
		id := int(data[pos])
		idx := frame.componentByID(id)
		if idx < 0 {
			return nil, Malformatted("SOS references unknown component id")
		}
		info.ComponentIndices[i] = idx
		info.DCTableIndices[i] = int(data[pos+1] >> 4)
		info.ACTableIndices[i] = int(data[pos+1] & 0x0F)
		if info.DCTableIndices[i] > 3 || info.ACTableIndices[i] > 3 {
			return nil, Malformatted("huffman table index out of range")
		}
		pos += 2
	}

	if pos+3 > len(data) {
		return nil, Malformatted("SOS segment too short for spectral selection")
	}
	ss := int(data[pos])
	se := int(data[pos+1])
	ah := int(data[pos+2] >> 4)
	al := int(data[pos+2] & 0x0F)

	if frame.CodingProcess == Progressive {
		if ss < 0 || ss > 63 || se < ss || se > 63 {
			return nil, Malformatted("spectral selection out of range")
		}
		if ss == 0 && se != 0 {
			return nil, Malformatted("DC-only scan must have Se=0")
		}
		if ah > 13 || al > 13 {
			return nil, Malformatted("successive approximation nibble out of range")
		}
		if ah != 0 && ah != al+1 {
			return nil, Malformatted("successive approximation Ah must be 0 or Al+1")
		}
	} else {
		// Section B.2.3: sequential scans always cover the full band
		// with no successive approximation.
		if ss != 0 || se != 63 {
			return nil, Malformatted("sequential scan must select the full spectral band")
		}
		if ah != 0 || al != 0 {
			return nil, Malformatted("sequential scan cannot use successive approximation")
		}
	}

	info.SpectralStart = ss
	info.SpectralEnd = se
	info.SuccessiveApproxHigh = ah
	info.SuccessiveApproxLow = al
	return info, nil
}

// ParseDHT parses one or more Huffman tables out of a DHT segment
// payload, installing each into tables.
func ParseDHT(data []byte, tables *HuffmanTables) error {
	pos := 0
	for pos < len(data) {
		class := (data[pos] >> 4) & 0x0F
		id := data[pos] & 0x0F
		pos++
		if class > 1 || id > 3 {
			return Malformatted("invalid huffman table class/index")
		}
		if pos+16 > len(data) {
			return Malformatted("DHT segment too short")
		}
		var spec huffmanSpec
		total := 0
		for i := 1; i <= 16; i++ {
			spec.counts[i] = data[pos+i-1]
			total += int(spec.counts[i])
		}
		pos += 16
		if pos+total > len(data) {
			return Malformatted("DHT segment too short for values")
		}
		spec.values = append([]uint8(nil), data[pos:pos+total]...)
		pos += total

		isAC := class == 1
		table := BuildHuffmanTable(spec, isAC)
		if isAC {
			tables.AC[id] = table
		} else {
			tables.DC[id] = table
		}
	}
	return nil
}

// ParseDQT parses one or more quantization tables out of a DQT
// segment payload, installing each into tables.
func ParseDQT(data []byte, tables *QuantizationTables) error {
	pos := 0
	for pos < len(data) {
		precision := (data[pos] >> 4) & 0x0F
		id := data[pos] & 0x0F
		pos++
		if id > 3 {
			return Malformatted("invalid quantization table index")
		}
		var tbl [64]uint16
		if precision == 0 {
			if pos+64 > len(data) {
				return Malformatted("DQT segment too short")
			}
			for i := 0; i < 64; i++ {
				tbl[i] = uint16(data[pos+i])
			}
			pos += 64
		} else {
			if pos+128 > len(data) {
				return Malformatted("DQT segment too short")
			}
			for i := 0; i < 64; i++ {
				tbl[i] = uint16(data[pos+i*2])<<8 | uint16(data[pos+i*2+1])
			}
			pos += 128
		}
		tables.Tables[id] = &tbl
	}
	return nil
}

// ParseDRI parses the 2-byte restart interval.
func ParseDRI(data []byte) (int, error) {
	if len(data) != 2 {
		return 0, Malformatted("DRI segment must be exactly 2 bytes")
	}
	return int(data[0])<<8 | int(data[1]), nil
}

var (
	jfifTag  = [5]byte{'J', 'F', 'I', 'F', 0}
	avi1Tag  = [4]byte{'A', 'V', 'I', '1'}
	adobeTag = [5]byte{'A', 'd', 'o', 'b', 'e'}
)

// ParseAPP parses an APPn segment payload, extracting the handful of
// fields that affect decoding.
func ParseAPP(marker byte, data []byte) (AppInfo, error) {
	var info AppInfo
	switch marker {
	case markerAPP0:
		if len(data) >= 4 && string(data[:4]) == string(avi1Tag[:]) {
			info.IsMJPEG = true
		}
		// JFIF tag carries no fields this decoder needs beyond its presence.
	case markerAPP14:
		if len(data) >= 12 && string(data[:5]) == string(adobeTag[:]) {
			info.HasAdobeTransform = true
			info.AdobeColorTransform = data[11]
		}
	}
	return info, nil
}

// ParseCOM returns a comment segment's opaque payload unchanged; the
// decoder does not interpret comments.
func ParseCOM(data []byte) []byte {
	return data
}
