package jpegstream

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Thread hand-off wire sizes: ThreadHandoffExt records are 20
// bytes, ThreadHandoff records are 16 bytes, both a plain little-endian
// field-by-field layout.
const (
	threadHandoffExtRecordSize = 20
	threadHandoffRecordSize    = 16
)

// MarshalThreadHandoffs serializes a ThreadHandoffExt list as
// `u8 count` followed by count 20-byte little-endian records.
func MarshalThreadHandoffs(list []ThreadHandoffExt) ([]byte, error) {
	if len(list) > 0xFF {
		return nil, errors.New("jpegstream: too many thread hand-offs for a u8 count")
	}
	out := make([]byte, 1+len(list)*threadHandoffExtRecordSize)
	out[0] = byte(len(list))
	pos := 1
	for _, h := range list {
		binary.LittleEndian.PutUint16(out[pos:], h.StartScan)
		binary.LittleEndian.PutUint16(out[pos+2:], h.EndScan)
		binary.LittleEndian.PutUint16(out[pos+4:], h.MCUYStart)
		binary.LittleEndian.PutUint32(out[pos+6:], h.SegmentSize)
		out[pos+10] = h.OverhangByte
		out[pos+11] = h.NOverhangBit
		for i, dc := range h.LastDC {
			binary.LittleEndian.PutUint16(out[pos+12+i*2:], dc)
		}
		pos += threadHandoffExtRecordSize
	}
	return out, nil
}

// UnmarshalThreadHandoffs parses the wire format produced by
// MarshalThreadHandoffs.
func UnmarshalThreadHandoffs(data []byte) ([]ThreadHandoffExt, error) {
	if len(data) < 1 {
		return nil, Malformatted("thread hand-off list too short for count byte")
	}
	count := int(data[0])
	want := 1 + count*threadHandoffExtRecordSize
	if len(data) != want {
		return nil, Malformattedf("thread hand-off list has %d bytes, want %d", len(data), want)
	}
	out := make([]ThreadHandoffExt, count)
	pos := 1
	for i := range out {
		h := &out[i]
		h.StartScan = binary.LittleEndian.Uint16(data[pos:])
		h.EndScan = binary.LittleEndian.Uint16(data[pos+2:])
		h.MCUYStart = binary.LittleEndian.Uint16(data[pos+4:])
		h.SegmentSize = binary.LittleEndian.Uint32(data[pos+6:])
		h.OverhangByte = data[pos+10]
		h.NOverhangBit = data[pos+11]
		for j := range h.LastDC {
			h.LastDC[j] = binary.LittleEndian.Uint16(data[pos+12+j*2:])
		}
		pos += threadHandoffExtRecordSize
	}
	return out, nil
}

// MarshalThreadHandoff serializes the lighter single-scan variant:
// `u8 count` followed by count 16-byte little-endian records.
func MarshalThreadHandoff(list []ThreadHandoff) ([]byte, error) {
	if len(list) > 0xFF {
		return nil, errors.New("jpegstream: too many thread hand-offs for a u8 count")
	}
	out := make([]byte, 1+len(list)*threadHandoffRecordSize)
	out[0] = byte(len(list))
	pos := 1
	for _, h := range list {
		binary.LittleEndian.PutUint16(out[pos:], h.LumaYStart)
		binary.LittleEndian.PutUint32(out[pos+2:], h.SegmentSize)
		out[pos+6] = h.OverhangByte
		out[pos+7] = h.NOverhangBit
		for i, dc := range h.LastDC {
			binary.LittleEndian.PutUint16(out[pos+8+i*2:], dc)
		}
		pos += threadHandoffRecordSize
	}
	return out, nil
}

// UnmarshalThreadHandoff parses the wire format produced by
// MarshalThreadHandoff.
func UnmarshalThreadHandoff(data []byte) ([]ThreadHandoff, error) {
	if len(data) < 1 {
		return nil, Malformatted("thread hand-off list too short for count byte")
	}
	count := int(data[0])
	want := 1 + count*threadHandoffRecordSize
	if len(data) != want {
		return nil, Malformattedf("thread hand-off list has %d bytes, want %d", len(data), want)
	}
	out := make([]ThreadHandoff, count)
	pos := 1
	for i := range out {
		h := &out[i]
		h.LumaYStart = binary.LittleEndian.Uint16(data[pos:])
		h.SegmentSize = binary.LittleEndian.Uint32(data[pos+2:])
		h.OverhangByte = data[pos+6]
		h.NOverhangBit = data[pos+7]
		for j := range h.LastDC {
			h.LastDC[j] = binary.LittleEndian.Uint16(data[pos+8+j*2:])
		}
		pos += threadHandoffRecordSize
	}
	return out, nil
}
