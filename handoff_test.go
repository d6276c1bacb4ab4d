package jpegstream

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestThreadHandoffExtRoundTrip(t *testing.T) {
	want := []ThreadHandoffExt{
		{StartScan: 0, EndScan: 0, MCUYStart: 3, SegmentSize: 1024, OverhangByte: 0xAB, NOverhangBit: 5, LastDC: [4]uint16{1, 2, 3, 4}},
		{StartScan: 1, EndScan: 2, MCUYStart: 0, SegmentSize: 0, OverhangByte: 0, NOverhangBit: 0, LastDC: [4]uint16{0, 0, 0, 0}},
	}

	data, err := MarshalThreadHandoffs(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// Length invariant: 1 + 20*n.
	if wantLen := 1 + 20*len(want); len(data) != wantLen {
		t.Errorf("marshaled length = %d, want %d", len(data), wantLen)
	}

	got, err := UnmarshalThreadHandoffs(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestThreadHandoffExtEmpty(t *testing.T) {
	data, err := MarshalThreadHandoffs(nil)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) != 1 || data[0] != 0 {
		t.Fatalf("empty marshal = %v, want [0]", data)
	}
	got, err := UnmarshalThreadHandoffs(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("unmarshal of empty list = %v, want empty", got)
	}
}

func TestThreadHandoffExtTruncated(t *testing.T) {
	if _, err := UnmarshalThreadHandoffs([]byte{2, 0, 0}); err == nil {
		t.Fatal("expected an error unmarshaling a short buffer")
	}
}

func TestThreadHandoffRoundTrip(t *testing.T) {
	want := []ThreadHandoff{
		{LumaYStart: 5, SegmentSize: 99, OverhangByte: 0x7F, NOverhangBit: 3, LastDC: [4]uint16{10, 20, 30, 40}},
	}
	data, err := MarshalThreadHandoff(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if wantLen := 1 + 16*len(want); len(data) != wantLen {
		t.Fatalf("marshaled length = %d, want %d", len(data), wantLen)
	}
	got, err := UnmarshalThreadHandoff(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestThreadHandoffBadLength(t *testing.T) {
	if _, err := UnmarshalThreadHandoff([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error unmarshaling a short buffer")
	}
}
