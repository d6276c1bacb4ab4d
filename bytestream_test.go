package jpegstream

import (
	"sync"
	"testing"
)

func TestByteStreamReadBlocksUntilWritten(t *testing.T) {
	w, r := NewByteStream(16)

	done := make(chan struct{})
	var got byte
	var readErr error
	go func() {
		defer close(done)
		got, readErr = r.ReadByte(false)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := w.Write([]byte{0x7A}); err != nil {
			t.Errorf("write: %v", err)
		}
	}()
	wg.Wait()
	<-done

	if readErr != nil {
		t.Fatalf("ReadByte: %v", readErr)
	}
	if got != 0x7A {
		t.Errorf("ReadByte = %#02x, want 0x7A", got)
	}
}

func TestByteStreamEOFWithoutEnoughData(t *testing.T) {
	w, r := NewByteStream(16)
	if _, err := w.Write([]byte{0x01}); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.WriteEOF()

	buf := make([]byte, 4)
	_, err := r.Read(buf, true, false)
	if err == nil {
		t.Fatal("expected an error reading past EOF")
	}
	se, ok := err.(*StreamStatusError)
	if !ok {
		t.Fatalf("error type = %T, want *StreamStatusError", err)
	}
	if se.Kind != StatusEOF {
		t.Errorf("status kind = %v, want StatusEOF", se.Kind)
	}
}

func TestByteStreamAbortUnblocksReader(t *testing.T) {
	w, r := NewByteStream(16)

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 4)
		_, err := r.Read(buf, true, false)
		done <- err
	}()

	r.Abort()
	err := <-done
	if err == nil {
		t.Fatal("expected an error after abort")
	}
	if _, err := w.Write([]byte{0x00}); err != ErrReaderAborted {
		t.Errorf("Write after abort = %v, want ErrReaderAborted", err)
	}
}

func TestByteStreamRetention(t *testing.T) {
	w, r := NewByteStream(16)
	if _, err := w.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.WriteEOF()

	if _, err := r.ReadByte(true); err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	if _, err := r.ReadByte(false); err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	if _, err := r.ReadByte(true); err != nil {
		t.Fatalf("ReadByte: %v", err)
	}

	want := []byte{1, 3}
	got := r.ViewRetainedData()
	if len(got) != len(want) {
		t.Fatalf("retained = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("retained[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	if r.ProcessedLen() != 3 {
		t.Errorf("ProcessedLen = %d, want 3", r.ProcessedLen())
	}

	r.ClearRetainedData()
	if len(r.ViewRetainedData()) != 0 {
		t.Errorf("retained data not cleared")
	}
}

func TestByteStreamCloseUnreadData(t *testing.T) {
	w, r := NewByteStream(16)
	if _, err := w.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := r.ReadByte(false); err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	r.Close()

	unread := w.UnreadData()
	if len(unread) != 2 || unread[0] != 2 || unread[1] != 3 {
		t.Errorf("UnreadData = %v, want [2 3]", unread)
	}
}
