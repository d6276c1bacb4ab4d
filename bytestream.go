package jpegstream

import (
	"bytes"
	"fmt"
	"sync"
)

// ByteStream is a blocking, single-producer/single-consumer byte
// pipe. Exactly one writer and one reader share an instance; all
// state is guarded by a single mutex plus one condition variable, a
// blocking queue rather than an event loop: the two sides run on
// independent OS threads whose schedules are otherwise unrelated.
// The queue has no capacity limit, so Write never blocks.
type ByteStream struct {
	mu   sync.Mutex
	cond *sync.Cond

	q bytes.Buffer

	eofWritten   bool
	aborted      bool
	readerClosed bool

	// targetLen is the byte count the reader is currently waiting
	// for; the writer uses it to suppress needless wakeups.
	targetLen int
}

// NewByteStream constructs a reader/writer pair sharing one ByteStream.
// preloadBufSize pre-sizes the queue's internal buffer; it does not
// limit the queue or change any blocking semantics.
func NewByteStream(preloadBufSize int) (*StreamWriter, *InputView) {
	bs := &ByteStream{}
	bs.cond = sync.NewCond(&bs.mu)
	if preloadBufSize > 0 {
		bs.q.Grow(preloadBufSize)
	}
	return &StreamWriter{s: bs}, newInputView(bs)
}

// StreamStatusKind distinguishes the three ways a read/peek/consume
// can fail without an underlying I/O error.
type StreamStatusKind int

const (
	// StatusClosed: the reader has closed the stream.
	StatusClosed StreamStatusKind = iota
	// StatusAbort: the reader aborted and not enough data will ever arrive.
	StatusAbort
	// StatusEOF: the writer wrote EOF and not enough data will ever arrive.
	StatusEOF
)

// StreamStatusError is returned by ByteStream read/peek/consume when
// the requested bytes can never be satisfied.
type StreamStatusError struct {
	Kind StreamStatusKind
	// Len is the queue depth |Q| observed at the time of failure, for
	// StatusAbort/StatusEOF.
	Len int
}

func (e *StreamStatusError) Error() string {
	switch e.Kind {
	case StatusClosed:
		return "jpegstream: stream closed"
	case StatusAbort:
		return fmt.Sprintf("jpegstream: unexpected abort, %d bytes available", e.Len)
	case StatusEOF:
		return fmt.Sprintf("jpegstream: unexpected eof, %d bytes available", e.Len)
	default:
		return "jpegstream: stream error"
	}
}

// ErrReaderAborted is returned by StreamWriter.Write once the reader
// has aborted. WriteEOF does not return it.
var ErrReaderAborted = fmt.Errorf("jpegstream: reader aborted")

// ErrEofWritten is returned by StreamWriter.Write once EOF has already
// been written.
var ErrEofWritten = fmt.Errorf("jpegstream: eof already written")

// ErrNotAborted is returned by StreamWriter.WaitForClose when the
// reader has not yet aborted.
var ErrNotAborted = fmt.Errorf("jpegstream: reader has not aborted")

// validateForRead implements the validation-for-read policy. It
// must be called with mu held. needLen is the number of bytes the
// caller needs available to avoid waiting.
func (s *ByteStream) validateForRead(needLen int) error {
	if s.readerClosed {
		return &StreamStatusError{Kind: StatusClosed}
	}
	qlen := s.q.Len()
	needWait := qlen < needLen
	if needWait {
		if s.aborted {
			return &StreamStatusError{Kind: StatusAbort, Len: qlen}
		}
		if s.eofWritten {
			return &StreamStatusError{Kind: StatusEOF, Len: qlen}
		}
	}
	return nil
}

// Write appends bytes to the queue. It returns the number of bytes
// accepted, or ErrEofWritten/ErrReaderAborted.
func (s *ByteStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eofWritten {
		return 0, ErrEofWritten
	}
	if s.aborted {
		return 0, ErrReaderAborted
	}

	n, _ := s.q.Write(p)

	if s.targetLen > 0 && s.q.Len() >= s.targetLen {
		s.cond.Broadcast()
	}
	return n, nil
}

// WriteEOF marks the stream as cleanly ended. Idempotent.
func (s *ByteStream) WriteEOF() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eofWritten = true
	s.cond.Broadcast()
	return nil
}

// Abort marks the reader side as having given up. All subsequent
// writes fail with ErrReaderAborted.
func (s *ByteStream) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	s.cond.Broadcast()
}

// Close aborts and additionally marks the reader as closed, releasing
// any writer blocked in WaitForClose.
func (s *ByteStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	s.readerClosed = true
	s.cond.Broadcast()
}

// WaitForClose blocks until the reader calls Close. It returns
// ErrNotAborted immediately if the reader has not yet aborted.
func (s *ByteStream) WaitForClose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.aborted {
		return ErrNotAborted
	}
	for !s.readerClosed {
		s.cond.Wait()
	}
	return nil
}

// TakeUnreadData atomically drains and returns any bytes still queued
// after the reader has closed. Returns nil if the reader has not
// closed, or if the queue is empty.
func (s *ByteStream) TakeUnreadData() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readerClosed || s.q.Len() == 0 {
		return nil
	}
	data := make([]byte, s.q.Len())
	copy(data, s.q.Bytes())
	s.q.Reset()
	return data
}

// read is the shared implementation of Read/Peek. minLen is the
// number of bytes that must be available before returning; consume
// controls whether satisfied bytes are removed from the queue.
func (s *ByteStream) read(buf []byte, minLen int, consume bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if minLen > len(buf) {
		minLen = len(buf)
	}

	for {
		if err := s.validateForRead(minLen); err != nil {
			return 0, err
		}
		if s.q.Len() >= minLen {
			break
		}
		s.targetLen = len(buf)
		s.cond.Wait()
	}
	s.targetLen = 0

	n := len(buf)
	if s.q.Len() < n {
		n = s.q.Len()
	}
	if consume {
		copy(buf[:n], s.q.Next(n))
	} else {
		copy(buf[:n], s.q.Bytes()[:n])
	}
	return n, nil
}

// Read copies up to len(buf) bytes into buf, blocking until at least
// minLen bytes are available (or the stream can never satisfy that).
// If consume is false the bytes remain queued (a peek).
func (s *ByteStream) Read(buf []byte, minLen int, consume bool) (int, error) {
	return s.read(buf, minLen, consume)
}

// Peek is Read with consume=false.
func (s *ByteStream) Peek(buf []byte, minLen int) (int, error) {
	return s.read(buf, minLen, false)
}

// Consume blocks until n bytes are available then drops them without
// copying them anywhere.
func (s *ByteStream) Consume(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if err := s.validateForRead(n); err != nil {
			return err
		}
		if s.q.Len() >= n {
			break
		}
		s.targetLen = n
		s.cond.Wait()
	}
	s.targetLen = 0
	s.q.Next(n)
	return nil
}

// IsEmpty, Len, EofWritten, IsAborted, IsClosed are status accessors
// available to both sides of the stream.
func (s *ByteStream) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Len() == 0
}

func (s *ByteStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Len()
}

func (s *ByteStream) EofWritten() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eofWritten
}

func (s *ByteStream) IsAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

func (s *ByteStream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readerClosed
}

// StreamWriter is the producer-side handle on a ByteStream.
type StreamWriter struct {
	s *ByteStream
}

func (w *StreamWriter) Write(p []byte) (int, error) { return w.s.Write(p) }
func (w *StreamWriter) WriteEOF() error             { return w.s.WriteEOF() }
func (w *StreamWriter) WaitForClose() error         { return w.s.WaitForClose() }
func (w *StreamWriter) UnreadData() []byte          { return w.s.TakeUnreadData() }
func (w *StreamWriter) IsEmpty() bool               { return w.s.IsEmpty() }
func (w *StreamWriter) Len() int                    { return w.s.Len() }
func (w *StreamWriter) EofWritten() bool            { return w.s.EofWritten() }
func (w *StreamWriter) IsAborted() bool             { return w.s.IsAborted() }
func (w *StreamWriter) IsClosed() bool              { return w.s.IsClosed() }

// InputView is the reader-owned wrapper: a shared reference to the
// ByteStream, a retention buffer of bytes
// observed since the last clear, and a monotone processed-byte
// counter since the last reset.
type InputView struct {
	s *ByteStream

	retained     []byte
	processedLen int64
}

func newInputView(s *ByteStream) *InputView {
	return &InputView{s: s}
}

// PeekByte returns the next byte without consuming it.
func (v *InputView) PeekByte() (byte, error) {
	var b [1]byte
	if _, err := v.s.Peek(b[:], 1); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadByte consumes and returns the next byte. When keep is true the
// byte is appended to the retention buffer.
func (v *InputView) ReadByte(keep bool) (byte, error) {
	var b [1]byte
	if _, err := v.s.Read(b[:], 1, true); err != nil {
		return 0, err
	}
	v.processedLen++
	if keep {
		v.retained = append(v.retained, b[0])
	}
	return b[0], nil
}

// Read fills buf. If fill is true it blocks until buf is completely
// full (or the stream can never satisfy that); if false it returns
// whatever is queued once at least one byte is. A reader that has to
// wait is woken when len(buf) bytes are queued or the stream ends,
// aborts or closes. When keep is true, the
// bytes actually consumed are appended to the retention buffer.
func (v *InputView) Read(buf []byte, fill bool, keep bool) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	minLen := 1
	if fill {
		minLen = len(buf)
	}
	n, err := v.s.Read(buf, minLen, true)
	if n > 0 {
		v.processedLen += int64(n)
		if keep {
			v.retained = append(v.retained, buf[:n]...)
		}
	}
	return n, err
}

// Consume discards n bytes without returning them. When keep is true
// the discarded bytes are appended to the retention buffer (requiring
// a peek first since ByteStream.Consume does not return the bytes).
func (v *InputView) Consume(n int, keep bool) error {
	if n == 0 {
		return nil
	}
	if keep {
		tmp := make([]byte, n)
		if _, err := v.s.Peek(tmp, n); err != nil {
			return err
		}
		if err := v.s.Consume(n); err != nil {
			return err
		}
		v.processedLen += int64(n)
		v.retained = append(v.retained, tmp...)
		return nil
	}
	if err := v.s.Consume(n); err != nil {
		return err
	}
	v.processedLen += int64(n)
	return nil
}

// ProcessedLen returns the total bytes consumed since the last ResetProcessedLen.
func (v *InputView) ProcessedLen() int64 { return v.processedLen }

// ResetProcessedLen zeroes the processed-byte counter.
func (v *InputView) ResetProcessedLen() { v.processedLen = 0 }

// ViewRetainedData returns the bytes retained since the last clear.
func (v *InputView) ViewRetainedData() []byte { return v.retained }

// ClearRetainedData discards the retention buffer.
func (v *InputView) ClearRetainedData() { v.retained = nil }

// TrimRetainedData drops all but the last keep bytes of the retention
// buffer. Used at hand-off checkpoints, where bytes already pulled into
// the bit accumulator as lookahead must stay logged.
func (v *InputView) TrimRetainedData(keep int) {
	if keep <= 0 {
		v.retained = nil
		return
	}
	if len(v.retained) > keep {
		v.retained = append([]byte(nil), v.retained[len(v.retained)-keep:]...)
	}
}

// EofWritten, IsEOF, IsAborted, IsClosed delegate to the underlying
// stream's status.
func (v *InputView) EofWritten() bool { return v.s.EofWritten() }
func (v *InputView) IsEOF() bool      { return v.s.EofWritten() && v.s.IsEmpty() }
func (v *InputView) IsAborted() bool  { return v.s.IsAborted() }
func (v *InputView) IsClosed() bool   { return v.s.IsClosed() }

// Abort aborts the shared stream from the reader side.
func (v *InputView) Abort() { v.s.Abort() }

// Close closes the shared stream from the reader side.
func (v *InputView) Close() { v.s.Close() }
