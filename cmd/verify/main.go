package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leijurv/jpegstream"
)

type testResult struct {
	ok             bool
	skip           bool
	errMsg         string
	truncated      bool
	scanCount      int
	handoffRoundOK bool
}

func main() {
	dirPath := flag.String("dir", "/opt/jpeg_dump", "Directory containing .jpg/.jpeg files")
	limit := flag.Int("limit", 0, "Limit number of files to test (0 = no limit)")
	workers := flag.Int("workers", 16, "Number of parallel workers")
	verbose := flag.Bool("v", false, "Verbose output")
	startByte := flag.Int64("start-byte", 0, "Entropy-byte offset passed to Decode as start_byte")
	headerOnly := flag.Bool("header-only", false, "Decode headers only, skip scan data")
	allowNonOptimalEob := flag.Bool("allow-non-optimal-eobrun", false, "Relax the progressive AC first-pass optimal-EOB-run check")
	flag.Parse()

	files, err := ioutil.ReadDir(*dirPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading directory: %v\n", err)
		os.Exit(1)
	}

	var jpegFiles []string
	for _, f := range files {
		name := strings.ToLower(f.Name())
		if strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg") {
			jpegFiles = append(jpegFiles, f.Name())
		}
	}

	if *limit > 0 && len(jpegFiles) > *limit {
		jpegFiles = jpegFiles[:*limit]
	}

	fmt.Printf("Testing %d files with %d workers...\n", len(jpegFiles), *workers)

	var pass, fail, skipped, processed int64
	var handoffFail int64
	var mu sync.Mutex
	var failedFiles []string

	opts := jpegstream.DecodeOptions{AllowNonOptimalEobRun: *allowNonOptimalEob}

	jobs := make(chan string, len(jpegFiles))
	var wg sync.WaitGroup

	done := make(chan struct{})
	var statusWg sync.WaitGroup
	statusWg.Add(1)
	go func() {
		defer statusWg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n := atomic.LoadInt64(&processed)
				p := atomic.LoadInt64(&pass)
				f := atomic.LoadInt64(&fail)
				s := atomic.LoadInt64(&skipped)
				fmt.Printf("Progress: %d/%d processed (%d passed, %d failed, %d skipped)\n",
					n, len(jpegFiles), p, f, s)
			case <-done:
				return
			}
		}
	}()

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for filename := range jobs {
				result := testFile(*dirPath, filename, *startByte, *headerOnly, opts, *verbose)
				atomic.AddInt64(&processed, 1)

				if result.skip {
					atomic.AddInt64(&skipped, 1)
					continue
				}
				if result.ok {
					atomic.AddInt64(&pass, 1)
					if !result.handoffRoundOK {
						atomic.AddInt64(&handoffFail, 1)
					}
				} else {
					atomic.AddInt64(&fail, 1)
					mu.Lock()
					failedFiles = append(failedFiles, result.errMsg)
					mu.Unlock()
				}
			}
		}()
	}

	for _, f := range jpegFiles {
		jobs <- f
	}
	close(jobs)
	wg.Wait()
	close(done)
	statusWg.Wait()

	fmt.Println()
	fmt.Printf("Results: %d passed, %d failed, %d skipped\n", pass, fail, skipped)
	if handoffFail > 0 {
		fmt.Printf("Thread-handoff round-trip mismatches: %d\n", handoffFail)
	}

	if len(failedFiles) > 0 && len(failedFiles) <= 20 {
		fmt.Println("\nFailed files:")
		for _, f := range failedFiles {
			fmt.Println("  " + f)
		}
	}

	runtime.GC()
}

// testFile feeds one JPEG file through a producer/consumer ByteStream
// pair exactly as a real caller would: a writer goroutine copies
// the whole file in, while Decode runs as the reader on the other end.
func testFile(dirPath, filename string, startByte int64, headerOnly bool, opts jpegstream.DecodeOptions, verbose bool) testResult {
	result := testResult{}

	path := filepath.Join(dirPath, filename)
	data, err := ioutil.ReadFile(path)
	if err != nil {
		result.errMsg = fmt.Sprintf("%s: read error: %v", filename, err)
		return result
	}
	if len(data) < 4 {
		result.skip = true
		return result
	}

	w, r := jpegstream.NewByteStream(1 << 20)
	var writeErr error
	go func() {
		_, writeErr = w.Write(data)
		w.WriteEOF()
	}()

	jpg, err := jpegstream.DecodeWithOptions(r, startByte, headerOnly, opts)
	if writeErr != nil {
		result.errMsg = fmt.Sprintf("%s: stream write error: %v", filename, writeErr)
		return result
	}
	if err != nil {
		je, isJE := jpegstream.IsJpegError(err)
		if isJE && je.Kind == jpegstream.KindUnsupported {
			result.skip = true
			return result
		}
		result.errMsg = fmt.Sprintf("%s: decode error: %v", filename, err)
		return result
	}

	result.ok = true
	result.scanCount = len(jpg.Scans)
	result.truncated = len(jpg.Scans) > 0 && jpg.Scans[len(jpg.Scans)-1].Truncation != nil

	if jpg.Format != nil {
		result.handoffRoundOK = checkHandoffRoundTrip(jpg.Format.Handoff)
	} else {
		result.handoffRoundOK = true
	}

	if verbose {
		fmt.Printf("PASS: %s (scans=%d, truncated=%v)\n", filename, result.scanCount, result.truncated)
	}

	return result
}

// checkHandoffRoundTrip marshals and re-parses the decoded thread
// handoffs, confirming the wire format in handoff.go is bit-exact for
// real-world checkpoints rather than only the synthetic ones in
// handoff_test.go.
func checkHandoffRoundTrip(handoffs []jpegstream.ThreadHandoffExt) bool {
	if len(handoffs) == 0 {
		return true
	}
	wire, err := jpegstream.MarshalThreadHandoffs(handoffs)
	if err != nil {
		return false
	}
	back, err := jpegstream.UnmarshalThreadHandoffs(wire)
	if err != nil || len(back) != len(handoffs) {
		return false
	}
	for i := range handoffs {
		if handoffs[i] != back[i] {
			return false
		}
	}
	return true
}
