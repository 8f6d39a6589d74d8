// internal/output/jsonl.go
// JSON Lines export of per-probe outcomes

package output

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/aspnmy/porttester/internal/models"
)

// OutcomeWriter appends one json object per probe outcome.
// Safe for concurrent use by probe goroutines.
type OutcomeWriter struct {
	encoder *json.Encoder
	writer  io.Closer
	buffer  *bufio.Writer
	written int
	mu      sync.Mutex
}

// NewOutcomeFile creates (truncating) the file and any missing directories
func NewOutcomeFile(filename string) (*OutcomeWriter, error) {
	dir := filepath.Dir(filename)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return newOutcomeWriter(file, file), nil
}

// NewOutcomeWriter wraps w. Close does not close w.
func NewOutcomeWriter(w io.Writer) *OutcomeWriter {
	return newOutcomeWriter(w, nil)
}

func newOutcomeWriter(w io.Writer, c io.Closer) *OutcomeWriter {
	buffer := bufio.NewWriterSize(w, 64*1024)
	return &OutcomeWriter{
		encoder: json.NewEncoder(buffer),
		writer:  c,
		buffer:  buffer,
	}
}

// Write writes a single outcome
func (o *OutcomeWriter) Write(outcome models.ProbeOutcome) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.encoder.Encode(outcome); err != nil {
		return err
	}
	o.written++
	return nil
}

// Written returns how many outcomes were encoded
func (o *OutcomeWriter) Written() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.written
}

// Flush flushes the buffer
func (o *OutcomeWriter) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.buffer.Flush()
}

// Close flushes and closes the underlying file, if any
func (o *OutcomeWriter) Close() error {
	err := o.Flush()
	if o.writer != nil {
		err = errors.Join(err, o.writer.Close())
	}
	return err
}
