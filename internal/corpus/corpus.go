// Package corpus gives the solver's output somewhere to land: spec.md §6
// specifies only that "solutions are appended to fuzzer metadata" without
// naming a store. This is the minimal concrete realization of that
// contract -- an append-only, gzip-compressed JSON-line seed log -- not a
// general-purpose corpus manager. Grounded on klauspost/compress, pulled
// into the domain stack from SnellerInc-sneller's go.mod (the teacher
// itself carries no compression dependency).
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/Cache-and-Burn/ityfuzz/internal/solve"
)

// Seed is one persisted record: a solver Solution plus the identity of the
// fuzzer input it was derived from, matching §6's "(Solution, Arc<Input>)
// pairs" downstream contract (InputID stands in for the Arc<Input> handle,
// since ownership of the actual input lives entirely on the fuzzer side).
type Seed struct {
	InputID string      `json:"input_id"`
	Input   []byte      `json:"input"`
	Caller  [20]byte    `json:"caller"`
	Value   string      `json:"value"` // decimal, avoids JSON number precision loss
	Fields  []solve.Field `json:"fields"`
}

// Store appends Seed records to a gzip-compressed, newline-delimited JSON
// file. It is not safe for concurrent use from multiple goroutines (the
// engine is single-threaded per §5; concurrent fuzzers run as separate
// processes, each with its own Store).
type Store struct {
	f  *os.File
	gz *gzip.Writer
	w  *bufio.Writer
}

// Open appends to (or creates) the seed log at path.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("corpus: opening %s: %w", path, err)
	}
	gz, err := gzip.NewWriterLevel(f, gzip.BestSpeed)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("corpus: constructing gzip writer: %w", err)
	}
	return &Store{f: f, gz: gz, w: bufio.NewWriter(gz)}, nil
}

// Append writes one seed record, tagged with the originating input's id.
func (s *Store) Append(inputID string, sol solve.Solution) error {
	seed := Seed{
		InputID: inputID,
		Input:   sol.Input,
		Caller:  sol.Caller,
		Value:   valueDec(sol),
		Fields:  sol.Fields,
	}
	line, err := json.Marshal(seed)
	if err != nil {
		return fmt.Errorf("corpus: marshalling seed: %w", err)
	}
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("corpus: writing seed: %w", err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("corpus: writing seed: %w", err)
	}
	return nil
}

func valueDec(sol solve.Solution) string {
	if sol.Value == nil {
		return "0"
	}
	return sol.Value.Dec()
}

// Flush pushes buffered bytes through gzip to the file, without closing
// either (so the log stays appendable across calls within one run).
func (s *Store) Flush() error {
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("corpus: flushing writer: %w", err)
	}
	if err := s.gz.Flush(); err != nil {
		return fmt.Errorf("corpus: flushing gzip stream: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying file.
func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	if err := s.gz.Close(); err != nil {
		return fmt.Errorf("corpus: closing gzip stream: %w", err)
	}
	return s.f.Close()
}

// ReadAll decompresses and decodes every seed in the log at path; the
// tests use it to read back what Append wrote.
func ReadAll(path string) ([]Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: opening %s: %w", path, err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("corpus: constructing gzip reader: %w", err)
	}
	defer gz.Close()

	var seeds []Seed
	dec := json.NewDecoder(gz)
	for {
		var s Seed
		if err := dec.Decode(&s); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("corpus: decoding seed: %w", err)
		}
		seeds = append(seeds, s)
	}
	return seeds, nil
}
