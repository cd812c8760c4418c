package notes

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// MaxNoteBytes is the longest note [Store.Add] accepts, after whitespace
// folding.
const MaxNoteBytes = 1 << 20

var (
	// ErrEmptyNote is returned by [Store.Add] for a blank message.
	ErrEmptyNote = errors.New("notes: message must not be empty")

	// ErrNoteTooLong is returned by [Store.Add] for notes over MaxNoteBytes.
	ErrNoteTooLong = fmt.Errorf("notes: message longer than %d bytes", MaxNoteBytes)
)

// Store keeps notes in insertion order, optionally persisted to a text file
// with one note per line. The file is only ever appended to.
//
// All methods are safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	path  string
	notes []string
}

// NewMemoryStore returns a Store that lives only in memory.
func NewMemoryStore() *Store {
	return &Store{}
}

// OpenStore returns a Store backed by the file at path, loading any notes it
// already holds. A missing file is created on the first Add.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notes: open %s: %w", path, err)
	}
	defer f.Close()

	// Lines are read whole, whatever their length: a file written before a
	// cap change must still load.
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if note := strings.TrimSpace(line); note != "" {
			s.notes = append(s.notes, note)
		}
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return nil, fmt.Errorf("notes: read %s: %w", path, err)
		}
	}
}

// Add appends a note. Line breaks inside the message are folded into spaces
// so the note stays one line in the backing file.
func (s *Store) Add(message string) error {
	note := strings.Join(strings.Fields(message), " ")
	if note == "" {
		return ErrEmptyNote
	}
	if len(note) > MaxNoteBytes {
		return ErrNoteTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("notes: open %s: %w", s.path, err)
		}
		if _, err := f.WriteString(note + "\n"); err != nil {
			_ = f.Close()
			return fmt.Errorf("notes: append %s: %w", s.path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("notes: close %s: %w", s.path, err)
		}
	}
	s.notes = append(s.notes, note)
	return nil
}

// All returns a copy of every note, oldest first.
func (s *Store) All() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.notes))
	copy(out, s.notes)
	return out
}

// Latest returns the newest note.
func (s *Store) Latest() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notes) == 0 {
		return "", false
	}
	return s.notes[len(s.notes)-1], true
}
