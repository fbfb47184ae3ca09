package fsguard

import (
	"os"

	"github.com/assetvault/assetvault/pkg/vaulterr"
)

// Scratch is a directory that is deleted on Close unless Done was called.
//
// Typical use:
//
//	s, err := fsguard.NewScratch(root, dir)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	// ... populate s.Path() ...
//	s.Done()
type Scratch struct {
	root string
	path string
	done bool
}

// NewScratch creates path (which must live under root) and returns a guard
// for it.
func NewScratch(root, path string) (*Scratch, error) {
	if err := AssertContained(root, path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, vaulterr.IO("mkdir", path, err)
	}
	return &Scratch{root: root, path: path}, nil
}

// Path returns the guarded directory.
func (s *Scratch) Path() string { return s.path }

// Done marks the directory as complete so Close keeps it.
func (s *Scratch) Done() { s.done = true }

// Close removes the directory unless Done was called. Safe to call twice.
func (s *Scratch) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return RemoveAll(s.root, s.path)
}
