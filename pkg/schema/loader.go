// Package schema implements the versioned envelope used by every persisted
// assetvault document.
//
// Envelope Format
// ===============
//
// Current documents are written as
//
//	{ "version": <int>, "data": <payload> }
//
// where the payload is shaped by the revision named in "version". Only the
// first revision of a document kind predates the envelope: a document without
// a "version" field (a bare JSON array, or an object lacking the field) is
// read as revision 1. That fallback is a one-time compatibility shim; every
// later revision must be tagged.
//
// Migration
// =========
//
// A Loader holds an ordered list of Steps. Step i converts a revision i+1
// payload into a revision i+2 payload, so a document at revision N is brought
// to the current revision by folding Steps N-1 .. len-1 over its payload.
// Steps are pure functions over raw JSON; each revision's shape lives next to
// the Step that consumes it.
//
// Writing always uses the current revision.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/assetvault/assetvault/pkg/vaulterr"
)

// Step upgrades a payload from one revision to the next.
type Step func(payload json.RawMessage) (json.RawMessage, error)

// Loader decodes any known revision of a document into T and encodes T as
// the current revision.
type Loader[T any] struct {
	name  string
	steps []Step
}

// NewLoader builds a loader whose current revision is len(steps)+1.
//
// Parameters:
//   - name: document name used in error messages (e.g. "avatars")
//   - steps: upgrade functions, steps[0] converting revision 1 to 2
func NewLoader[T any](name string, steps ...Step) *Loader[T] {
	return &Loader[T]{name: name, steps: steps}
}

// Name returns the document name.
func (l *Loader[T]) Name() string { return l.name }

// Current returns the revision written by Encode.
func (l *Loader[T]) Current() int { return len(l.steps) + 1 }

type envelope struct {
	Version *int            `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Detect returns the revision of raw and its payload, without upgrading.
func (l *Loader[T]) Detect(raw []byte) (int, json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0, nil, vaulterr.Corrupt("decode", l.name, errors.New("empty document"))
	}

	switch trimmed[0] {
	case '[':
		return 1, json.RawMessage(trimmed), nil

	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return 0, nil, vaulterr.Corrupt("decode", l.name, err)
		}
		if env.Version == nil {
			return 1, json.RawMessage(trimmed), nil
		}
		if len(env.Data) == 0 {
			return 0, nil, vaulterr.Corrupt("decode", l.name,
				fmt.Errorf("version %d envelope has no data", *env.Version))
		}
		return *env.Version, env.Data, nil

	default:
		return 0, nil, vaulterr.Corrupt("decode", l.name, errors.New("document is neither an array nor an object"))
	}
}

// Decode reads raw at whatever revision it carries and upgrades it to the
// current revision.
//
// Returns:
//   - T: the decoded value
//   - int: the revision found on disk (callers log migrations with it)
//   - error: Corrupt when the document or any upgrade step fails, or when the
//     revision is unknown (including revisions newer than Current)
func (l *Loader[T]) Decode(raw []byte) (T, int, error) {
	var zero T

	version, payload, err := l.Detect(raw)
	if err != nil {
		return zero, 0, err
	}
	if version < 1 || version > l.Current() {
		return zero, version, vaulterr.Corrupt("decode", l.name,
			fmt.Errorf("unknown version %d (current is %d)", version, l.Current()))
	}

	for v := version; v < l.Current(); v++ {
		payload, err = l.steps[v-1](payload)
		if err != nil {
			return zero, version, vaulterr.Corrupt("decode", l.name,
				fmt.Errorf("failed to upgrade version %d to %d: %w", v, v+1, err))
		}
	}

	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return zero, version, vaulterr.Corrupt("decode", l.name, err)
	}
	return out, version, nil
}

// Encode writes v as the current revision.
func (l *Loader[T]) Encode(v T) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", l.name, err)
	}
	current := l.Current()
	out, err := json.MarshalIndent(envelope{Version: &current, Data: payload}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", l.name, err)
	}
	return out, nil
}

// ReadFile decodes the document at path. A missing file yields the zero value
// and found == false with no error.
func (l *Loader[T]) ReadFile(path string) (value T, version int, found bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return value, 0, false, nil
		}
		return value, 0, false, vaulterr.IO("read", path, err)
	}

	value, version, err = l.Decode(raw)
	if err != nil {
		var ve *vaulterr.Error
		if errors.As(err, &ve) {
			ve.Path = path
		}
		return value, version, true, err
	}
	return value, version, true, nil
}

// WriteFile encodes v and replaces path with it. The document is written to a
// sibling temporary file first and renamed into place.
func (l *Loader[T]) WriteFile(path string, v T) error {
	data, err := l.Encode(v)
	if err != nil {
		return err
	}
	return WriteAtomic(path, data)
}

// WriteAtomic writes data to path via a temporary file in the same directory.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return vaulterr.IO("mkdir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return vaulterr.IO("create", path, err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return vaulterr.IO("chmod", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return vaulterr.IO("write", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return vaulterr.IO("sync", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return vaulterr.IO("close", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return vaulterr.IO("rename", path, err)
	}
	return nil
}
