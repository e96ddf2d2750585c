// SPDX-License-Identifier: MPL-2.0

package bundle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

// DispatcherUnit is the identifier of the runtime preamble: the executable
// that serves as the sandbox entrypoint.
const DispatcherUnit = "confinity.Dispatcher"

// ErrUnitNotFound is returned by a Locator that cannot resolve an identifier.
var ErrUnitNotFound = errors.New("code unit not found")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*(\.[A-Za-z_][A-Za-z0-9_-]*)*$`)

type (
	// Locator resolves a code unit identifier to its compiled representation.
	Locator interface {
		Locate(id string) (io.ReadCloser, fs.FileMode, error)
	}

	// FSLocator locates units at their package-mirroring path inside an fs.FS.
	FSLocator struct {
		FS fs.FS
	}

	// MapLocator serves generated units from memory.
	MapLocator map[string][]byte

	// ExecutableLocator serves the dispatcher unit from an executable file,
	// by default the running process. The executable must be built for the
	// sandbox platform.
	ExecutableLocator struct {
		// Path overrides os.Executable().
		Path string
	}

	// Chain tries each Locator in order and returns the first hit.
	Chain []Locator
)

// ValidIdentifier reports whether id is a dotted identifier usable as a unit name.
func ValidIdentifier(id string) bool {
	return identifierPattern.MatchString(id)
}

// UnitPath returns the slash-separated package-mirroring path of id.
func UnitPath(id string) (string, error) {
	if !ValidIdentifier(id) {
		return "", fmt.Errorf("invalid unit identifier %q", id)
	}
	return strings.ReplaceAll(id, ".", "/"), nil
}

func (l FSLocator) Locate(id string) (io.ReadCloser, fs.FileMode, error) {
	p, err := UnitPath(id)
	if err != nil {
		return nil, 0, err
	}
	f, err := l.FS.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrUnitNotFound, id)
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: %s is a directory", ErrUnitNotFound, id)
	}
	return f, info.Mode().Perm(), nil
}

func (l MapLocator) Locate(id string) (io.ReadCloser, fs.FileMode, error) {
	data, ok := l[id]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnitNotFound, id)
	}
	return io.NopCloser(bytes.NewReader(data)), 0o644, nil
}

func (l ExecutableLocator) Locate(id string) (io.ReadCloser, fs.FileMode, error) {
	if id != DispatcherUnit {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnitNotFound, id)
	}
	path := l.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, 0, fmt.Errorf("resolve executable: %w", err)
		}
		path = exe
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	return f, 0o755, nil
}

func (c Chain) Locate(id string) (io.ReadCloser, fs.FileMode, error) {
	for _, l := range c {
		rc, mode, err := l.Locate(id)
		if err == nil {
			return rc, mode, nil
		}
		if !errors.Is(err, ErrUnitNotFound) {
			return nil, 0, err
		}
	}
	return nil, 0, fmt.Errorf("%w: %s", ErrUnitNotFound, id)
}
