//go:build !unix

package locindex

import "os"

// mapping holds the index file contents on platforms without mmap support.
type mapping struct {
	data   []byte
	closed bool
}

func openMapping(path string) (*mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &mapping{data: data}, nil
}

func (m *mapping) close() error {
	m.closed = true
	m.data = nil
	return nil
}
