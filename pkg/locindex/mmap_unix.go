//go:build unix

package locindex

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapping is a read-only view of the index file.
type mapping struct {
	data   []byte
	unmap  func([]byte) error
	closed bool
}

func openMapping(path string) (*mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		return &mapping{}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	// Queries jump around the tile arena; readahead only wastes page cache.
	if err := unix.Madvise(data, unix.MADV_RANDOM); err != nil && err != unix.EINVAL {
		unix.Munmap(data)
		return nil, err
	}
	return &mapping{data: data, unmap: unix.Munmap}, nil
}

func (m *mapping) close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.unmap != nil && m.data != nil {
		err := m.unmap(m.data)
		m.data = nil
		return err
	}
	return nil
}
