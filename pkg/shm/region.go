package shm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/5rbit/mxrc/pkg/log"
)

// Region layout constants. The first 16 bytes of every region are a magic
// number and a layout version; a reader that sees anything else must not
// interpret the payload.
const (
	Magic         uint64 = 0x4d585243534d5231 // "MXRCSMR1"
	LayoutVersion uint32 = 1
	HeaderSize           = 16

	pageSize = 4096
)

var (
	ErrNotFound        = errors.New("shared memory region not found")
	ErrSizeMismatch    = errors.New("shared memory size mismatch")
	ErrVersionMismatch = errors.New("shared memory layout version mismatch")
	ErrPermission      = errors.New("shared memory permission denied")
	ErrExhausted       = errors.New("shared memory resources exhausted")
)

// Region is a POSIX named shared-memory mapping. The RT process creates and
// unlinks it; Non-RT processes open the existing region.
type Region struct {
	name    string
	mapping []byte
	file    *os.File
	logger  zerolog.Logger
}

// shmPath resolves a POSIX shm name ("/mxrc_shm") to its tmpfs path.
func shmPath(name string) string {
	return filepath.Join("/dev/shm", strings.TrimPrefix(name, "/"))
}

// roundToPage pads a byte count to a whole page.
func roundToPage(n int) int {
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// Create opens-or-creates the named region sized for payloadSize bytes plus
// the header, truncates it, maps it read-write, zero-fills it and stamps the
// magic and layout version.
func Create(name string, payloadSize int) (*Region, error) {
	total := roundToPage(HeaderSize + payloadSize)

	f, err := os.OpenFile(shmPath(name), os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, wrapOSError("shm_open", name, err)
	}
	if err := f.Truncate(int64(total)); err != nil {
		f.Close()
		return nil, wrapOSError("ftruncate", name, err)
	}

	mapping, err := unix.Mmap(int(f.Fd()), 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, wrapOSError("mmap", name, err)
	}

	// A fresh or re-truncated region must not carry stale state.
	for i := range mapping {
		mapping[i] = 0
	}
	binary.LittleEndian.PutUint64(mapping[0:8], Magic)
	binary.LittleEndian.PutUint32(mapping[8:12], LayoutVersion)

	r := &Region{name: name, mapping: mapping, file: f, logger: log.WithRegion(name)}
	r.logger.Info().Int("size", total).Msg("Shared memory created")
	return r, nil
}

// Open maps an existing region read-write and validates the header and the
// payload size against expectPayloadSize.
func Open(name string, expectPayloadSize int) (*Region, error) {
	f, err := os.OpenFile(shmPath(name), os.O_RDWR, 0o666)
	if err != nil {
		return nil, wrapOSError("shm_open", name, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wrapOSError("fstat", name, err)
	}
	total := int(st.Size())
	if total < roundToPage(HeaderSize+expectPayloadSize) {
		f.Close()
		return nil, fmt.Errorf("%w: region %q is %d bytes, need %d",
			ErrSizeMismatch, name, total, roundToPage(HeaderSize+expectPayloadSize))
	}

	mapping, err := unix.Mmap(int(f.Fd()), 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, wrapOSError("mmap", name, err)
	}

	if got := binary.LittleEndian.Uint64(mapping[0:8]); got != Magic {
		unix.Munmap(mapping)
		f.Close()
		return nil, fmt.Errorf("%w: region %q magic %#x", ErrVersionMismatch, name, got)
	}
	if got := binary.LittleEndian.Uint32(mapping[8:12]); got != LayoutVersion {
		unix.Munmap(mapping)
		f.Close()
		return nil, fmt.Errorf("%w: region %q has layout v%d, expected v%d",
			ErrVersionMismatch, name, got, LayoutVersion)
	}

	r := &Region{name: name, mapping: mapping, file: f, logger: log.WithRegion(name)}
	r.logger.Info().Int("size", total).Msg("Shared memory opened")
	return r, nil
}

// Payload returns the mapped bytes after the header. The slice stays valid
// until Close.
func (r *Region) Payload() []byte {
	return r.mapping[HeaderSize:]
}

// Name returns the POSIX name the region was created or opened with.
func (r *Region) Name() string {
	return r.name
}

// Close unmaps the region and closes the descriptor. The region persists in
// the namespace until Unlink.
func (r *Region) Close() error {
	var first error
	if r.mapping != nil {
		if err := unix.Munmap(r.mapping); err != nil && first == nil {
			first = fmt.Errorf("munmap: %w", err)
		}
		r.mapping = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && first == nil {
			first = err
		}
		r.file = nil
	}
	return first
}

// Unlink removes the name from the namespace. Existing mappings survive
// until closed.
func Unlink(name string) error {
	if err := os.Remove(shmPath(name)); err != nil {
		return wrapOSError("shm_unlink", name, err)
	}
	log.WithRegion(name).Info().Msg("Shared memory unlinked")
	return nil
}

// wrapOSError maps errno values onto the package's failure taxonomy while
// keeping the syscall context.
func wrapOSError(op, name string, err error) error {
	var kind error
	switch {
	case errors.Is(err, os.ErrNotExist) || errors.Is(err, unix.ENOENT):
		kind = ErrNotFound
	case errors.Is(err, os.ErrPermission) || errors.Is(err, unix.EACCES):
		kind = ErrPermission
	case errors.Is(err, unix.ENOMEM) || errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EMFILE):
		kind = ErrExhausted
	default:
		return fmt.Errorf("%s %q: %w", op, name, err)
	}
	return fmt.Errorf("%w: %s %q: %v", kind, op, name, err)
}
