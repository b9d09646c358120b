package virtgpu

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MemfdDevice implements Device with plain memfds. It serves two
// roles: the allocation backend when the host compositor runs on the
// same kernel and can map our descriptors, and the stand-in for the
// virtio-gpu channel in tests.
type MemfdDevice struct{}

// NewMemfd returns a memfd-backed Device.
func NewMemfd() *MemfdDevice {
	return &MemfdDevice{}
}

// Alloc creates a sealed memfd of width*height*bpp bytes.
func (d *MemfdDevice) Alloc(q Query) (*Image, error) {
	bpp, err := bytesPerPixel(q.DRMFormat)
	if err != nil {
		return nil, err
	}
	stride := q.Width * bpp
	size := uint64(stride) * uint64(q.Height)
	if size == 0 {
		return nil, fmt.Errorf("virtgpu: zero-sized allocation %dx%d", q.Width, q.Height)
	}

	fd, err := unix.MemfdCreate("virtway-image", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ftruncate memfd: %w", err)
	}
	// The host maps this file; sealing the size means a misbehaving
	// peer cannot shrink it under an established mapping.
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_SEAL); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("seal memfd: %w", err)
	}

	return &Image{
		File:     os.NewFile(uintptr(fd), "virtway-image"),
		HostSize: size,
		Offset:   0,
		Stride:   stride,
	}, nil
}

func (d *MemfdDevice) Close() error { return nil }

// Mmap is a mapped file region.
type Mmap []byte

// SafeMapFile maps length bytes of f starting at pos, refusing
// mappings that would run past hostSize.
func SafeMapFile(f *os.File, length, hostSize uint64, pos uint32) (Mmap, error) {
	if uint64(pos)+length > hostSize {
		return nil, fmt.Errorf("virtgpu: mapping [%d, %d) exceeds host size %d", pos, uint64(pos)+length, hostSize)
	}
	if length == 0 {
		return nil, fmt.Errorf("virtgpu: zero-length mapping")
	}

	var m Mmap
	var mapErr error
	sc, err := f.SyscallConn()
	if err != nil {
		return nil, err
	}
	err = sc.Control(func(fd uintptr) {
		b, e := unix.Mmap(int(fd), int64(pos), int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		m, mapErr = Mmap(b), e
	})
	if err != nil {
		return nil, err
	}
	if mapErr != nil {
		return nil, fmt.Errorf("mmap: %w", mapErr)
	}
	return m, nil
}

// Unmap releases the mapping.
func (m Mmap) Unmap() error {
	if m == nil {
		return nil
	}
	return unix.Munmap(m)
}
