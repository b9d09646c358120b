// Package virtgpu abstracts the host-visible buffer allocator. The
// relay only consumes the Device interface; the real virtio-gpu
// channel device lives behind it, and MemfdDevice provides the
// same-machine implementation used when the host compositor can map
// our descriptors directly.
package virtgpu

import (
	"fmt"
	"os"
)

// DRM fourcc codes for the formats the relay allocates.
const (
	FormatR8       uint32 = 0x20203852 // 'R8  '
	FormatARGB8888 uint32 = 0x34325241 // 'AR24'
)

// Query describes a requested allocation.
type Query struct {
	Width     uint32
	Height    uint32
	DRMFormat uint32
}

// Image is a host-resident buffer. File can be passed to the host
// compositor as a Wayland fd; HostSize is the full size of the
// backing object, which may exceed the visible payload.
type Image struct {
	File     *os.File
	HostSize uint64
	Offset   uint32
	Stride   uint32
}

// Close releases the image descriptor.
func (img *Image) Close() error {
	if img.File == nil {
		return nil
	}
	err := img.File.Close()
	img.File = nil
	return err
}

// Device allocates host-visible images.
type Device interface {
	// Alloc returns an image satisfying q. The caller owns the
	// image's descriptor.
	Alloc(q Query) (*Image, error)
	Close() error
}

// bytesPerPixel maps the formats Alloc accepts to their pixel size.
func bytesPerPixel(format uint32) (uint32, error) {
	switch format {
	case FormatR8:
		return 1, nil
	case FormatARGB8888:
		return 4, nil
	default:
		return 0, fmt.Errorf("virtgpu: unsupported drm format %#x", format)
	}
}
