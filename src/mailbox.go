package rfmorse

/*------------------------------------------------------------------
 *
 * Purpose:   	Allocate DMA memory through the VideoCore mailbox.
 *
 * Description:	Ordinary process memory is neither physically
 *		contiguous nor visible to the DMA controller past the
 *		ARM caches.  The firmware will allocate from the GPU
 *		memory split for us; we then map that through /dev/mem.
 *
 *		https://github.com/raspberrypi/firmware/wiki/Mailbox-property-interface
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

const (
	MBOX_DEVICE = "/dev/vcio"

	MEM_FLAG_DIRECT           = 1 << 2
	MEM_FLAG_COHERENT         = 2 << 2
	MEM_FLAG_L1_NONALLOCATING = MEM_FLAG_DIRECT | MEM_FLAG_COHERENT

	mboxRequest         = 0x00000000
	mboxResponseSuccess = 0x80000000

	tagAllocateMemory = 0x0003000C
	tagLockMemory     = 0x0003000D
	tagUnlockMemory   = 0x0003000E
	tagReleaseMemory  = 0x0003000F

	busAliasMask = 0xC0000000
)

// _IOWR(100, 0, char *)
var ioctlMboxProperty = uintptr(3<<30 | unsafe.Sizeof(uintptr(0))<<16 | 100<<8)

// Mailbox is an Allocator backed by the firmware's GPU memory allocator.
type Mailbox struct {
	vcio   *os.File
	mem    *os.File
	flags  uint32
	logger *log.Logger
}

func OpenMailbox(logger *log.Logger) (*Mailbox, error) {
	var vcio, err = os.OpenFile(MBOX_DEVICE, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrHardwareAccess, MBOX_DEVICE, err)
	}

	mem, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		vcio.Close() //nolint:gosec

		return nil, fmt.Errorf("%w: /dev/mem: %w", ErrHardwareAccess, err)
	}

	return &Mailbox{vcio: vcio, mem: mem, flags: MEM_FLAG_L1_NONALLOCATING, logger: logger}, nil
}

// property makes a single tag property call and returns the first response word.
func (m *Mailbox) property(tag uint32, args ...uint32) (uint32, error) {
	var buf [32]uint32

	var i = 0
	buf[i] = 0 // Total size, filled in below.
	i++
	buf[i] = mboxRequest
	i++
	buf[i] = tag
	i++
	buf[i] = uint32(len(args) * 4) // Value buffer size.
	i++
	buf[i] = uint32(len(args) * 4) // Request size.
	i++
	for _, a := range args {
		buf[i] = a
		i++
	}
	buf[i] = 0 // End tag.
	i++
	buf[0] = uint32(i * 4)

	var _, _, errno = unix.Syscall(unix.SYS_IOCTL, m.vcio.Fd(), ioctlMboxProperty, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return 0, fmt.Errorf("%w: mailbox tag %08X: %w", ErrHardwareAccess, tag, errno)
	}

	if buf[1] != mboxResponseSuccess {
		return 0, fmt.Errorf("%w: mailbox tag %08X: response %08X", ErrHardwareAccess, tag, buf[1])
	}

	return buf[5], nil
}

/*-------------------------------------------------------------------
 *
 * Name:        Alloc
 *
 * Purpose:     Allocate, lock and map a page multiple of DMA memory.
 *
 * Returns:	A zeroed buffer.  Releasing it unmaps, unlocks and
 *		frees in that order.
 *
 *--------------------------------------------------------------------*/

func (m *Mailbox) Alloc(size int) (*DMABuffer, error) {
	size = roundUp(size, pageSize)

	var handle, err = m.property(tagAllocateMemory, uint32(size), pageSize, m.flags)
	if err != nil {
		return nil, err
	}

	if handle == 0 {
		return nil, fmt.Errorf("%w: mailbox allocation of %d bytes failed", ErrHardwareAccess, size)
	}

	bus, err := m.property(tagLockMemory, handle)
	if err != nil || bus == 0 {
		m.property(tagReleaseMemory, handle) //nolint:errcheck

		return nil, errors.Join(fmt.Errorf("%w: mailbox lock of handle %d failed", ErrHardwareAccess, handle), err)
	}

	raw, err := unix.Mmap(int(m.mem.Fd()), int64(bus&^busAliasMask), size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		m.property(tagUnlockMemory, handle)  //nolint:errcheck
		m.property(tagReleaseMemory, handle) //nolint:errcheck

		return nil, fmt.Errorf("%w: mapping bus %08X: %w", ErrHardwareAccess, bus, err)
	}

	clear(raw)

	m.logger.Debug("MBox alloc", "bytes", size, "bus", fmt.Sprintf("%08X", bus))

	var release = func() error {
		var errs []error

		errs = append(errs, unix.Munmap(raw))

		if _, err := m.property(tagUnlockMemory, handle); err != nil {
			errs = append(errs, err)
		}

		if _, err := m.property(tagReleaseMemory, handle); err != nil {
			errs = append(errs, err)
		}

		m.logger.Debug("MBox free", "bus", fmt.Sprintf("%08X", bus))

		return errors.Join(errs...)
	}

	return NewDMABuffer(raw, bus, release), nil
}

func (m *Mailbox) Close() error {
	return errors.Join(m.vcio.Close(), m.mem.Close())
}
