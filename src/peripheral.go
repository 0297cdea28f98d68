package rfmorse

/*------------------------------------------------------------------
 *
 * Purpose:   	Map Broadcom peripheral register blocks into user space.
 *
 * Description:	The ARM physical address of the peripheral window moved
 *		between SoC generations (0x20000000 on BCM2835,
 *		0x3F000000 on BCM2836/7, 0xFE000000 on BCM2711).
 *		The firmware publishes it in the device tree so we read
 *		it from there rather than guessing from the board model.
 *
 *		The DMA engine never sees these addresses.  It uses the
 *		VideoCore bus view where the same window always starts
 *		at PeripheralBusBase.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

const (
	PeripheralBusBase = 0x7E000000

	BCM2835PeripheralBase = 0x20000000

	CM_BASE   = 0x00101000
	CM_LEN    = 0x1660
	GPIO_BASE = 0x00200000
	GPIO_LEN  = 0xB4
	PCM_BASE  = 0x00203000
	PCM_LEN   = 0x24
	DMA_BASE  = 0x00007000
	DMA_LEN   = 0x1000

	pageSize = 4096
)

const socRangesPath = "/proc/device-tree/soc/ranges"

// Peripherals hands out mappings of the peripheral register blocks.
type Peripherals struct {
	mem      *os.File
	physBase uint32
	logger   *log.Logger
	mapped   []*MappedRegisters
}

// OpenPeripherals opens /dev/mem.  A physBase of zero means discover it.
func OpenPeripherals(physBase uint32, logger *log.Logger) (*Peripherals, error) {
	if physBase == 0 {
		physBase = DiscoverPeripheralBase(socRangesPath)
	}

	var f, err = os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: /dev/mem: %w (are you root?)", ErrHardwareAccess, err)
	}

	logger.Debug("peripherals", "phys_base", fmt.Sprintf("%08X", physBase))

	return &Peripherals{mem: f, physBase: physBase, logger: logger}, nil
}

// DiscoverPeripheralBase reads the peripheral base from a device tree ranges file.
//
// Each range is <child-address parent-address size>.  The parent address is
// one cell on older SoCs and two cells on the BCM2711, where the first cell
// of the one-cell position reads as zero.
func DiscoverPeripheralBase(path string) uint32 {
	var b, err = os.ReadFile(path) //nolint:gosec
	if err != nil || len(b) < 8 {
		return BCM2835PeripheralBase
	}

	var base = binary.BigEndian.Uint32(b[4:8])
	if base == 0 && len(b) >= 12 {
		base = binary.BigEndian.Uint32(b[8:12])
	}

	if base == 0 {
		return BCM2835PeripheralBase
	}

	return base
}

// Map maps length bytes of the block at offset from the peripheral base.
func (p *Peripherals) Map(offset uint32, length int) (*MappedRegisters, error) {
	return p.mapPhysical(p.physBase+offset, length)
}

func (p *Peripherals) mapPhysical(addr uint32, length int) (*MappedRegisters, error) {
	if p.mem == nil {
		return nil, errors.New("peripherals closed")
	}

	// mmap wants a page aligned offset.
	var pageOffset = int(addr % pageSize)
	var size = roundUp(length+pageOffset, pageSize)

	var raw, err = unix.Mmap(int(p.mem.Fd()), int64(addr)-int64(pageOffset), size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %08X: %w", ErrHardwareAccess, addr, err)
	}

	p.logger.Debug("mapped", "phys", fmt.Sprintf("%08X", addr), "len", size)

	var m = newMappedRegisters(raw, raw[pageOffset:pageOffset+length])
	p.mapped = append(p.mapped, m)

	return m, nil
}

// Close unmaps everything handed out by Map and closes /dev/mem.
func (p *Peripherals) Close() error {
	var errs []error

	for _, m := range p.mapped {
		errs = append(errs, m.Close())
	}

	p.mapped = nil

	if p.mem != nil {
		errs = append(errs, p.mem.Close())
		p.mem = nil
	}

	return errors.Join(errs...)
}

func roundUp(n int, to int) int {
	return ((n + to - 1) / to) * to
}
