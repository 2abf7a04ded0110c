// Raw usbfs ioctl plumbing, modeled directly on the teacher's SCSI generic
// ioctl wrapper (pkg/drive/sgio/sg.go): a fixed-layout request struct,
// built per call, passed to the kernel through a single syscall helper.
package usb

import (
	"errors"
	"unsafe"

	"github.com/dswarbrick/smart/ioctl"
	"golang.org/x/sys/unix"
)

// usbfs ioctl numbers, from <linux/usbdevice_fs.h>. Go has no cgo access to
// the kernel headers here, so the magic numbers are reproduced directly, the
// same way the teacher's sgio package hardcodes SG_IO instead of importing
// a generated constant.
const (
	usbdevfsControl          = 0xc0185500
	usbdevfsBulk             = 0xc0185502
	usbdevfsClaimInterface   = 0x8004550f
	usbdevfsReleaseInterface = 0x80045510
	usbdevfsDisconnect       = 0x5516
	usbdevfsConnect          = 0x5517
	usbdevfsResetEP          = 0x80045503
)

var ErrShortTransfer = errors.New("usb: short transfer")

// controlTransfer mirrors struct usbdevfs_ctrltransfer.
type controlTransfer struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
	_           uint16 // padding to align timeout
	Timeout     uint32
	Data        uintptr
}

// bulkTransfer mirrors struct usbdevfs_bulktransfer.
type bulkTransfer struct {
	Endpoint uint32
	Length   uint32
	Timeout  uint32
	Data     uintptr
}

// controlTransferTimeoutMillis is used for every vendor control request;
// HotSync handhelds answer GET_CONNECTION_INFO style requests promptly, so
// a short timeout is enough to distinguish "not this dialect" from a wedged
// bus.
const controlTransferTimeoutMillis = 500

// control issues one vendor/standard control transfer. The usbfs helper we
// build on (mirroring the teacher's sgio.SendCDB) surfaces only a
// success/failure error, not a separate transferred-byte count, so on
// success the full data buffer is assumed transferred.
func control(fd uintptr, reqType, req uint8, value, index uint16, data []byte) (int, error) {
	ct := controlTransfer{
		RequestType: reqType,
		Request:     req,
		Value:       value,
		Index:       index,
		Length:      uint16(len(data)),
		Timeout:     controlTransferTimeoutMillis,
	}
	if len(data) > 0 {
		ct.Data = uintptr(unsafe.Pointer(&data[0]))
	}
	if err := ioctl.Ioctl(fd, usbdevfsControl, uintptr(unsafe.Pointer(&ct))); err != nil {
		return 0, err
	}
	return len(data), nil
}

func bulkTransferIO(fd uintptr, endpoint uint8, timeoutMillis uint32, data []byte) (int, error) {
	bt := bulkTransfer{
		Endpoint: uint32(endpoint),
		Length:   uint32(len(data)),
		Timeout:  timeoutMillis,
	}
	if len(data) > 0 {
		bt.Data = uintptr(unsafe.Pointer(&data[0]))
	}
	if err := ioctl.Ioctl(fd, usbdevfsBulk, uintptr(unsafe.Pointer(&bt))); err != nil {
		return 0, err
	}
	return len(data), nil
}

func claimInterface(fd uintptr, iface int32) error {
	return ioctl.Ioctl(fd, usbdevfsClaimInterface, uintptr(unsafe.Pointer(&iface)))
}

func releaseInterface(fd uintptr, iface int32) error {
	return ioctl.Ioctl(fd, usbdevfsReleaseInterface, uintptr(unsafe.Pointer(&iface)))
}

// detachKernelDriver issues USBDEVFS_DISCONNECT for the given interface so
// claimInterface can succeed when a kernel driver (e.g. visor, a legacy
// Palm serial-over-USB driver) is already bound to it.
func detachKernelDriver(fd uintptr, iface int32) error {
	err := ioctl.Ioctl(fd, usbdevfsDisconnect, uintptr(unsafe.Pointer(&iface)))
	if errors.Is(err, unix.ENODATA) {
		return nil // nothing was bound
	}
	return err
}

func reattachKernelDriver(fd uintptr, iface int32) error {
	return ioctl.Ioctl(fd, usbdevfsConnect, uintptr(unsafe.Pointer(&iface)))
}

// unixPread reads the usbfs device node's descriptor bytes from the start
// of the file without disturbing any other file offset in use on fd.
func unixPread(fd uintptr, buf []byte) (int, error) {
	return unix.Pread(int(fd), buf, 0)
}
