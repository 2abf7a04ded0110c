// Package usb implements the HotSync USB transport: device discovery
// against a built-in (vendor, product) table, kernel-driver detach and
// interface claiming, vendor control requests used to size the bulk
// endpoints, and a fallback endpoint scan for devices that don't answer
// the vendor requests. It is structured after the teacher's drive package
// (pkg/drive/drive_nix.go, pkg/drive/scsi_nix.go): open a device node,
// probe it to pick an implementation strategy, wrap the result behind a
// small interface.
package usb

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Dialect distinguishes the vendor control-request flavor a handheld's USB
// bridge chip speaks. Most Palm OS 4/5 devices answer the "visor" vendor
// requests; some early Sony Clié models need a slightly different request
// layout, and a few devices accept no vendor requests at all and must be
// driven purely by bulk endpoint discovery.
type Dialect uint8

const (
	DialectGeneric Dialect = iota
	DialectSonyClie
	DialectNone
)

// Stack names the HotSync protocol stack a device's bulk endpoints carry:
// PADP-framed SLP, or raw NetSync.
type Stack uint8

const (
	StackPADP Stack = iota
	StackNetSync
)

// DeviceInfo describes one entry of the built-in (vendor, product) table.
type DeviceInfo struct {
	VendorID  uint16
	ProductID uint16
	Name      string
	Dialect   Dialect
	Stack     Stack
}

func deviceKey(vid, pid uint16) uint32 {
	return uint32(vid)<<16 | uint32(pid)
}

// knownDevices is the built-in table of USB (vid, pid) pairs known to
// speak one of the HotSync USB dialects. Discover marks unlisted devices
// with Known=false, and the hotsyncd and hotsyncctl loops only open Known
// candidates, so an unlisted device is not synced.
var knownDevices = map[uint32]DeviceInfo{
	deviceKey(0x082d, 0x0100): {0x082d, 0x0100, "Handspring Visor", DialectGeneric, StackPADP},
	deviceKey(0x082d, 0x0200): {0x082d, 0x0200, "Handspring Treo 600", DialectGeneric, StackPADP},
	deviceKey(0x054c, 0x0038): {0x054c, 0x0038, "Sony Clié S320", DialectSonyClie, StackPADP},
	deviceKey(0x054c, 0x0066): {0x054c, 0x0066, "Sony Clié NX60", DialectSonyClie, StackNetSync},
	deviceKey(0x0830, 0x0060): {0x0830, 0x0060, "Palm m500", DialectGeneric, StackPADP},
	deviceKey(0x0830, 0x0061): {0x0830, 0x0061, "Palm Tungsten T", DialectGeneric, StackNetSync},
	deviceKey(0x0830, 0x0070): {0x0830, 0x0070, "Palm Zire 72", DialectGeneric, StackNetSync},
}

// Lookup reports the built-in table entry for a (vid, pid) pair, if any.
func Lookup(vid, pid uint16) (DeviceInfo, bool) {
	info, ok := knownDevices[deviceKey(vid, pid)]
	return info, ok
}

// Candidate is one USB device node discovered under /dev/bus/usb that
// matches, or might match, a HotSync handheld.
type Candidate struct {
	Path      string
	VendorID  uint16
	ProductID uint16
	Info      DeviceInfo
	Known     bool
}

// Discover walks /dev/bus/usb (the Linux usbfs device tree) and returns
// every node whose descriptor can be read, annotated with the built-in
// table entry when one matches.
func Discover(root string) ([]Candidate, error) {
	if root == "" {
		root = "/dev/bus/usb"
	}
	var out []Candidate
	busDirs, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("usb: read %s: %w", root, err)
	}
	for _, bus := range busDirs {
		busPath := filepath.Join(root, bus.Name())
		devFiles, err := os.ReadDir(busPath)
		if err != nil {
			continue
		}
		for _, dev := range devFiles {
			path := filepath.Join(busPath, dev.Name())
			vid, pid, err := readDescriptorIDs(path)
			if err != nil {
				continue
			}
			info, known := Lookup(vid, pid)
			out = append(out, Candidate{Path: path, VendorID: vid, ProductID: pid, Info: info, Known: known})
		}
	}
	return out, nil
}

// readDescriptorIDs reads the first 18 bytes of the usbfs device node,
// which is always the device descriptor per the USB 2.0 spec, and pulls
// the vendor/product ID fields out of it (offsets 8 and 10).
func readDescriptorIDs(path string) (vid, pid uint16, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	buf := make([]byte, 18)
	if _, err := f.Read(buf); err != nil {
		return 0, 0, err
	}
	vid = uint16(buf[8]) | uint16(buf[9])<<8
	pid = uint16(buf[10]) | uint16(buf[11])<<8
	return vid, pid, nil
}

// Device is an opened, claimed USB handheld endpoint, ready to carry
// either PADP/SLP framing or raw NetSync framing over its bulk pipe.
type Device struct {
	f          *os.File
	iface      int32
	inEP       uint8
	outEP      uint8
	detached   bool
	logger     *log.Logger
	Info       DeviceInfo
}

const (
	// BulkPacketSize is the endpoint size HotSync USB bridges use
	// regardless of dialect (spec.md §4.3).
	BulkPacketSize = 64

	bulkTimeoutMillis = 5000
)

// Open claims a device node for exclusive use: it opens the usbfs node,
// detaches any bound kernel driver, claims the interface, and resolves the
// bulk IN/OUT endpoint pair either from the vendor control requests of the
// entry's dialect or, when those resolve nothing, by scanning the interface
// descriptor (the fallback path).
func Open(c Candidate, logger *log.Logger) (*Device, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "usb: ", log.LstdFlags)
	}
	f, err := os.OpenFile(c.Path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("usb: open %s: %w", c.Path, err)
	}

	d := &Device{f: f, iface: 0, logger: logger, Info: c.Info}

	if err := detachKernelDriver(f.Fd(), d.iface); err != nil {
		logger.Printf("detach kernel driver on %s: %v (continuing)", c.Path, err)
	} else {
		d.detached = true
	}

	if err := claimInterface(f.Fd(), d.iface); err != nil {
		f.Close()
		return nil, fmt.Errorf("usb: claim interface on %s: %w", c.Path, err)
	}

	in, out, err := resolveEndpoints(f.Fd(), c.Info)
	if err != nil {
		releaseInterface(f.Fd(), d.iface)
		f.Close()
		return nil, fmt.Errorf("usb: resolve endpoints on %s: %w", c.Path, err)
	}
	d.inEP, d.outEP = in, out
	return d, nil
}

// Vendor control request codes used by the generic dialect (spec.md
// §4.3 item 3), plus the two standard requests the early Sony Clié
// dialect issues instead.
const (
	reqGetNumBytesAvailable = 0x01
	reqGetConnectionInfo    = 0x03
	reqGetExtConnectionInfo = 0x04

	reqStdGetConfiguration = 0x08 // USB 2.0 standard request, used by DialectSonyClie
	reqStdGetInterface     = 0x0A

	ctrlReqTypeVendorIn    = 0xC0 // device-to-host, vendor, device recipient
	ctrlReqTypeStandardIn  = 0x80 // device-to-host, standard, device recipient
	ctrlReqTypeStandardIfc = 0x81 // device-to-host, standard, interface recipient

	hotSyncPortTag      = "cnys" // GET_EXT_CONNECTION_INFO port-function tag for HotSync
	functionTypeHotSync = 2      // GET_CONNECTION_INFO function-type byte for HotSync

	// maxCandidateOutEndpoints bounds the "try every OUT endpoint" search
	// in §4.3 item 3 to the handful of OUT endpoint numbers HotSync
	// bridge chips are ever enumerated with.
	maxCandidateOutEndpoints = 4
)

// extConnectionPort is one port entry from a parsed GET_EXT_CONNECTION_INFO
// response: its four-character function tag and resolved endpoint
// number(s).
type extConnectionPort struct {
	Tag    string
	InNum  uint8
	OutNum uint8
}

// parseExtConnectionInfo decodes a GET_EXT_CONNECTION_INFO response body.
// Layout: 1 byte port count, 1 byte hasDifferentEndpoints flag, then per
// port either {4-byte tag, 1-byte port number} (shared numbering) or
// {4-byte tag, 1-byte in number, 1-byte out number} (distinct numbering).
func parseExtConnectionInfo(buf []byte) ([]extConnectionPort, bool) {
	if len(buf) < 2 {
		return nil, false
	}
	numPorts := int(buf[0])
	hasDifferentEndpoints := buf[1] != 0
	portSize := 5
	if hasDifferentEndpoints {
		portSize = 6
	}
	off := 2
	ports := make([]extConnectionPort, 0, numPorts)
	for i := 0; i < numPorts; i++ {
		if off+portSize > len(buf) {
			break
		}
		tag := string(buf[off : off+4])
		if hasDifferentEndpoints {
			ports = append(ports, extConnectionPort{Tag: tag, InNum: buf[off+4], OutNum: buf[off+5]})
		} else {
			n := buf[off+4]
			ports = append(ports, extConnectionPort{Tag: tag, InNum: n, OutNum: n})
		}
		off += portSize
	}
	return ports, hasDifferentEndpoints
}

// parseConnectionInfo decodes a GET_CONNECTION_INFO response body: 1 byte
// port count, then per port {1-byte function type, 1-byte port number}.
// It returns the port number of the first HOT_SYNC-typed port.
func parseConnectionInfo(buf []byte) (portNumber uint8, ok bool) {
	if len(buf) < 1 {
		return 0, false
	}
	numPorts := int(buf[0])
	off := 1
	for i := 0; i < numPorts; i++ {
		if off+2 > len(buf) {
			break
		}
		if buf[off] == functionTypeHotSync {
			return buf[off+1], true
		}
		off += 2
	}
	return 0, false
}

// tryGenericDialect implements spec.md §4.3 item 3's "generic" dialect:
// GET_EXT_CONNECTION_INFO first, falling back to GET_CONNECTION_INFO (plus
// the GET_NUM_BYTES_AVAILABLE priming call some older devices need before
// their first bulk transfer). Each request is retried against every
// candidate OUT endpoint index until one produces a usable answer.
func tryGenericDialect(fd uintptr) (in, out uint8, ok bool) {
	for idx := uint16(0); idx < maxCandidateOutEndpoints; idx++ {
		buf := make([]byte, 64)
		if n, err := control(fd, ctrlReqTypeVendorIn, reqGetExtConnectionInfo, 0, idx, buf); err == nil {
			ports, _ := parseExtConnectionInfo(buf[:n])
			for _, p := range ports {
				if p.Tag == hotSyncPortTag {
					return 0x80 | p.InNum, p.OutNum, true
				}
			}
		}
		buf2 := make([]byte, 16)
		if n, err := control(fd, ctrlReqTypeVendorIn, reqGetConnectionInfo, 0, idx, buf2); err == nil {
			if port, found := parseConnectionInfo(buf2[:n]); found {
				avail := make([]byte, 2)
				_, _ = control(fd, ctrlReqTypeVendorIn, reqGetNumBytesAvailable, 0, idx, avail)
				return 0x80 | port, port, true
			}
		}
	}
	return 0, 0, false
}

// tryEarlyClieDialect implements spec.md §4.3 item 3's "early-Sony-Clié"
// dialect: two standard control-in requests that prime the device but
// return no explicit endpoint information, so callers always fall
// through to probeEndpoints afterward.
func tryEarlyClieDialect(fd uintptr) {
	_, _ = control(fd, ctrlReqTypeStandardIn, reqStdGetConfiguration, 0, 0, make([]byte, 1))
	_, _ = control(fd, ctrlReqTypeStandardIfc, reqStdGetInterface, 0, 0, make([]byte, 1))
}

// probeEndpoints implements the §4.3 item 4 fallback: scan the usbfs
// device node's descriptor stream (device descriptor followed by the
// active configuration's interface/endpoint descriptors, the standard
// layout usbfs returns on a raw read) for the first bulk IN and first
// bulk OUT endpoint of BulkPacketSize.
func probeEndpoints(fd uintptr) (in, out uint8, ok bool) {
	buf := make([]byte, 1024)
	n, err := unixPread(fd, buf)
	if err != nil || n <= 0 {
		return 0, 0, false
	}
	return parseBulkEndpoints(buf[:n])
}

const (
	descTypeEndpoint = 5
	epDirIn          = 0x80
	epAttrTypeMask   = 0x03
	epAttrBulk       = 0x02
)

// parseBulkEndpoints walks a raw USB descriptor buffer (as returned by a
// usbfs device-node read) looking for bulk endpoint descriptors of
// BulkPacketSize, returning the first IN and first OUT found.
func parseBulkEndpoints(desc []byte) (in, out uint8, ok bool) {
	var haveIn, haveOut bool
	for i := 0; i+2 <= len(desc); {
		length := int(desc[i])
		if length < 2 || i+length > len(desc) {
			break
		}
		if desc[i+1] == descTypeEndpoint && length >= 7 {
			addr := desc[i+2]
			attrs := desc[i+3]
			maxPacket := uint16(desc[i+4]) | uint16(desc[i+5])<<8
			if attrs&epAttrTypeMask == epAttrBulk && maxPacket == BulkPacketSize {
				if addr&epDirIn != 0 && !haveIn {
					in, haveIn = addr, true
				} else if addr&epDirIn == 0 && !haveOut {
					out, haveOut = addr, true
				}
			}
		}
		i += length
	}
	return in, out, haveIn && haveOut
}

// resolveEndpoints implements spec.md §4.3 items 3-4: try the device's
// table-declared dialect, then fall back to scanning descriptors for a
// bulk pair.
func resolveEndpoints(fd uintptr, info DeviceInfo) (in, out uint8, err error) {
	switch info.Dialect {
	case DialectGeneric:
		if in, out, ok := tryGenericDialect(fd); ok {
			return in, out, nil
		}
	case DialectSonyClie:
		tryEarlyClieDialect(fd)
	case DialectNone:
		// No vendor requests to try; go straight to inference.
	}
	if in, out, ok := probeEndpoints(fd); ok {
		return in, out, nil
	}
	return 0x81, 0x01, nil // last-resort convention: first bulk pair
}

// BytesAvailable issues the GET_NUM_BYTES_AVAILABLE vendor request some
// dialects support, used to avoid a blocking bulk read when nothing has
// been written by the handheld yet.
func (d *Device) BytesAvailable() (int, error) {
	buf := make([]byte, 2)
	if _, err := control(d.f.Fd(), ctrlReqTypeVendorIn, reqGetNumBytesAvailable, 0, 0, buf); err != nil {
		return 0, fmt.Errorf("usb: get bytes available: %w", err)
	}
	return int(buf[0])<<8 | int(buf[1]), nil
}

// Read implements io.Reader via a single bulk IN transfer; callers that
// need exactly n bytes should loop, as HotSync framing layers above this
// one already do.
func (d *Device) Read(p []byte) (int, error) {
	n, err := bulkTransferIO(d.f.Fd(), d.inEP, bulkTimeoutMillis, p)
	if err != nil {
		return n, fmt.Errorf("usb: bulk read: %w", err)
	}
	return n, nil
}

// Write implements io.Writer via one or more bulk OUT transfers, chunked
// to BulkPacketSize as required by usbfs.
func (d *Device) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > BulkPacketSize {
			chunk = chunk[:BulkPacketSize]
		}
		n, err := bulkTransferIO(d.f.Fd(), d.outEP, bulkTimeoutMillis, chunk)
		total += n
		if err != nil {
			return total, fmt.Errorf("usb: bulk write: %w", err)
		}
		p = p[n:]
	}
	return total, nil
}

// Close releases the interface, attempts to restore the previously bound
// kernel driver, and closes the device node. Per spec.md §9, the USB
// close path is known-broken on some drivers; release and reattach failures
// are logged and ignored. The error from closing the device node itself is
// returned; syncsrv logs it and carries on, so session teardown still
// proceeds to WAIT-DISCONNECT.
func (d *Device) Close() error {
	if err := releaseInterface(d.f.Fd(), d.iface); err != nil {
		d.logger.Printf("release interface: %v (ignoring)", err)
	}
	if d.detached {
		if err := reattachKernelDriver(d.f.Fd(), d.iface); err != nil {
			d.logger.Printf("reattach kernel driver: %v (ignoring)", err)
		}
	}
	return d.f.Close()
}

// WaitForDisconnect polls until the device node disappears, the signal
// the sync server's WAIT-DISCONNECT state (spec.md §4.5) uses before
// returning to DISCOVERED.
func WaitForDisconnect(path string, poll time.Duration) error {
	for {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		time.Sleep(poll)
	}
}

// ParseBusDevice splits a usbfs path like /dev/bus/usb/001/004 into its
// bus and device numbers.
func ParseBusDevice(path string) (bus, device int, err error) {
	parts := strings.Split(filepath.Clean(path), string(filepath.Separator))
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("usb: cannot parse bus/device from %q", path)
	}
	dev, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, 0, fmt.Errorf("usb: bad device number in %q: %w", path, err)
	}
	b, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, 0, fmt.Errorf("usb: bad bus number in %q: %w", path, err)
	}
	return b, dev, nil
}
