package padp

import (
	"io"
	"log"

	"github.com/palmsync/go-hotsync/pkg/slp"
)

// DLPSocket is the fixed SLP socket pair PADP carries the DLP conversation
// on (spec.md §6: "socket IDs 3/3 for DLP").
const DLPSocket = Socket

// slpFrameIO adapts a raw byte-duplex into the FrameReader/FrameWriter
// pair padp.Conn needs, by running the SLP codec over it: incoming bytes
// are decoded into whole Frames (and anything not addressed to the DLP
// socket pair is dropped, per spec.md §4.1's "socket-ID filtering is not
// done at this layer; consumers subscribe by socket pair"), outgoing
// Frames are encoded and written whole.
type slpFrameIO struct {
	dec *slp.Decoder
	w   io.Writer
}

// NewSLPConn builds a padp.Conn carrying DLP traffic over rw: an SLP decoder
// reads frames addressed to socket 3<->3 and discards anything else, an
// SLP encoder writes frames addressed the same way.
func NewSLPConn(rw io.ReadWriter, logger *log.Logger) *Conn {
	if logger == nil {
		logger = log.Default()
	}
	fio := &slpFrameIO{dec: slp.NewDecoder(rw, logger), w: rw}
	return NewConn(fio, fio, logger)
}

func (s *slpFrameIO) Next() (slp.Frame, error) {
	for {
		f, err := s.dec.Next()
		if err != nil {
			return slp.Frame{}, err
		}
		if f.DestSocket != DLPSocket || f.SrcSocket != DLPSocket {
			continue // not ours; spec.md §4.1 leaves filtering to the consumer
		}
		return f, nil
	}
}

func (s *slpFrameIO) WriteFrame(f slp.Frame) error {
	wire, err := slp.Encode(f)
	if err != nil {
		return err
	}
	_, err = s.w.Write(wire)
	return err
}
