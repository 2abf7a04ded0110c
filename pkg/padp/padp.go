// Implements the HotSync Packet Assembly/Disassembly Protocol (PADP), the
// reliability layer carried inside SLP frames on socket 3<->3.
package padp

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/palmsync/go-hotsync/pkg/slp"
)

// Wire constants from spec.md §6.
const (
	Socket          = 3
	FragmentSize    = 1024
	DefaultAckTimeout = 2 * time.Second
	DefaultMaxRetries = 10
)

type flag uint8

const (
	flagFirst flag = 1 << 0
	flagLast  flag = 1 << 1
	// flagMemErr signals that the sender ran out of memory reassembling a
	// message; surfaced to callers as ErrMemory.
	flagMemErr flag = 1 << 2
)

type pktType uint8

const (
	typeData pktType = 0x01
	typeAck  pktType = 0x02
)

var (
	ErrTimeout  = errors.New("padp: ack timeout exceeded")
	ErrGap      = errors.New("padp: gap in reassembly sequence")
	ErrMemory   = errors.New("padp: peer reported a memory error")
	ErrTooLarge = errors.New("padp: fragment exceeds 1024 bytes")
)

// header is the 5-byte PADP segment header that precedes the payload
// inside an SLP body.
type header struct {
	Flags  flag
	Type   pktType
	TxID   uint8
	SizeOrOffset uint16
}

func encodeHeader(h header) []byte {
	b := make([]byte, 5)
	b[0] = uint8(h.Flags)
	b[1] = uint8(h.Type)
	b[2] = h.TxID
	b[3] = byte(h.SizeOrOffset >> 8)
	b[4] = byte(h.SizeOrOffset)
	return b
}

func decodeHeader(b []byte) (header, []byte, error) {
	if len(b) < 5 {
		return header{}, nil, fmt.Errorf("padp: short segment header (%d bytes)", len(b))
	}
	return header{
		Flags:        flag(b[0]),
		Type:         pktType(b[1]),
		TxID:         b[2],
		SizeOrOffset: uint16(b[3])<<8 | uint16(b[4]),
	}, b[5:], nil
}

// FrameReader is the subset of slp.Decoder that PADP needs; it lets tests
// substitute a synthetic frame source.
type FrameReader interface {
	Next() (slp.Frame, error)
}

// FrameWriter is the subset of an SLP-framed duplex that PADP needs to send.
type FrameWriter interface {
	WriteFrame(slp.Frame) error
}

// Conn layers PADP reliability over an SLP-framed duplex, exposing whole
// reassembled messages.
//
// Per spec.md §5, suspension happens only at explicit I/O points and the
// underlying frame source is read by a single logical consumer at a time.
// Conn honors that by reading frames through exactly one long-lived
// goroutine (started by startReader, guarded by readerOnce): every
// ack-wait in sendWithRetry and every fragment read in Receive consumes
// from the same frames channel instead of calling r.Next() directly, so a
// retransmit never spawns a second concurrent reader over r.
type Conn struct {
	r   FrameReader
	w   FrameWriter
	log *log.Logger

	ackTimeout time.Duration
	maxRetries int

	sendTxID uint8
	recvTxID uint8 // transaction ID of the message currently being reassembled

	readerOnce sync.Once
	frames     chan frameResult
}

// frameResult is one frame (or terminal read error) produced by Conn's
// single background reader goroutine.
type frameResult struct {
	frame slp.Frame
	err   error
}

// startReader launches the single goroutine that ever calls r.Next(),
// idempotently. It delivers each frame (or the terminal error that ends
// the stream) on c.frames, one at a time, blocking until the previous
// delivery has been consumed — so at most one read is ever in flight.
func (c *Conn) startReader() {
	c.readerOnce.Do(func() {
		c.frames = make(chan frameResult)
		go func() {
			for {
				f, err := c.r.Next()
				c.frames <- frameResult{frame: f, err: err}
				if err != nil {
					return
				}
			}
		}()
	})
}

// NewConn constructs a PADP connection with the default timeout and retry
// count from spec.md §6. A nil logger falls back to the standard logger.
func NewConn(r FrameReader, w FrameWriter, logger *log.Logger) *Conn {
	if logger == nil {
		logger = log.Default()
	}
	return &Conn{r: r, w: w, log: logger, ackTimeout: DefaultAckTimeout, maxRetries: DefaultMaxRetries}
}

// SetTimeouts overrides the ack timeout and retry count (used by tests and
// by callers that need a tighter budget than the HotSync defaults).
func (c *Conn) SetTimeouts(ackTimeout time.Duration, maxRetries int) {
	c.ackTimeout = ackTimeout
	c.maxRetries = maxRetries
}

// Send fragments payload into <=1024-byte segments, sending each and waiting
// for its matching ack before sending the next. A fragment that is not
// acked within the timeout is retransmitted up to maxRetries times before
// the whole message fails with ErrTimeout.
func (c *Conn) Send(payload []byte) error {
	txID := c.sendTxID
	c.sendTxID++

	if len(payload) == 0 {
		payload = []byte{}
	}
	offset := 0
	first := true
	for {
		end := offset + FragmentSize
		last := end >= len(payload)
		if last {
			end = len(payload)
		}
		chunk := payload[offset:end]

		var f flag
		var sizeOrOffset uint16
		if first {
			f |= flagFirst
			sizeOrOffset = uint16(len(payload))
		} else {
			sizeOrOffset = uint16(offset)
		}
		if last {
			f |= flagLast
		}

		seg := append(encodeHeader(header{Flags: f, Type: typeData, TxID: txID, SizeOrOffset: sizeOrOffset}), chunk...)
		if err := c.sendWithRetry(seg, txID, sizeOrOffset); err != nil {
			return err
		}

		first = false
		offset = end
		if last {
			return nil
		}
	}
}

func (c *Conn) sendWithRetry(seg []byte, txID uint8, sizeOrOffset uint16) error {
	c.startReader()
	attempt := 0
	for {
		if err := c.w.WriteFrame(slp.Frame{DestSocket: Socket, SrcSocket: Socket, Type: slp.TypePADP, Body: seg}); err != nil {
			return fmt.Errorf("padp: write: %w", err)
		}

		select {
		case res := <-c.frames:
			if err := matchAck(res, txID, sizeOrOffset); err == nil {
				return nil
			} else if attempt >= c.maxRetries {
				return ErrTimeout
			} else {
				attempt++
				c.log.Printf("padp: ack wait failed (%v), retransmitting (attempt %d/%d)", err, attempt, c.maxRetries)
			}
		case <-time.After(c.ackTimeout):
			if attempt >= c.maxRetries {
				return ErrTimeout
			}
			attempt++
			c.log.Printf("padp: ack timeout, retransmitting (attempt %d/%d)", attempt, c.maxRetries)
		}
	}
}

// matchAck reports whether a frame delivered by the background reader is
// the ack matching (txID, sizeOrOffset); any other frame, or a terminal
// read error, is treated as a failed wait and triggers a retransmit.
func matchAck(res frameResult, txID uint8, sizeOrOffset uint16) error {
	if res.err != nil {
		return res.err
	}
	h, _, err := decodeHeader(res.frame.Body)
	if err != nil {
		return err
	}
	if h.Type != typeAck || h.TxID != txID || h.SizeOrOffset != sizeOrOffset {
		return fmt.Errorf("padp: unexpected frame while awaiting ack (type=%d txid=%d)", h.Type, h.TxID)
	}
	return nil
}

// Receive collects fragments until a complete message has been reassembled,
// acknowledging every data fragment as it arrives.
func (c *Conn) Receive() ([]byte, error) {
	c.startReader()
	var buf bytes.Buffer
	var total uint16
	haveTotal := false
	var txID uint8
	started := false

	for {
		res := <-c.frames
		if res.err != nil {
			return nil, fmt.Errorf("padp: receive: %w", res.err)
		}
		f := res.frame
		h, payload, err := decodeHeader(f.Body)
		if err != nil {
			return nil, err
		}
		if h.Type != typeData {
			continue // stray ack for a message we've already completed
		}
		if h.Flags&flagMemErr != 0 {
			return nil, ErrMemory
		}

		if !started {
			if h.Flags&flagFirst == 0 {
				return nil, ErrGap
			}
			started = true
			txID = h.TxID
			total = h.SizeOrOffset
			haveTotal = true
		} else if h.TxID != txID {
			// A new message started before this one finished; per the spec
			// this indicates our reassembly state is out of sync.
			return nil, ErrGap
		}

		// The offset this fragment claims to start at: 0 for a (possibly
		// retransmitted) first fragment, otherwise its own size-or-offset
		// field.
		wantOffset := h.SizeOrOffset
		if h.Flags&flagFirst != 0 {
			wantOffset = 0
		}
		switch {
		case uint16(buf.Len()) == wantOffset:
			buf.Write(payload)
		case uint16(buf.Len()) > wantOffset:
			// Duplicate fragment: the sender never saw our earlier ack.
			// Re-ack and drop it without touching the buffer.
		default:
			return nil, ErrGap
		}

		if err := c.ack(txID, h.SizeOrOffset); err != nil {
			return nil, err
		}

		if h.Flags&flagLast != 0 {
			if haveTotal && uint16(buf.Len()) != total {
				return nil, fmt.Errorf("padp: reassembled %d bytes, expected %d", buf.Len(), total)
			}
			return buf.Bytes(), nil
		}
	}
}

func (c *Conn) ack(txID uint8, sizeOrOffset uint16) error {
	seg := encodeHeader(header{Type: typeAck, TxID: txID, SizeOrOffset: sizeOrOffset})
	return c.w.WriteFrame(slp.Frame{DestSocket: Socket, SrcSocket: Socket, Type: slp.TypePADP, Body: seg})
}
