package gdbserial

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/zdbg/zdb/pkg/logflags"
)

type gdbConn struct {
	conn net.Conn
	rdr  *bufio.Reader

	inbuf  []byte
	outbuf bytes.Buffer

	ack    bool // when ack is true acknowledgment packets are enabled
	addr64 bool // stub expects sign extended 64bit addresses

	packets chan []byte // packets read by readLoop, closed on read errors
	readErr error       // valid after packets is closed

	maxTransmitAttempts int
	timeout             time.Duration

	log logflags.Logger
}

const (
	gdbWireMaxLen = 120

	// stub's answer timeout for requests, stop packets are waited for
	// indefinitely
	defaultTimeout = 10 * time.Second
)

var (
	ErrTooManyAttempts = errors.New("too many transmit attempts")
	errTimeout         = errors.New("timed out waiting for stub")
)

// GdbProtocolError is an error response (Exx) of Gdb Remote Serial Protocol
// or an "unsupported command" response (empty packet).
type GdbProtocolError struct {
	context string
	cmd     string
	code    string
}

func (err *GdbProtocolError) Error() string {
	cmd := err.cmd
	if len(cmd) > 20 {
		cmd = cmd[:20] + "..."
	}
	if err.code == "" {
		return fmt.Sprintf("unsupported packet %s during %s", cmd, err.context)
	}
	return fmt.Sprintf("protocol error %s during %s for packet %s", err.code, err.context, cmd)
}

func newConn(c net.Conn, addr64 bool) *gdbConn {
	return &gdbConn{
		conn:                c,
		rdr:                 bufio.NewReader(c),
		inbuf:               make([]byte, 0, 256),
		addr64:              addr64,
		packets:             make(chan []byte, 16),
		maxTransmitAttempts: 3,
		timeout:             defaultTimeout,
		log:                 logflags.GdbWireLogger(),
	}
}

// handshake disables acks and starts reading packets in the background.
func (conn *gdbConn) handshake() error {
	conn.ack = true

	// This first ack packet is needed to start up the connection
	conn.sendack('+')

	if err := conn.send([]byte("$QStartNoAckMode")); err != nil {
		return err
	}
	resp, err := conn.recvDirect()
	if err != nil {
		return err
	}
	if string(resp) == "OK" {
		conn.ack = false
	} else {
		conn.log.Warnf("stub refused QStartNoAckMode: %q", resp)
	}

	go conn.readLoop()
	return nil
}

// recvDirect reads one packet from the connection, acknowledging it if
// acks are enabled. Only used before readLoop is started.
func (conn *gdbConn) recvDirect() ([]byte, error) {
	attempt := 0
	for {
		pkt, sum, err := conn.readPacket()
		if err != nil {
			return nil, err
		}
		if checksumok(pkt, sum) {
			if conn.ack {
				conn.sendack('+')
			}
			var msg []byte
			conn.inbuf, msg = wiredecode(pkt, conn.inbuf)
			return append([]byte(nil), msg...), nil
		}
		if attempt > conn.maxTransmitAttempts {
			return nil, ErrTooManyAttempts
		}
		attempt++
		conn.sendack('-')
	}
}

// readPacket reads the next '$' packet, skipping acks and notifications.
func (conn *gdbConn) readPacket() (pkt, sum []byte, err error) {
	for {
		raw, err := conn.rdr.ReadBytes('#')
		if err != nil {
			return nil, nil, err
		}
		sum = make([]byte, 2)
		if _, err := io.ReadFull(conn.rdr, sum); err != nil {
			return nil, nil, err
		}
		start := bytes.IndexAny(raw, "$%")
		if start < 0 {
			continue
		}
		raw = raw[start:]
		if logflags.GdbWire() {
			if len(raw) > gdbWireMaxLen {
				conn.log.Debugf("-> %s...", string(raw[:gdbWireMaxLen]))
			} else {
				conn.log.Debugf("-> %s%s", string(raw), string(sum))
			}
		}
		if raw[0] == '%' {
			// notifications were not requested, ignore them
			continue
		}
		return raw, sum, nil
	}
}

func (conn *gdbConn) readLoop() {
	defer close(conn.packets)
	var buf []byte
	for {
		pkt, sum, err := conn.readPacket()
		if err != nil {
			conn.readErr = err
			return
		}
		if !checksumok(pkt, sum) {
			conn.log.Errorf("dropping packet with bad checksum: %s", pkt)
			continue
		}
		var msg []byte
		buf, msg = wiredecode(pkt, buf)
		conn.packets <- append([]byte(nil), msg...)
	}
}

// recv waits for the next packet read by readLoop. A zero timeout waits
// forever.
func (conn *gdbConn) recv(timeout time.Duration) ([]byte, error) {
	var tc <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		tc = t.C
	}
	select {
	case pkt, ok := <-conn.packets:
		if !ok {
			if conn.readErr != nil {
				return nil, conn.readErr
			}
			return nil, io.EOF
		}
		return pkt, nil
	case <-tc:
		return nil, errTimeout
	}
}

// exec executes a message to the stub and reads a response.
// The details of the wire protocol are described here:
//
//	https://sourceware.org/gdb/onlinedocs/gdb/Overview.html#Overview
func (conn *gdbConn) exec(cmd []byte, context string) ([]byte, error) {
	if err := conn.send(cmd); err != nil {
		return nil, err
	}
	resp, err := conn.recv(conn.timeout)
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 || (resp[0] == 'E' && len(resp) == 3) {
		return nil, &GdbProtocolError{context, string(cmd), string(resp)}
	}
	return resp, nil
}

var hexdigit = []byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'a', 'b', 'c', 'd', 'e', 'f'}

func (conn *gdbConn) send(cmd []byte) error {
	if len(cmd) == 0 || cmd[0] != '$' {
		panic("gdb protocol error: command doesn't start with '$'")
	}

	// append checksum to packet
	cmd = append(cmd, '#')
	sum := checksum(cmd)
	cmd = append(cmd, hexdigit[sum>>4], hexdigit[sum&0xf])

	attempt := 0
	for {
		if logflags.GdbWire() {
			if len(cmd) > gdbWireMaxLen {
				conn.log.Debugf("<- %s...", string(cmd[:gdbWireMaxLen]))
			} else {
				conn.log.Debugf("<- %s", string(cmd))
			}
		}
		_, err := conn.conn.Write(cmd)
		if err != nil {
			return err
		}

		if !conn.ack {
			break
		}

		if conn.readack() {
			break
		}
		if attempt > conn.maxTransmitAttempts {
			return ErrTooManyAttempts
		}
		attempt++
	}
	return nil
}

// readack reads one byte from stub, returns true if the byte is '+'
func (conn *gdbConn) readack() bool {
	b, err := conn.rdr.ReadByte()
	if err != nil {
		return false
	}
	conn.log.Debugf("-> %s", string(b))
	return b == '+'
}

// sendack executes an ack character, c must be either '+' or '-'
func (conn *gdbConn) sendack(c byte) {
	if c != '+' && c != '-' {
		panic(fmt.Errorf("sendack(%c)", c))
	}
	conn.conn.Write([]byte{c})
	conn.log.Debugf("<- %s", string(c))
}

const ctrlC = 0x03 // the ASCII character for ^C

// executes a ctrl-C on the line
func (conn *gdbConn) sendCtrlC() error {
	conn.log.Debug("<- interrupt")
	_, err := conn.conn.Write([]byte{ctrlC})
	return err
}

// wireAddr converts a 32bit target address into the stub's representation.
func (conn *gdbConn) wireAddr(addr uint32) uint64 {
	if conn.addr64 {
		return uint64(int64(int32(addr)))
	}
	return uint64(addr)
}

// setBreakpoint executes a 'Z' (insert breakpoint) command of type '0' and kind '4'
func (conn *gdbConn) setBreakpoint(addr uint32) error {
	return conn.z('Z', '0', addr, 4, "set breakpoint")
}

// clearBreakpoint executes a 'z' (remove breakpoint) command of type '0' and kind '4'
func (conn *gdbConn) clearBreakpoint(addr uint32) error {
	return conn.z('z', '0', addr, 4, "clear breakpoint")
}

// setWatchpoint executes a 'Z' (insert watchpoint) command of type '2' on
// the word at addr.
func (conn *gdbConn) setWatchpoint(addr uint32) error {
	return conn.z('Z', '2', addr, 4, "set watchpoint")
}

// clearWatchpoint executes a 'z' (remove watchpoint) command of type '2'.
func (conn *gdbConn) clearWatchpoint(addr uint32) error {
	return conn.z('z', '2', addr, 4, "clear watchpoint")
}

func (conn *gdbConn) z(op, typ byte, addr uint32, kind int, context string) error {
	conn.outbuf.Reset()
	fmt.Fprintf(&conn.outbuf, "$%c%c,%x,%x", op, typ, conn.wireAddr(addr), kind)
	_, err := conn.exec(conn.outbuf.Bytes(), context)
	return err
}

// readWord executes a 'm' (read memory) command for the big endian word
// at addr.
func (conn *gdbConn) readWord(addr uint32) (uint32, error) {
	conn.outbuf.Reset()
	fmt.Fprintf(&conn.outbuf, "$m%x,4", conn.wireAddr(addr))
	resp, err := conn.exec(conn.outbuf.Bytes(), "memory read")
	if err != nil {
		return 0, err
	}
	data, err := decodeHex(resp)
	if err != nil || len(data) != 4 {
		return 0, fmt.Errorf("malformed memory read response %q", resp)
	}
	return binary.BigEndian.Uint32(data), nil
}

// readRegister executes 'p' (read register) command and returns the low 32
// bits of the big endian register value.
func (conn *gdbConn) readRegister(regnum int) (uint32, error) {
	conn.outbuf.Reset()
	fmt.Fprintf(&conn.outbuf, "$p%x", regnum)
	resp, err := conn.exec(conn.outbuf.Bytes(), "register read")
	if err != nil {
		return 0, err
	}
	data, err := decodeHex(resp)
	if err != nil || len(data) < 4 {
		return 0, fmt.Errorf("malformed register read response %q", resp)
	}
	return binary.BigEndian.Uint32(data[len(data)-4:]), nil
}

// stopReason executes a '?' command and returns the current stop packet.
func (conn *gdbConn) stopReason() (stopPacket, error) {
	resp, err := conn.exec([]byte("$?"), "stop reason")
	if err != nil {
		return stopPacket{}, err
	}
	return parseStopPacket(resp)
}

// resume executes a 'vCont' command, the stop packet is not waited for.
func (conn *gdbConn) resume(step bool) error {
	if step {
		return conn.send([]byte("$vCont;s"))
	}
	return conn.send([]byte("$vCont;c"))
}

// detach executes a 'D' (detach) command.
func (conn *gdbConn) detach() error {
	_, err := conn.exec([]byte("$D"), "detach")
	return err
}

func (conn *gdbConn) close() error {
	return conn.conn.Close()
}

type stopPacket struct {
	sig       uint8
	watch     bool // stopped by a watchpoint
	watchAddr uint32
	reason    string
	exited    bool
	output    bool // 'O' console output packet, not a stop
}

// parseStopPacket parses a stop reply packet.
func parseStopPacket(resp []byte) (sp stopPacket, err error) {
	if len(resp) == 0 {
		return sp, errors.New("empty stop packet")
	}
	switch resp[0] {
	case 'S', 'T':
		if len(resp) < 3 {
			return sp, fmt.Errorf("malformed stop packet: %s", string(resp))
		}
		sig, err := strconv.ParseUint(string(resp[1:3]), 16, 8)
		if err != nil {
			return sp, fmt.Errorf("malformed stop packet: %s", string(resp))
		}
		sp.sig = uint8(sig)

		buf := resp[3:]
		for len(buf) > 0 {
			colon := bytes.Index(buf, []byte{':'})
			if colon < 0 {
				break
			}
			key := buf[:colon]
			buf = buf[colon+1:]

			semicolon := bytes.Index(buf, []byte{';'})
			var value []byte
			if semicolon < 0 {
				value = buf
				buf = nil
			} else {
				value = buf[:semicolon]
				buf = buf[semicolon+1:]
			}

			switch string(key) {
			case "watch", "awatch":
				addr, err := strconv.ParseUint(string(value), 16, 64)
				if err != nil {
					return sp, fmt.Errorf("malformed watch address in stop packet: %s", string(resp))
				}
				sp.watch = true
				sp.watchAddr = uint32(addr)
				sp.reason = string(key)
			case "swbreak", "hwbreak":
				sp.reason = string(key)
			case "reason":
				sp.reason = string(value)
			}
		}
		return sp, nil

	case 'W', 'X':
		sp.exited = true
		return sp, nil

	case 'O':
		sp.output = true
		return sp, nil

	default:
		return sp, fmt.Errorf("unexpected stop packet %c", resp[0])
	}
}

func decodeHex(in []byte) ([]byte, error) {
	if len(in)%2 != 0 {
		return nil, fmt.Errorf("odd length hex string %q", in)
	}
	out := make([]byte, len(in)/2)
	for i := 0; i < len(in); i += 2 {
		n, err := strconv.ParseUint(string(in[i:i+2]), 16, 8)
		if err != nil {
			return nil, err
		}
		out[i/2] = uint8(n)
	}
	return out, nil
}

// escapeXor is the value mandated by the gdb remote protocol to escape characters
const escapeXor byte = 0x20

// wiredecode decodes the contents of in into buf.
// If buf is nil it will be allocated ex-novo, if the size of buf is not
// enough to hold the decoded contents it will be grown.
// Returns the newly allocated buffer as newbuf and the message contents as
// msg.
func wiredecode(in, buf []byte) (newbuf, msg []byte) {
	if buf != nil {
		buf = buf[:0]
	} else {
		buf = make([]byte, 0, 256)
	}

	start := 1

	for i := 0; i < len(in); i++ {
		switch ch := in[i]; ch {
		case '}': // escape
			if i+1 >= len(in) {
				buf = append(buf, ch)
			} else {
				buf = append(buf, in[i+1]^escapeXor)
				i++
			}
		case '#': // end of packet
			return buf, buf[start:]
		case '*': // runlength encoding marker
			if i+1 >= len(in) || i == 0 {
				buf = append(buf, ch)
			} else {
				n := in[i+1] - 29
				r := buf[len(buf)-1]
				for j := uint8(0); j < n; j++ {
					buf = append(buf, r)
				}
				i++
			}
		default:
			buf = append(buf, ch)
		}
	}
	return buf, buf[start:]
}

// checksumok checks that checksum is a valid checksum for packet.
func checksumok(packet, checksumBuf []byte) bool {
	if packet[0] != '$' {
		return false
	}

	sum := checksum(packet)
	tgt, err := strconv.ParseUint(string(checksumBuf), 16, 8)
	if err != nil {
		return false
	}
	return sum == uint8(tgt)
}

func checksum(packet []byte) (sum uint8) {
	for i := 1; i < len(packet); i++ {
		if packet[i] == '#' {
			return sum
		}
		sum += packet[i]
	}
	return sum
}
