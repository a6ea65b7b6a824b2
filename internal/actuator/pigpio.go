package actuator

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// pigpiod socket commands.
const (
	cmdServo = 8
	cmdHWVer = 17
)

const ioTimeout = 2 * time.Second

// Pigpio talks to a pigpio daemon over its socket interface. Each request is
// a 16-byte frame of four little-endian uint32 (cmd, p1, p2, p3); the reply
// echoes the frame with the result in the last word.
type Pigpio struct {
	mu   sync.Mutex
	conn net.Conn
}

func DialPigpio(ctx context.Context, addr string) (*Pigpio, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial pigpiod %s: %w", addr, err)
	}

	p := NewPigpio(conn)
	if _, err := p.command(cmdHWVer, 0, 0); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pigpiod handshake: %w", err)
	}
	return p, nil
}

func NewPigpio(conn net.Conn) *Pigpio {
	return &Pigpio{conn: conn}
}

// SetPulseWidth drives a servo on pin; 0 switches the pulses off, otherwise
// 500..2500 microseconds.
func (p *Pigpio) SetPulseWidth(pin, us uint32) error {
	_, err := p.command(cmdServo, pin, us)
	return err
}

func (p *Pigpio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *Pigpio) command(cmd, p1, p2 uint32) (int32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return 0, ErrStopped
	}

	var req [16]byte
	binary.LittleEndian.PutUint32(req[0:], cmd)
	binary.LittleEndian.PutUint32(req[4:], p1)
	binary.LittleEndian.PutUint32(req[8:], p2)

	_ = p.conn.SetDeadline(time.Now().Add(ioTimeout))
	if _, err := p.conn.Write(req[:]); err != nil {
		return 0, fmt.Errorf("pigpio cmd %d: %w", cmd, err)
	}

	var resp [16]byte
	if _, err := io.ReadFull(p.conn, resp[:]); err != nil {
		return 0, fmt.Errorf("pigpio cmd %d: %w", cmd, err)
	}

	res := int32(binary.LittleEndian.Uint32(resp[12:]))
	if res < 0 {
		return res, fmt.Errorf("pigpio cmd %d: error code %d", cmd, res)
	}
	return res, nil
}
