package operators

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/acqlab/instrumentd/pkg/operator"
)

// Dialer opens the raw byte stream to an instrument. Dialing may block for
// as long as the hardware needs; the call happens on the worker goroutine.
type Dialer func() (io.ReadWriteCloser, error)

// SerialHandshake performs the blocking bring-up dialogue with a line-based
// serial instrument: dial, ask for the identification string, then push the
// configured setup commands and require an "OK" acknowledgement for each.
// Any failure during Prepare is fatal to the activation.
type SerialHandshake struct {
	operator.Base

	dial  Dialer
	setup []string

	conn   io.ReadWriteCloser
	reader *bufio.Reader
}

// NewSerialHandshake creates a handshake operator. setup lists the
// configuration commands sent after identification.
func NewSerialHandshake(dial Dialer, setup []string) *SerialHandshake {
	return &SerialHandshake{dial: dial, setup: setup}
}

// Prepare connects and configures the instrument. The ready result is the
// identification string the instrument answered with.
func (s *SerialHandshake) Prepare(args interface{}) (interface{}, error) {
	conn, err := s.dial()
	if err != nil {
		return nil, fmt.Errorf("dial instrument: %w", err)
	}
	s.conn = conn
	s.reader = bufio.NewReader(conn)

	id, err := s.command("*IDN?")
	if err != nil {
		conn.Close()
		s.conn = nil
		return nil, fmt.Errorf("identification: %w", err)
	}

	for _, cmd := range s.setup {
		ack, err := s.command(cmd)
		if err != nil {
			conn.Close()
			s.conn = nil
			return nil, fmt.Errorf("setup command %q: %w", cmd, err)
		}
		if ack != "OK" {
			conn.Close()
			s.conn = nil
			return nil, fmt.Errorf("setup command %q rejected: %s", cmd, ack)
		}
	}

	return id, nil
}

// Send writes a command after bring-up and returns the single-line reply.
// Only valid between a successful Prepare and Finalize.
func (s *SerialHandshake) Send(cmd string) (string, error) {
	if s.conn == nil {
		return "", fmt.Errorf("instrument not connected")
	}
	return s.command(cmd)
}

func (s *SerialHandshake) command(cmd string) (string, error) {
	if _, err := io.WriteString(s.conn, cmd+"\n"); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Finalize closes the connection. A close failure is reported through the
// finalize fault path but never blocks teardown.
func (s *SerialHandshake) Finalize() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("close instrument: %w", err)
	}
	return nil
}
