package hidio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// ProcessTransport drives a CommandInterface's rx/tx queues over a
// long-running child process's stdin/stdout, framing each packet as
// [length:u32LE][id:u16LE][type:u8][data...]. It exists for
// integration-testing a firmware build against an external HID-IO
// host simulator without a real USB stack in the loop.
type ProcessTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	mu     sync.Mutex // serialize writes; reads are only ever called from one goroutine
}

// SimulatorPath is the external HID-IO host simulator binary. Override
// before calling NewProcessTransport if it lives elsewhere.
var SimulatorPath = "hidio-sim"

// NewProcessTransport starts the simulator process.
func NewProcessTransport(args ...string) (*ProcessTransport, error) {
	cmd := exec.Command(SimulatorPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("hidio: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("hidio: stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr // inherit

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("hidio: start %s: %w", SimulatorPath, err)
	}

	return &ProcessTransport{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// Send frames and writes one packet to the child process.
func (p *ProcessTransport) Send(pkt Packet) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	body := encodePacket(pkt)
	if err := binary.Write(p.stdin, binary.LittleEndian, uint32(len(body))); err != nil {
		return fmt.Errorf("hidio: write length: %w", err)
	}
	if _, err := p.stdin.Write(body); err != nil {
		return fmt.Errorf("hidio: write body: %w", err)
	}
	return nil
}

// Receive blocks for the next framed packet from the child process.
func (p *ProcessTransport) Receive() (Packet, error) {
	var length uint32
	if err := binary.Read(p.stdout, binary.LittleEndian, &length); err != nil {
		return Packet{}, fmt.Errorf("hidio: read length: %w", err)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(p.stdout, body); err != nil {
		return Packet{}, fmt.Errorf("hidio: read body: %w", err)
	}
	return decodePacket(body)
}

// Pump relays packets between c's queues and the simulator process
// until either side closes: c's tx queue drains to the simulator, and
// whatever the simulator sends is pushed into c's rx queue and
// processed immediately.
func (p *ProcessTransport) Pump(c *CommandInterface) error {
	for {
		for {
			chunk, ok := c.PopTx()
			if !ok {
				break
			}
			pkt, err := decodePacket(chunk)
			if err != nil {
				return err
			}
			if err := p.Send(pkt); err != nil {
				return err
			}
		}

		pkt, err := p.Receive()
		if err != nil {
			return err
		}
		if err := c.PushRx(encodePacket(pkt)); err != nil {
			return err
		}
		if _, err := c.ProcessRx(1); err != nil {
			return err
		}
	}
}

// Close shuts down the simulator process.
func (p *ProcessTransport) Close() error {
	p.stdin.Close()
	return p.cmd.Wait()
}
