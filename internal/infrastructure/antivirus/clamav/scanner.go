package clamav

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
)

const (
	defaultTimeout = 30 * time.Second
	chunkSize      = 32 << 10
)

// Scanner streams content to a clamd daemon over its INSTREAM protocol.
// The daemon is a black box: one stream in, clean-or-infected out.
type Scanner struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

func New(addr string, timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Scanner{addr: addr, timeout: timeout}
}

func (s *Scanner) Scan(ctx context.Context, data io.Reader) (domain.ScanReport, error) {
	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return domain.ScanReport{}, fmt.Errorf("dial clamd: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		return domain.ScanReport{}, fmt.Errorf("set clamd deadline: %w", err)
	}

	if _, err := conn.Write([]byte("zINSTREAM\x00")); err != nil {
		return domain.ScanReport{}, fmt.Errorf("start clamd stream: %w", err)
	}

	if err := streamChunks(conn, data); err != nil {
		return domain.ScanReport{}, err
	}

	reply, err := io.ReadAll(io.LimitReader(conn, 4096))
	if err != nil {
		return domain.ScanReport{}, fmt.Errorf("read clamd reply: %w", err)
	}
	return parseReply(string(reply))
}

func streamChunks(conn net.Conn, data io.Reader) error {
	buf := make([]byte, chunkSize)
	var sizePrefix [4]byte
	for {
		n, readErr := data.Read(buf)
		if n > 0 {
			binary.BigEndian.PutUint32(sizePrefix[:], uint32(n))
			if _, err := conn.Write(sizePrefix[:]); err != nil {
				return fmt.Errorf("write clamd chunk size: %w", err)
			}
			if _, err := conn.Write(buf[:n]); err != nil {
				return fmt.Errorf("write clamd chunk: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read scan input: %w", readErr)
		}
	}
	// Zero-length chunk terminates the stream.
	binary.BigEndian.PutUint32(sizePrefix[:], 0)
	if _, err := conn.Write(sizePrefix[:]); err != nil {
		return fmt.Errorf("terminate clamd stream: %w", err)
	}
	return nil
}

func parseReply(reply string) (domain.ScanReport, error) {
	reply = strings.TrimSpace(strings.Trim(reply, "\x00"))
	switch {
	case strings.HasSuffix(reply, "OK"):
		return domain.ScanReport{IsInfected: false}, nil
	case strings.HasSuffix(reply, "FOUND"):
		signature := strings.TrimSuffix(reply, "FOUND")
		if idx := strings.Index(signature, ":"); idx >= 0 {
			signature = signature[idx+1:]
		}
		return domain.ScanReport{
			IsInfected: true,
			Signatures: []string{strings.TrimSpace(signature)},
		}, nil
	default:
		return domain.ScanReport{}, fmt.Errorf("unexpected clamd reply: %q", reply)
	}
}
