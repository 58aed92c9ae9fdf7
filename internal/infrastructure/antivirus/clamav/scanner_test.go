package clamav

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// fakeClamd accepts one INSTREAM session and answers with the given reply.
func fakeClamd(t *testing.T, reply string, received *[]byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		cmd := make([]byte, len("zINSTREAM\x00"))
		if _, err := io.ReadFull(r, cmd); err != nil {
			return
		}
		for {
			var sizeBuf [4]byte
			if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
				return
			}
			size := binary.BigEndian.Uint32(sizeBuf[:])
			if size == 0 {
				break
			}
			chunk := make([]byte, size)
			if _, err := io.ReadFull(r, chunk); err != nil {
				return
			}
			if received != nil {
				*received = append(*received, chunk...)
			}
		}
		_, _ = conn.Write([]byte(reply))
	}()

	return ln.Addr().String()
}

func TestScanClean(t *testing.T) {
	var received []byte
	addr := fakeClamd(t, "stream: OK\x00", &received)

	scanner := New(addr, 5*time.Second)
	report, err := scanner.Scan(context.Background(), strings.NewReader("conteudo inofensivo"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.IsInfected {
		t.Errorf("IsInfected = true, want false")
	}
	if string(received) != "conteudo inofensivo" {
		t.Errorf("daemon received %q", received)
	}
}

func TestScanInfected(t *testing.T) {
	addr := fakeClamd(t, "stream: Eicar-Test-Signature FOUND\x00", nil)

	scanner := New(addr, 5*time.Second)
	report, err := scanner.Scan(context.Background(), strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !report.IsInfected {
		t.Fatalf("IsInfected = false, want true")
	}
	if len(report.Signatures) != 1 || report.Signatures[0] != "Eicar-Test-Signature" {
		t.Errorf("Signatures = %v", report.Signatures)
	}
}

func TestScanDialFailure(t *testing.T) {
	scanner := New("127.0.0.1:1", time.Second)
	if _, err := scanner.Scan(context.Background(), strings.NewReader("x")); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestParseReply(t *testing.T) {
	cases := []struct {
		reply     string
		infected  bool
		signature string
		wantErr   bool
	}{
		{"stream: OK\x00", false, "", false},
		{"stream: Win.Test.EICAR_HDB-1 FOUND\x00", true, "Win.Test.EICAR_HDB-1", false},
		{"INSTREAM size limit exceeded. ERROR\x00", false, "", true},
		{"", false, "", true},
	}
	for _, tc := range cases {
		report, err := parseReply(tc.reply)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseReply(%q): expected error", tc.reply)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseReply(%q): %v", tc.reply, err)
			continue
		}
		if report.IsInfected != tc.infected {
			t.Errorf("parseReply(%q).IsInfected = %v", tc.reply, report.IsInfected)
		}
		if tc.infected && (len(report.Signatures) != 1 || report.Signatures[0] != tc.signature) {
			t.Errorf("parseReply(%q).Signatures = %v, want %q", tc.reply, report.Signatures, tc.signature)
		}
	}
}
