package base

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payloads := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xAB}, 4096), // larger than the read buffer
	}

	go func() {
		for i, p := range payloads {
			if err := writeFrame(client, uint64(i+1), p); err != nil {
				t.Errorf("writeFrame: %v", err)
				return
			}
		}
	}()

	buf := make([]byte, 64)
	for i, want := range payloads {
		requestID, data, err := readFrame(server, buf)
		if err != nil {
			t.Fatalf("readFrame: %v", err)
		}
		if requestID != uint64(i+1) {
			t.Errorf("requestID = %d, want %d", requestID, i+1)
		}
		if !bytes.Equal(data, want) {
			t.Errorf("payload %d mismatch (len %d, want %d)", i, len(data), len(want))
		}
	}
}

func TestFrameTooLarge(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		header := make([]byte, headerSize)
		binary.BigEndian.PutUint64(header[:8], 1)
		binary.BigEndian.PutUint32(header[8:], maxFrameSize+1)
		_, _ = client.Write(header)
	}()

	if _, _, err := readFrame(server, nil); err == nil {
		t.Fatal("expected an error for an oversized frame")
	}
}
