package vnc

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"
)

// fakeRFBServer drives one connection through the minimal handshake this
// client expects: version exchange, security-type None, ClientInit /
// ServerInit, and a SetEncodings message it reads and discards.
func fakeRFBServer(t *testing.T, conn net.Conn, width, height int) {
	t.Helper()

	if _, err := conn.Write([]byte("RFB 003.008\n")); err != nil {
		t.Errorf("server write version: %v", err)
		return
	}
	clientVersion := make([]byte, 12)
	if _, err := io.ReadFull(conn, clientVersion); err != nil {
		t.Errorf("server read client version: %v", err)
		return
	}

	if _, err := conn.Write([]byte{1, secTypeNone}); err != nil {
		t.Errorf("server write security types: %v", err)
		return
	}
	chosen := make([]byte, 1)
	if _, err := io.ReadFull(conn, chosen); err != nil {
		t.Errorf("server read chosen security type: %v", err)
		return
	}

	result := make([]byte, 4)
	binary.BigEndian.PutUint32(result, 0)
	if _, err := conn.Write(result); err != nil {
		t.Errorf("server write security result: %v", err)
		return
	}

	clientInit := make([]byte, 1)
	if _, err := io.ReadFull(conn, clientInit); err != nil {
		t.Errorf("server read client init: %v", err)
		return
	}

	serverInitMsg := make([]byte, 0, 24+4)
	wbuf := make([]byte, 2)
	binary.BigEndian.PutUint16(wbuf, uint16(width))
	serverInitMsg = append(serverInitMsg, wbuf...)
	binary.BigEndian.PutUint16(wbuf, uint16(height))
	serverInitMsg = append(serverInitMsg, wbuf...)
	serverInitMsg = append(serverInitMsg, buildPixelFormat(32, false, 255, 255, 255, 16, 8, 0)...)
	name := "test-desktop"
	nameLen := make([]byte, 4)
	binary.BigEndian.PutUint32(nameLen, uint32(len(name)))
	serverInitMsg = append(serverInitMsg, nameLen...)
	serverInitMsg = append(serverInitMsg, []byte(name)...)
	if _, err := conn.Write(serverInitMsg); err != nil {
		t.Errorf("server write server init: %v", err)
		return
	}

	setEncHeader := make([]byte, 4)
	if _, err := io.ReadFull(conn, setEncHeader); err != nil {
		t.Errorf("server read set-encodings header: %v", err)
		return
	}
	count := binary.BigEndian.Uint16(setEncHeader[2:4])
	rest := make([]byte, int(count)*4)
	if _, err := io.ReadFull(conn, rest); err != nil {
		t.Errorf("server read set-encodings body: %v", err)
		return
	}
}

func buildPixelFormat(bpp uint8, bigEndian bool, redMax, greenMax, blueMax uint16, redShift, greenShift, blueShift uint8) []byte {
	buf := make([]byte, 16)
	buf[0] = bpp
	buf[1] = 24 // depth, unused by this client
	if bigEndian {
		buf[2] = 1
	}
	buf[3] = 1 // true-colour flag, unused
	binary.BigEndian.PutUint16(buf[4:6], redMax)
	binary.BigEndian.PutUint16(buf[6:8], greenMax)
	binary.BigEndian.PutUint16(buf[8:10], blueMax)
	buf[10] = redShift
	buf[11] = greenShift
	buf[12] = blueShift
	return buf
}

func TestDialRFBNegotiatesNoneAuthAndReadsServerInit(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fakeRFBServer(t, conn, 640, 480)
	}()

	conn, err := dialRFB(ln.Addr().String(), "")
	if err != nil {
		t.Fatalf("dialRFB failed: %v", err)
	}
	defer conn.close()

	if conn.init.width != 640 || conn.init.height != 480 {
		t.Fatalf("expected 640x480, got %dx%d", conn.init.width, conn.init.height)
	}
	if conn.init.name != "test-desktop" {
		t.Fatalf("expected desktop name %q, got %q", "test-desktop", conn.init.name)
	}
	if conn.init.format.BitsPerPixel != 32 {
		t.Fatalf("expected bpp 32, got %d", conn.init.format.BitsPerPixel)
	}
}

func TestChooseSecurityTypePrefersNoneOverPassword(t *testing.T) {
	chosen, err := chooseSecurityType([]byte{secTypePassword, secTypeNone}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chosen != secTypeNone {
		t.Fatalf("expected None preferred, got %d", chosen)
	}
}

func TestChooseSecurityTypeRejectsUnsupported(t *testing.T) {
	_, err := chooseSecurityType([]byte{42}, "")
	if err == nil {
		t.Fatal("expected error for unsupported security types")
	}
}

func TestReverseBitsRoundTrips(t *testing.T) {
	for _, b := range []byte{0x00, 0xff, 0x01, 0x80, 0b10110001} {
		if got := reverseBits(reverseBits(b)); got != b {
			t.Fatalf("reverseBits(reverseBits(%08b)) = %08b, want %08b", b, got, b)
		}
	}
	if reverseBits(0b00000001) != 0b10000000 {
		t.Fatalf("reverseBits(1) = %08b, want 10000000", reverseBits(1))
	}
}

func TestSetReadDeadlinePropagatesToConn(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	c := &rfbConn{conn: client}
	defer client.Close()

	if err := c.setReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	buf := make([]byte, 1)
	_, err := c.conn.Read(buf)
	if err == nil {
		t.Fatal("expected deadline exceeded error")
	}
}
