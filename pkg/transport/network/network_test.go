package network

import (
	"net"
	"testing"
)

func TestListenAndAccept(t *testing.T) {
	l, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()

	done := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		if _, err := conn.Read(buf); err != nil {
			done <- err
			return
		}
		done <- nil
	}()

	cliConn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cliConn.Close()
	if _, err := cliConn.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("accept goroutine: %v", err)
	}
}
