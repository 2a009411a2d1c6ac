package control

import (
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeHandler struct {
	resumed int32
	quit    int32
}

func (f *fakeHandler) Status() any {
	return map[string]string{"phase": "downloading"}
}

func (f *fakeHandler) Resume() {
	atomic.AddInt32(&f.resumed, 1)
}

func (f *fakeHandler) Quit() {
	atomic.AddInt32(&f.quit, 1)
}

func startServer(t *testing.T) (*Server, string, *fakeHandler) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "control.sock")
	h := &fakeHandler{}
	s := NewServer(sock, h)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, sock, h
}

func TestStatusReturnsHandlerJSON(t *testing.T) {
	_, sock, _ := startServer(t)
	client := NewClient(sock)

	resp, err := client.SendCommand("STATUS")
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if !strings.Contains(resp, "downloading") {
		t.Fatalf("resp = %q, want it to contain phase", resp)
	}
}

func TestResumeInvokesHandler(t *testing.T) {
	_, sock, h := startServer(t)
	client := NewClient(sock)

	if _, err := client.SendCommand("RESUME"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&h.resumed) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&h.resumed) != 1 {
		t.Fatal("Resume was not invoked")
	}
}

func TestUnknownCommandReturnsError(t *testing.T) {
	_, sock, _ := startServer(t)
	client := NewClient(sock)

	resp, err := client.SendCommand("BOGUS")
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if !strings.Contains(resp, "error") {
		t.Fatalf("resp = %q, want error", resp)
	}
}
