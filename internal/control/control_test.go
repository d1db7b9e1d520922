package control

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestRendezvousRoundTrip(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "ctl.sock")

	srv, err := NewServer(socket, "demo-segment")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	t.Cleanup(srv.Close)

	name, err := Dial(socket, 4242)
	require.NoError(t, err)
	require.Equal(t, "demo-segment", name)

	require.Eventually(t, func() bool {
		peers := srv.Peers()
		return len(peers) == 1 && peers[0] == 4242
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRendezvousMultipleClients(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "ctl.sock")

	srv, err := NewServer(socket, "seg")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	t.Cleanup(srv.Close)

	for pid := 100; pid < 105; pid++ {
		name, err := Dial(socket, pid)
		require.NoError(t, err)
		require.Equal(t, "seg", name)
	}

	require.Eventually(t, func() bool {
		return len(srv.Peers()) == 5
	}, 2*time.Second, 10*time.Millisecond)
	require.ElementsMatch(t, []int{100, 101, 102, 103, 104}, srv.Peers())
}

func TestRendezvousRejectsBadHello(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "ctl.sock")

	srv, err := NewServer(socket, "seg")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	t.Cleanup(srv.Close)

	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\n"))
	require.NoError(t, err)

	// The server closes without replying and records no peer.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	require.Error(t, err)
	require.Empty(t, srv.Peers())
}

func TestNewServerRejectsOverlongName(t *testing.T) {
	long := make([]byte, maxSegmentNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := NewServer(filepath.Join(t.TempDir(), "ctl.sock"), string(long))
	require.ErrorIs(t, err, ErrNameTooLong)
}

func TestNewServerReplacesStaleSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "ctl.sock")

	// A leftover file from a crashed run must not block a new server.
	require.NoError(t, os.WriteFile(socket, nil, 0o600))

	srv, err := NewServer(socket, "seg")
	require.NoError(t, err)
	srv.listener.Close()
}

func TestInfoFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "info.json")

	want := Info{Segment: "demo", Socket: "/tmp/ctl.sock", PID: 999}
	require.NoError(t, WriteInfoFile(path, want))

	got, err := ReadInfoFile(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("info mismatch (-want +got):\n%s", diff)
	}
}

func TestReadInfoFileErrors(t *testing.T) {
	_, err := ReadInfoFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
