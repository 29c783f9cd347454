// Package rsynctest spins up an in-process rsync daemon (optionally
// behind an anonymous-SSH listener) for integration tests, and
// provides fixture helpers for exercising delta-transfer edge cases
// (device files, large data files) that a plain small text file does
// not cover. Adapted from the teacher's internal/maincmd test call
// sites; the teacher's own source for this package was not present in
// the retrieval pack, so the plumbing below is built directly against
// rsyncd.Server and internal/anonssh.
package rsynctest

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/oferchen/rsync-sub017/internal/anonssh"
	"github.com/oferchen/rsync-sub017/internal/daemonconfig"
	"github.com/oferchen/rsync-sub017/internal/maincmd"
	"github.com/oferchen/rsync-sub017/internal/rsyncos"
	"github.com/oferchen/rsync-sub017/internal/testlogger"
	"github.com/oferchen/rsync-sub017/rsyncd"
)

// AnyRsync returns the path to an installed rsync binary, skipping
// the calling test when no such binary is found on PATH.
func AnyRsync(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("rsync")
	if err != nil {
		t.Skip("rsync(1) not installed, skipping wire-compatibility test")
	}
	return path
}

// Server is a running test daemon. Port is the TCP port to dial (or,
// when an AnonSSH listener was configured, the port to ssh to).
type Server struct {
	Port string
}

// Option configures New.
type Option func(*options)

type options struct {
	modules   []rsyncd.Module
	listeners []daemonconfig.Listener
}

// InteropModule registers a module named "interop" serving path, the
// same name the openrsync/tridge interop test suites use.
func InteropModule(path string) Option {
	return func(o *options) {
		o.modules = append(o.modules, rsyncd.Module{
			Name: "interop",
			Path: path,
		})
	}
}

// Listeners overrides the default bare-TCP rsync:// listener with the
// given configuration, e.g. to exercise the anonymous-SSH transport.
func Listeners(ls []daemonconfig.Listener) Option {
	return func(o *options) {
		o.listeners = ls
	}
}

// New starts a daemon for the duration of the test, returning once
// its listener is ready to accept connections. The daemon and its
// listener are torn down via t.Cleanup.
func New(t *testing.T, opts ...Option) *Server {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	stderr := testlogger.New(t)
	srv, err := rsyncd.NewServer(o.modules, rsyncd.WithStderr(stderr))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if len(o.listeners) > 0 && o.listeners[0].AnonSSH != "" {
		return newAnonSSHServer(t, ctx, stderr, o)
	}

	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		if err := srv.Serve(ctx, ln); err != nil {
			t.Logf("rsyncd serve: %v", err)
		}
	}()

	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	return &Server{Port: port}
}

// newAnonSSHServer wires an anonssh.Listener in front of maincmd.Main,
// the same way the daemon's own AnonSSH branch in internal/maincmd
// does: each accepted exec request re-enters Main with the client's
// argv, backed by the session channel as stdin/stdout/stderr.
func newAnonSSHServer(t *testing.T, ctx context.Context, stderr io.Writer, o options) *Server {
	t.Helper()

	osenv := &rsyncos.Env{Stderr: stderr}
	cfg := &daemonconfig.Config{
		Listeners: o.listeners,
		Modules:   o.modules,
	}

	l, err := anonssh.ListenerFromConfig(osenv, o.listeners[0])
	if err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", o.listeners[0].AnonSSH)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		err := anonssh.Serve(ctx, osenv, ln, l, cfg, func(args []string, stdin io.Reader, stdout, stderr2 io.Writer) error {
			childEnv := &rsyncos.Env{
				Stdin:        stdin,
				Stdout:       stdout,
				Stderr:       stderr2,
				DontRestrict: true,
			}
			_, err := maincmd.Main(ctx, childEnv, args, cfg)
			return err
		})
		if err != nil {
			t.Logf("anonssh serve: %v", err)
		}
	}()

	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	return &Server{Port: port}
}

// CreateDummyDeviceFiles populates dir with a character and a block
// device, used to exercise --devices preservation. Requires root.
func CreateDummyDeviceFiles(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	// Matches /dev/null (1, 3) and a harmless unused loop block device.
	if err := syscall.Mknod(filepath.Join(dir, "null"), syscall.S_IFCHR|0666, int(unix.Mkdev(1, 3))); err != nil {
		t.Fatalf("mknod null: %v", err)
	}
	if err := syscall.Mknod(filepath.Join(dir, "loop0"), syscall.S_IFBLK|0660, int(unix.Mkdev(7, 0))); err != nil {
		t.Fatalf("mknod loop0: %v", err)
	}
}

// VerifyDummyDeviceFiles checks that dir2 has device files matching
// the ones CreateDummyDeviceFiles wrote to dir1: same name, same
// type, same major/minor.
func VerifyDummyDeviceFiles(t *testing.T, dir1, dir2 string) {
	t.Helper()
	for _, name := range []string{"null", "loop0"} {
		st1, err := os.Lstat(filepath.Join(dir1, name))
		if err != nil {
			t.Fatal(err)
		}
		st2, err := os.Lstat(filepath.Join(dir2, name))
		if err != nil {
			t.Fatal(err)
		}
		sys1, ok1 := st1.Sys().(*syscall.Stat_t)
		sys2, ok2 := st2.Sys().(*syscall.Stat_t)
		if !ok1 || !ok2 {
			t.Fatalf("%s: unexpected Sys() type", name)
		}
		if sys1.Rdev != sys2.Rdev {
			t.Errorf("%s: rdev mismatch: got %d, want %d", name, sys2.Rdev, sys1.Rdev)
		}
		if (st1.Mode() & os.ModeType) != (st2.Mode() & os.ModeType) {
			t.Errorf("%s: file type mismatch: got %v, want %v", name, st2.Mode()&os.ModeType, st1.Mode()&os.ModeType)
		}
	}
}

const (
	largeDataHeadSize = 4096
	largeDataBodySize = 3 * 1024 * 1024
	largeDataEndSize  = 4096
)

// WriteLargeDataFile (re-)writes dir/large-data-file as
// head||body-repeated||end, large enough that an incremental rsync
// run touching only the body still has to read and resend a handful
// of rsync blocks, while the rest is recoverable from the basis file
// via the delta algorithm.
func WriteLargeDataFile(t *testing.T, dir string, head, body, end []byte) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(dir, "large-data-file"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := writePattern(f, head, largeDataHeadSize); err != nil {
		t.Fatal(err)
	}
	if err := writePattern(f, body, largeDataBodySize); err != nil {
		t.Fatal(err)
	}
	if err := writePattern(f, end, largeDataEndSize); err != nil {
		t.Fatal(err)
	}
}

func writePattern(f *os.File, pattern []byte, n int) error {
	if len(pattern) == 0 {
		return fmt.Errorf("empty pattern")
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = pattern[i%len(pattern)]
	}
	_, err := f.Write(buf)
	return err
}

// DataFileMatches verifies path was written by WriteLargeDataFile
// with the given patterns.
func DataFileMatches(path string, head, body, end []byte) error {
	got, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	want := make([]byte, 0, largeDataHeadSize+largeDataBodySize+largeDataEndSize)
	appendPattern := func(pattern []byte, n int) {
		for i := 0; i < n; i++ {
			want = append(want, pattern[i%len(pattern)])
		}
	}
	appendPattern(head, largeDataHeadSize)
	appendPattern(body, largeDataBodySize)
	appendPattern(end, largeDataEndSize)
	if len(got) != len(want) {
		return fmt.Errorf("unexpected file size: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("content mismatch at offset %d: got %#x, want %#x", i, got[i], want[i])
		}
	}
	return nil
}
