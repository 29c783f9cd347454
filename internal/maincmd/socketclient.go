package maincmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	rsync "github.com/oferchen/rsync-sub017"
	"github.com/oferchen/rsync-sub017/internal/rsyncopts"
	"github.com/oferchen/rsync-sub017/internal/rsyncos"
	"github.com/oferchen/rsync-sub017/internal/rsyncstats"
)

// serverOptions reconstructs the flag subset the local process needs
// the remote "--server" invocation to agree on. tridge rsync
// serializes its full option struct; we only forward the handful of
// flags that change wire behavior, which is all a Go peer checks.
func serverOptions(opts *rsyncopts.Options) []string {
	args := []string{"--server"}
	if opts.Sender() {
		args = append(args, "--sender")
	}
	if opts.Verbose() {
		args = append(args, "-v")
	}
	if opts.DryRun() {
		args = append(args, "-n")
	}
	if opts.Recurse() {
		args = append(args, "-r")
	}
	if opts.PreserveLinks() {
		args = append(args, "-l")
	}
	if opts.PreservePerms() {
		args = append(args, "-p")
	}
	if opts.PreserveMTimes() {
		args = append(args, "-t")
	}
	if opts.PreserveUid() {
		args = append(args, "-o")
	}
	if opts.PreserveGid() {
		args = append(args, "-g")
	}
	if opts.PreserveDevices() {
		args = append(args, "-D")
	}
	if opts.PreserveSpecials() {
		args = append(args, "--specials")
	}
	if opts.PreserveHardLinks() {
		args = append(args, "-H")
	}
	if opts.DeleteMode() {
		args = append(args, "--delete")
	}
	if opts.AlwaysChecksum() {
		args = append(args, "-c")
	}
	return args
}

// greetDaemon performs the client side of the @RSYNCD: handshake: it
// sends our greeting and the requested module, then reads back either
// an error, a module listing, or the "@RSYNCD: OK" termination line
// before forwarding the parsed flags.
func greetDaemon(osenv *rsyncos.Env, opts *rsyncopts.Options, conn io.ReadWriter, module, path string) (*bufio.Reader, bool, error) {
	rd := bufio.NewReader(conn)

	if _, err := fmt.Fprintf(conn, "@RSYNCD: %d\n", rsync.ProtocolVersion); err != nil {
		return nil, false, err
	}

	serverGreeting, err := rd.ReadString('\n')
	if err != nil {
		return nil, false, err
	}
	if !strings.HasPrefix(serverGreeting, "@RSYNCD: ") {
		return nil, false, fmt.Errorf("invalid server greeting: got %q", serverGreeting)
	}

	if module == "" {
		module = "#list"
	}
	if _, err := io.WriteString(conn, module+"\n"); err != nil {
		return nil, false, err
	}

	if module == "#list" {
		for {
			line, err := rd.ReadString('\n')
			if err != nil {
				return nil, false, err
			}
			line = strings.TrimRight(line, "\n")
			if line == "@RSYNCD: EXIT" {
				return nil, true, nil
			}
			fmt.Fprintln(osenv.Stdout, line)
		}
	}

	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return nil, false, err
		}
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "@ERROR") {
			return nil, false, fmt.Errorf("%s", line)
		}
		if line == "@RSYNCD: OK" {
			break
		}
		// Otherwise this is a pre-transfer MOTD line; pass it through.
		if line != "" {
			fmt.Fprintln(osenv.Stdout, line)
		}
	}

	for _, arg := range serverOptions(opts) {
		if _, err := io.WriteString(conn, arg+"\n"); err != nil {
			return nil, false, err
		}
	}
	if _, err := io.WriteString(conn, "\n"); err != nil {
		return nil, false, err
	}

	return rd, false, nil
}

// socketClient handles "rsync://host/module/path" and "host::module/path"
// transfers, which connect directly to a listening rsync daemon instead
// of spawning a remote shell.
func socketClient(ctx context.Context, osenv *rsyncos.Env, opts *rsyncopts.Options, host, path string, port int, other string) (*rsyncstats.TransferStats, error) {
	_ = ctx // not implemented: no cancellation plumbed into the dial or transfer yet
	if port == 0 {
		port = defaultDaemonPort
	}
	module := path
	if idx := strings.IndexByte(module, '/'); idx > -1 {
		module = module[:idx]
	}

	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rd, done, err := greetDaemon(osenv, opts, conn, module, path)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}

	rw := &readWriter{r: rd, w: conn}
	return clientRun(osenv, opts, rw, []string{other}, false)
}

// startInbandExchange performs the same handshake as socketClient, but
// over a connection that a remote shell already established to a
// daemon listening for "rsync --server --daemon" (rsync's "daemon via
// remote shell" mode). conn's reader is repointed at the buffered
// reader greetDaemon primed, so no greeted-ahead bytes are lost.
func startInbandExchange(osenv *rsyncos.Env, opts *rsyncopts.Options, conn *readWriter, module, path string) (bool, error) {
	rd, done, err := greetDaemon(osenv, opts, conn, module, path)
	if err != nil {
		return false, err
	}
	if done {
		return true, nil
	}
	conn.r = rd
	return false, nil
}
