// Package anonssh implements the two SSH listening modes the daemon
// supports instead of (or in addition to) a bare TCP rsync:// socket:
// anonymous SSH, which accepts any client and exists only to wrap the
// rsync session in a transport tridge rsync's firewall rules already
// allow, and authorized-SSH, which checks the client's public key
// against an authorized_keys file before running anything. Adapted
// from the teacher's internal/anonssh call sites in internal/maincmd;
// the teacher's own source for this package was not present in the
// retrieval pack, so the session plumbing below is built directly
// against golang.org/x/crypto/ssh's server API.
package anonssh

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/shlex"
	"golang.org/x/crypto/ssh"

	"github.com/oferchen/rsync-sub017/internal/daemonconfig"
	"github.com/oferchen/rsync-sub017/internal/rsyncos"
)

// Listener wraps an SSH server configuration good for either the
// anonymous or the authorized-keys listener mode.
type Listener struct {
	config *ssh.ServerConfig
}

// ListenerFromConfig builds a Listener for the given daemon listener
// configuration. When AuthorizedSSH.AuthorizedKeys is set, client
// public keys are checked against that file; otherwise any client key
// (or none, for password-less anonymous access) is accepted.
func ListenerFromConfig(osenv *rsyncos.Env, l daemonconfig.Listener) (*Listener, error) {
	signer, err := ephemeralHostKey()
	if err != nil {
		return nil, fmt.Errorf("anonssh: generating host key: %v", err)
	}

	cfg := &ssh.ServerConfig{
		NoClientAuth: l.AuthorizedSSH.AuthorizedKeys == "",
	}
	if l.AuthorizedSSH.AuthorizedKeys != "" {
		allowed, err := loadAuthorizedKeys(l.AuthorizedSSH.AuthorizedKeys)
		if err != nil {
			return nil, err
		}
		cfg.NoClientAuth = false
		cfg.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			marshaled := string(key.Marshal())
			if _, ok := allowed[marshaled]; !ok {
				return nil, fmt.Errorf("unauthorized public key for %q", conn.User())
			}
			return nil, nil
		}
	}
	cfg.AddHostKey(signer)

	return &Listener{config: cfg}, nil
}

func loadAuthorizedKeys(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool)
	for len(data) > 0 {
		pk, _, _, rest, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			break
		}
		allowed[string(pk.Marshal())] = true
		data = rest
	}
	return allowed, nil
}

func ephemeralHostKey() (ssh.Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return ssh.NewSignerFromKey(key)
}

// Handler is invoked once per accepted SSH "exec" request, with the
// shell-split command line and the session channel's three streams.
type Handler func(args []string, stdin io.Reader, stdout, stderr io.Writer) error

// Serve accepts connections on ln, performs the SSH handshake using
// listener's configuration, and for every exec request on every
// session channel runs handle. Serve returns when ctx is canceled or
// ln.Accept fails.
func Serve(ctx context.Context, osenv *rsyncos.Env, ln net.Listener, listener *Listener, cfg *daemonconfig.Config, handle Handler) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go func() {
			if err := serveConn(conn, listener, handle); err != nil {
				osenv.Logf("anonssh: %v", err)
			}
		}()
	}
}

func serveConn(conn net.Conn, listener *Listener, handle Handler) error {
	defer conn.Close()
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, listener.config)
	if err != nil {
		return fmt.Errorf("ssh handshake: %v", err)
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			return fmt.Errorf("accepting channel: %v", err)
		}
		go serveSession(ch, requests, handle)
	}
	return nil
}

func serveSession(ch ssh.Channel, requests <-chan *ssh.Request, handle Handler) {
	defer ch.Close()
	for req := range requests {
		if req.Type != "exec" {
			req.Reply(false, nil)
			continue
		}
		// The payload is a length-prefixed command string (RFC 4254 §6.5).
		var cmdline struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &cmdline); err != nil {
			req.Reply(false, nil)
			continue
		}
		req.Reply(true, nil)

		args, err := shlex.Split(cmdline.Command)
		if err != nil {
			fmt.Fprintf(ch.Stderr(), "anonssh: %v\n", err)
			ch.SendRequest("exit-status", false, exitStatusPayload(1))
			return
		}
		err = handle(args, ch, ch, ch.Stderr())
		status := 0
		if err != nil {
			fmt.Fprintf(ch.Stderr(), "anonssh: %v\n", err)
			status = 1
		}
		ch.SendRequest("exit-status", false, exitStatusPayload(status))
		return
	}
}

func exitStatusPayload(status int) []byte {
	return ssh.Marshal(struct{ Status uint32 }{uint32(status)})
}
