// Package rsyncclient exposes the rsync client role as a library: a
// caller supplies an io.ReadWriter already connected to a peer (an
// exec'd "rsync --server" subprocess, an in-process pipe, or a network
// socket speaking the protocol after the daemon handshake) and this
// package drives the sender or receiver role over it, the same way
// internal/maincmd's client path does for the "rsync" CLI.
package rsyncclient

import (
	"context"
	"io"
	"os"

	"github.com/oferchen/rsync-sub017/internal/maincmd"
	"github.com/oferchen/rsync-sub017/internal/rsyncopts"
	"github.com/oferchen/rsync-sub017/internal/rsyncos"
	"github.com/oferchen/rsync-sub017/internal/rsyncstats"
)

// Option configures a Client at construction time.
type Option func(*config)

type config struct {
	sender bool
	stderr io.Writer
}

// WithSender makes the client act as the sender (push) side of the
// transfer rather than the default receiver (pull) side.
func WithSender() Option {
	return func(c *config) { c.sender = true }
}

// WithStderr directs diagnostic logging to w instead of os.Stderr.
func WithStderr(w io.Writer) Option {
	return func(c *config) { c.stderr = w }
}

// Client drives one rsync client-side transfer, built from a popt(3)
// style argument vector identical to what the "rsync" CLI accepts
// (minus the SRC/DEST positional arguments, which Run takes
// separately since they depend on the caller's connection).
type Client struct {
	opts   *rsyncopts.Options
	stderr io.Writer
}

// New parses args (e.g. {"-av", "--delete"}) into a Client. Positional
// SRC/DEST arguments do not belong in args; they are supplied to Run.
func New(args []string, options ...Option) (*Client, error) {
	cfg := &config{stderr: os.Stderr}
	for _, opt := range options {
		opt(cfg)
	}
	pc, err := rsyncopts.ParseArguments(&rsyncos.Env{Stderr: cfg.stderr}, args)
	if err != nil {
		return nil, err
	}
	if cfg.sender {
		pc.Options.SetSender()
	}
	return &Client{opts: pc.Options, stderr: cfg.stderr}, nil
}

// Run drives the transfer over conn: paths is the receiver's
// destination directory (exactly one entry) when acting as receiver,
// or the sender's source directory when WithSender was used.
func (c *Client) Run(ctx context.Context, conn io.ReadWriter, paths []string) (*rsyncstats.TransferStats, error) {
	_ = ctx // not implemented: no cancellation plumbed into the wire loop yet
	osenv := &rsyncos.Env{Stderr: c.stderr}
	const negotiate = true
	return maincmd.ClientRun(osenv, c.opts, conn, paths, negotiate)
}
