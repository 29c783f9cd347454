// Command rsync-sub017 is a native Go rsync client and daemon,
// speaking the tridge/openrsync-compatible wire protocol.
package main

import (
	"context"
	"log"
	"os"

	"github.com/oferchen/rsync-sub017/internal/maincmd"
	"github.com/oferchen/rsync-sub017/internal/rsyncos"
)

func main() {
	osenv := &rsyncos.Env{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	if _, err := maincmd.Main(context.Background(), osenv, os.Args, nil); err != nil {
		log.Fatal(err)
	}
}
