package sender

import (
	"strings"

	"github.com/oferchen/rsync-sub017/internal/filter"
	"github.com/oferchen/rsync-sub017/internal/rsyncwire"
)

// FilterList is the exclusion/filter rule list a peer sends right
// after the initial handshake, before the file list (spec.md §4.10).
type FilterList struct {
	Filters []string
	Engine  *filter.Engine
}

// RecvFilterList reads a list of varint-length-prefixed filter rule
// strings, ended by a zero-length entry, and compiles them into an
// Engine.
func RecvFilterList(c *rsyncwire.Conn) (*FilterList, error) {
	var lines []string
	for {
		n, err := rsyncwire.ReadVarint(c.Reader)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		buf, err := c.ReadN(int(n))
		if err != nil {
			return nil, err
		}
		lines = append(lines, strings.TrimRight(string(buf), "\n"))
	}

	rules := make([]*filter.Rule, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		r, err := filter.Parse(line)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	engine, err := filter.New(rules)
	if err != nil {
		return nil, err
	}
	return &FilterList{Filters: lines, Engine: engine}, nil
}

// SendFilterList sends filters in the wire format RecvFilterList
// reads, terminated by a zero-length entry.
func SendFilterList(c *rsyncwire.Conn, filters []string) error {
	for _, f := range filters {
		line := f + "\n"
		if err := rsyncwire.WriteVarint(c.Writer, int64(len(line))); err != nil {
			return err
		}
		if err := c.WriteString(line); err != nil {
			return err
		}
	}
	return rsyncwire.WriteVarint(c.Writer, 0)
}
