package filelist

import (
	"bytes"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func roundTrip(t *testing.T, entries []*Entry, trustSender bool) []*Entry {
	t.Helper()
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	dec := NewDecoder(&buf, trustSender)
	var got []*Entry
	for {
		e, err := dec.Decode()
		if err != nil {
			t.Fatal(err)
		}
		if e == nil {
			break
		}
		got = append(got, e)
	}
	return got
}

func TestCodecRoundTrip(t *testing.T) {
	entries := []*Entry{
		{Path: "a", Length: 10, ModSec: 1000, Mode: 0o644, UID: 1, GID: 1, ACLIndex: -1, XattrIndex: -1},
		{Path: "a/b", Length: 20, ModSec: 1000, Mode: 0o644, UID: 1, GID: 1, ACLIndex: -1, XattrIndex: -1},
		{Path: "a/c", Length: 0, ModSec: 2000, Mode: os.ModeDir | 0o755, UID: 2, GID: 2, ACLIndex: -1, XattrIndex: -1},
		{Path: "a/link", Mode: os.ModeSymlink | 0o777, LinkTarget: "b", UID: 2, GID: 2, ACLIndex: -1, XattrIndex: -1},
	}

	got := roundTrip(t, entries, false)
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i, want := range entries {
		if diff := cmp.Diff(*want, *got[i]); diff != "" {
			t.Errorf("entry %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestCodecNameCompressionSharesPrefix(t *testing.T) {
	entries := []*Entry{
		{Path: "dir/subdir/one.txt", Mode: 0o644, ACLIndex: -1, XattrIndex: -1},
		{Path: "dir/subdir/two.txt", Mode: 0o644, ACLIndex: -1, XattrIndex: -1},
	}
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			t.Fatal(err)
		}
	}
	enc.Close()

	got := roundTrip(t, entries, false)
	if got[1].Path != "dir/subdir/two.txt" {
		t.Errorf("second entry path = %q, want %q", got[1].Path, "dir/subdir/two.txt")
	}
}

func TestCodecHardlinkedEntry(t *testing.T) {
	entries := []*Entry{
		{Path: "orig", Mode: 0o644, ACLIndex: -1, XattrIndex: -1},
		{Path: "link", Mode: 0o644, Hardlinked: true, HardlinkTargetIndex: 0, ACLIndex: -1, XattrIndex: -1},
	}
	got := roundTrip(t, entries, false)
	if !got[1].Hardlinked || got[1].HardlinkTargetIndex != 0 {
		t.Errorf("hardlink metadata lost: %+v", got[1])
	}
}

func TestValidatePathRejectsTraversal(t *testing.T) {
	cases := []struct {
		path    string
		wantErr bool
	}{
		{"a/b/c", false},
		{"../escape", true},
		{"a/../b", true},
		{"/absolute", true},
		{"a\\b", false},
	}
	for _, c := range cases {
		err := ValidatePath(c.path)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidatePath(%q) error = %v, wantErr %v", c.path, err, c.wantErr)
		}
	}
}

func TestDecodeRejectsUntrustedTraversal(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.Encode(&Entry{Path: "../escape", Mode: 0o644, ACLIndex: -1, XattrIndex: -1}); err != nil {
		t.Fatal(err)
	}
	enc.Close()

	dec := NewDecoder(&buf, false)
	if _, err := dec.Decode(); err == nil {
		t.Fatal("expected path validation error")
	}
}
