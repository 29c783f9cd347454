package acl

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeAccessRoundTrip(t *testing.T) {
	access := uint32(0x07) | nameIsUser
	encoded := encodeAccess(access, false)
	decoded, nameFollows := decodeAccess(encoded, true)
	if decoded&^nameIsUser != access&^nameIsUser {
		t.Errorf("decoded access = %#x, want %#x", decoded&^nameIsUser, access&^nameIsUser)
	}
	if decoded&nameIsUser == 0 {
		t.Error("expected nameIsUser bit set")
	}
	if nameFollows {
		t.Error("did not request a name, but nameFollows was true")
	}

	access2 := uint32(0x05)
	encoded2 := encodeAccess(access2, true)
	decoded2, nameFollows2 := decodeAccess(encoded2, true)
	if decoded2 != access2 {
		t.Errorf("decoded2 = %#x, want %#x", decoded2, access2)
	}
	if !nameFollows2 {
		t.Error("expected nameFollows to be true")
	}
}

func TestSendRecvEmptyACL(t *testing.T) {
	acl := NewRsyncACL()
	cache := NewCache()
	var buf bytes.Buffer

	if err := WriteACL(&buf, acl, KindAccess, cache); err != nil {
		t.Fatal(err)
	}
	res, err := ReadACL(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheHit {
		t.Fatal("expected a literal ACL, got a cache hit")
	}
	if !res.Literal.IsEmpty() {
		t.Errorf("expected empty literal, got %+v", res.Literal)
	}
}

func TestSendRecvACLWithEntries(t *testing.T) {
	acl := RsyncACL{UserObj: 0x07, GroupObj: 0x05, OtherObj: 0x04, MaskObj: NoEntry}
	cache := NewCache()
	var buf bytes.Buffer

	if err := WriteACL(&buf, acl, KindAccess, cache); err != nil {
		t.Fatal(err)
	}
	res, err := ReadACL(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheHit {
		t.Fatal("expected a literal ACL")
	}
	if res.Literal.UserObj != 0x07 || res.Literal.GroupObj != 0x05 || res.Literal.OtherObj != 0x04 {
		t.Errorf("literal = %+v", res.Literal)
	}
	if res.Literal.MaskObj != NoEntry {
		t.Errorf("MaskObj = %#x, want NoEntry", res.Literal.MaskObj)
	}
}

func TestCacheHitOnSecondSend(t *testing.T) {
	acl := RsyncACL{UserObj: 0x07, GroupObj: NoEntry, MaskObj: NoEntry, OtherObj: NoEntry}
	cache := NewCache()

	var first bytes.Buffer
	if err := WriteACL(&first, acl, KindAccess, cache); err != nil {
		t.Fatal(err)
	}
	firstLen := first.Len()

	var second bytes.Buffer
	if err := WriteACL(&second, acl, KindAccess, cache); err != nil {
		t.Fatal(err)
	}
	if second.Len() >= firstLen {
		t.Errorf("cache hit encoding (%d bytes) should be shorter than literal (%d bytes)", second.Len(), firstLen)
	}

	res, err := ReadACL(&second)
	if err != nil {
		t.Fatal(err)
	}
	if !res.CacheHit || res.CacheIndex != 0 {
		t.Errorf("expected CacheHit at index 0, got %+v", res)
	}
}

func TestSendRecvIDAccessListRoundTrip(t *testing.T) {
	entries := []IDAccess{
		NewUserIDAccess(1000, 0x07),
		NewGroupIDAccess(100, 0x05),
	}
	var buf bytes.Buffer
	if err := WriteIDAccessList(&buf, entries); err != nil {
		t.Fatal(err)
	}
	received, mask, err := ReadIDAccessList(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(received) != 2 {
		t.Fatalf("got %d entries, want 2", len(received))
	}
	if mask != 0x07 {
		t.Errorf("mask = %#x, want 0x07 (OR of all permissions)", mask)
	}
}

func TestSendRecvDirectoryACLs(t *testing.T) {
	access := RsyncACL{UserObj: 0x07, GroupObj: 0x05, OtherObj: 0x05, MaskObj: NoEntry}
	deflt := RsyncACL{UserObj: 0x07, GroupObj: 0x05, OtherObj: 0x00, MaskObj: NoEntry}

	cache := NewCache()
	var buf bytes.Buffer
	if err := WriteFileACLs(&buf, access, deflt, true, cache); err != nil {
		t.Fatal(err)
	}

	accessRes, defltRes, err := ReadFileACLs(&buf, true)
	if err != nil {
		t.Fatal(err)
	}
	if accessRes.CacheHit {
		t.Error("expected literal access ACL")
	}
	if defltRes.CacheHit {
		t.Error("expected literal default ACL")
	}
	if defltRes.Literal.OtherObj != 0x00 {
		t.Errorf("default OtherObj = %#x, want 0", defltRes.Literal.OtherObj)
	}
}

func TestAccessAndDefaultCachesAreIndependent(t *testing.T) {
	acl := RsyncACL{UserObj: 0x07, GroupObj: NoEntry, MaskObj: NoEntry, OtherObj: NoEntry}
	cache := NewCache()

	var buf bytes.Buffer
	if err := WriteACL(&buf, acl, KindAccess, cache); err != nil {
		t.Fatal(err)
	}
	// Same ACL content sent as a default ACL should NOT hit the access
	// cache, since the two streams are deduplicated independently.
	var buf2 bytes.Buffer
	if err := WriteACL(&buf2, acl, KindDefault, cache); err != nil {
		t.Fatal(err)
	}
	res, err := ReadACL(&buf2)
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheHit {
		t.Error("default ACL should not hit the access cache on its first send")
	}
}
