package transport

import (
	"bytes"
	"crypto/rand"
	"testing"

	"golang.org/x/crypto/nacl/box"

	"github.com/mod/kadcore/identifier"
)

func genKeypair(t *testing.T) (pub, priv *[32]byte) {
	t.Helper()
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return pub, priv
}

func TestEncodeDecodePlaintext(t *testing.T) {
	id := identifier.Random()
	payload := []byte("hello")
	datagram, err := EncodePacket(id, ModePlaintext, payload, nil, nil)
	if err != nil {
		t.Fatalf("EncodePacket: %v", err)
	}
	pkt, err := DecodePacket(datagram, nil)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if pkt.SenderID != id || !bytes.Equal(pkt.Payload, payload) {
		t.Fatalf("round trip mismatch: got %+v", pkt)
	}
}

func TestEncodeDecodeEncrypted(t *testing.T) {
	senderPub, senderPriv := genKeypair(t)
	recipientPub, recipientPriv := genKeypair(t)

	var senderID identifier.ID
	copy(senderID[:], senderPub[:])

	payload := []byte("encrypted content")
	datagram, err := EncodePacket(senderID, ModeEncrypted, payload, senderPriv, recipientPub)
	if err != nil {
		t.Fatalf("EncodePacket: %v", err)
	}
	pkt, err := DecodePacket(datagram, recipientPriv)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if !bytes.Equal(pkt.Payload, payload) {
		t.Fatalf("decrypted payload = %q, want %q", pkt.Payload, payload)
	}
}

func TestDecodeTooShort(t *testing.T) {
	if _, err := DecodePacket(make([]byte, 10), nil); err != ErrTooShort {
		t.Fatalf("err = %v, want ErrTooShort", err)
	}
}

func TestFragmentRoundTripSmall(t *testing.T) {
	frames := EncodeFragments(42, 0x01, []byte("short"))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	f, err := DecodeFragment(frames[0])
	if err != nil {
		t.Fatalf("DecodeFragment: %v", err)
	}
	if f.TxID != 42 || f.Index != 0 || f.LastIndex != 0 || string(f.Content) != "short" {
		t.Fatalf("unexpected fragment: %+v", f)
	}
}

func TestFragmentRoundTripLarge(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 2500)
	frames := EncodeFragments(7, 0x03, content)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	var reassembled []byte
	for _, raw := range frames {
		f, err := DecodeFragment(raw)
		if err != nil {
			t.Fatalf("DecodeFragment: %v", err)
		}
		if f.LastIndex != 2 {
			t.Fatalf("LastIndex = %d, want 2", f.LastIndex)
		}
		reassembled = append(reassembled, f.Content...)
	}
	if !bytes.Equal(reassembled, content) {
		t.Fatal("reassembled content mismatch")
	}
}

func TestDefragMapOutOfOrder(t *testing.T) {
	content := bytes.Repeat([]byte("y"), 2500)
	frames := EncodeFragments(9, 0x03, content)
	d := NewDefragMap(16)

	// feed out of order: 2, 0, 1
	order := []int{2, 0, 1}
	var got []byte
	var done bool
	for _, i := range order {
		f, err := DecodeFragment(frames[i])
		if err != nil {
			t.Fatalf("DecodeFragment: %v", err)
		}
		got, done = d.Add(f)
	}
	if !done {
		t.Fatal("expected reassembly to complete")
	}
	if !bytes.Equal(got, content) {
		t.Fatal("reassembled content mismatch")
	}
	if d.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0 after completion", d.Pending())
	}
}

func TestDefragMapUnfragmentedBypassesSlot(t *testing.T) {
	d := NewDefragMap(16)
	f := &Fragment{TxID: 1, MsgType: 0x01, Index: 0, LastIndex: 0, Content: []byte("z")}
	got, done := d.Add(f)
	if !done || string(got) != "z" {
		t.Fatalf("got (%q, %v), want (\"z\", true)", got, done)
	}
	if d.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", d.Pending())
	}
}
