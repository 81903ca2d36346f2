package messaging

import (
	"net"
	"testing"
	"time"

	"github.com/mod/kadcore/identifier"
	"github.com/mod/kadcore/routing"
	"github.com/mod/kadcore/txn"
)

type fakeTree struct{ nodes map[identifier.ID]*routing.Node }

func newFakeTree() *fakeTree { return &fakeTree{nodes: map[identifier.ID]*routing.Node{}} }

func (f *fakeTree) ClosestTo(target identifier.ID, max int) []*routing.Node {
	var out []*routing.Node
	for _, n := range f.nodes {
		out = append(out, n)
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}
func (f *fakeTree) Add(n *routing.Node)                    { f.nodes[n.ID] = n }
func (f *fakeTree) GetByID(id identifier.ID) *routing.Node { return f.nodes[id] }
func (f *fakeTree) AllNodes() []*routing.Node {
	out := make([]*routing.Node, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n)
	}
	return out
}
func (f *fakeTree) Remove(id identifier.ID) *routing.Node {
	n := f.nodes[id]
	delete(f.nodes, id)
	return n
}

type fakeSender struct{ count int }

func (s *fakeSender) SendExternal(n *routing.Node, txid uint32, msgtype byte, content []byte) {
	s.count++
}

func TestDiscoveryPingHandler(t *testing.T) {
	local := routing.NewLocal(net.ParseIP("127.0.0.1"), 9000, identifier.Random(), [32]byte{})
	tree := newFakeTree()
	sender := &fakeSender{}
	r := NewDiscoveryRegistry(DiscoveryDeps{
		Local: local, Tree: tree, TxMap: txn.NewTxMap(), Sender: sender,
		StartFindNodes: func(identifier.ID) uint32 { return 1 },
		StartPing:      func(*routing.Node) {},
	})
	peer := routing.New(net.ParseIP("10.0.0.2"), 9001, identifier.Random())
	msgtype, content, ok := r.HandlePeer(peer, MsgPing, 5, nil)
	if !ok || msgtype != MsgPong || content != nil {
		t.Fatalf("PING handler = (%v, %v, %v), want (PONG, nil, true)", msgtype, content, ok)
	}
}

func TestDiscoveryFindNodesHandler(t *testing.T) {
	local := routing.NewLocal(net.ParseIP("127.0.0.1"), 9000, identifier.Random(), [32]byte{})
	tree := newFakeTree()
	tree.Add(routing.New(net.ParseIP("10.0.0.3"), 9002, identifier.Random()))
	r := NewDiscoveryRegistry(DiscoveryDeps{
		Local: local, Tree: tree, TxMap: txn.NewTxMap(), Sender: &fakeSender{},
		StartFindNodes: func(identifier.ID) uint32 { return 1 },
		StartPing:      func(*routing.Node) {},
	})
	target := identifier.Random()
	msgtype, content, ok := r.HandlePeer(local, MsgFindNodes, 5, target[:])
	if !ok || msgtype != MsgNodeReply || len(content) == 0 {
		t.Fatalf("FNOD handler = (%v, len=%d, %v)", msgtype, len(content), ok)
	}
}

func TestHashtableStoreAndFetch(t *testing.T) {
	local := routing.NewLocal(net.ParseIP("127.0.0.1"), 9000, identifier.Random(), [32]byte{})
	tree := newFakeTree()
	store := NewValueStore()
	r := NewHashtableRegistry(HashtableDeps{
		Local: local, Tree: tree, Store: store, Sender: &fakeSender{},
		StartStoreValue: func(identifier.ID, []byte) {},
	})
	peer := routing.New(net.ParseIP("10.0.0.4"), 9003, identifier.Random())
	key := identifier.Random()
	body := append(append([]byte{}, key[:]...), []byte("payload")...)

	msgtype, _, ok := r.HandlePeer(peer, MsgStore, 1, body)
	if ok {
		t.Fatalf("STOR handler unexpectedly replied with msgtype %v", msgtype)
	}
	entry, found := store.Fetch(key)
	if !found || string(entry.Content) != "payload" {
		t.Fatalf("value not stored correctly: %+v", entry)
	}

	mt, content, ok := r.HandlePeer(peer, MsgFindValue, 2, key[:])
	if !ok || mt != MsgValueReply || string(content) != "payload" {
		t.Fatalf("FVAL handler = (%v, %q, %v)", mt, content, ok)
	}
}

func TestHashtableExpireValues(t *testing.T) {
	store := NewValueStore()
	key := identifier.Random()
	store.Store(key, []byte("v"), identifier.Random(), false, "")
	n := store.ExpireOlderThan(0, time.Now().Add(time.Hour))
	if n != 1 {
		t.Fatalf("ExpireOlderThan removed %d entries, want 1", n)
	}
	if _, ok := store.Fetch(key); ok {
		t.Fatal("expected entry to be expired")
	}
}
