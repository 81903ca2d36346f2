package txn

import (
	"net"
	"testing"

	"github.com/mod/kadcore/identifier"
	"github.com/mod/kadcore/routing"
)

type fakeTree struct {
	nodes map[identifier.ID]*routing.Node
}

func newFakeTree() *fakeTree { return &fakeTree{nodes: map[identifier.ID]*routing.Node{}} }

func (f *fakeTree) ClosestTo(target identifier.ID, maxNodes int) []*routing.Node {
	var out []*routing.Node
	for _, n := range f.nodes {
		out = append(out, n)
	}
	if len(out) > maxNodes {
		out = out[:maxNodes]
	}
	return out
}

func (f *fakeTree) Add(n *routing.Node)                   { f.nodes[n.ID] = n }
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

type fakeSender struct {
	sent []sentMsg
}

type sentMsg struct {
	peer    *routing.Node
	txid    uint32
	msgtype byte
	content []byte
}

func (s *fakeSender) SendExternal(n *routing.Node, txid uint32, msgtype byte, content []byte) {
	s.sent = append(s.sent, sentMsg{n, txid, msgtype, content})
}

type fakeVerifier struct{ tree *fakeTree }

func (v *fakeVerifier) VerifyPeer(addr net.IP, port uint16, id identifier.ID) *routing.Node {
	if n := v.tree.GetByID(id); n != nil {
		return n
	}
	return routing.New(addr, port, id)
}

func TestFindNodesQuerySendsUpToAlpha(t *testing.T) {
	tree := newFakeTree()
	for i := 0; i < 5; i++ {
		id := identifier.Random()
		tree.Add(routing.New(net.ParseIP("10.0.0.1"), 9000, id))
	}
	sender := &fakeSender{}
	fn := NewFindNodes(1, identifier.Random(), 8, tree, sender, &fakeVerifier{tree}, nil)
	fn.Query()

	if len(sender.sent) != Alpha {
		t.Fatalf("sent %d queries, want %d (alpha)", len(sender.sent), Alpha)
	}
	if fn.Terminal() {
		t.Fatal("lookup should not be terminal right after Query with outstanding peers")
	}
}

func TestFindNodesExhaustsWithFewerThanAlpha(t *testing.T) {
	tree := newFakeTree()
	id := identifier.Random()
	tree.Add(routing.New(net.ParseIP("10.0.0.1"), 9000, id))
	sender := &fakeSender{}
	var calledBack []*routing.Node
	fn := NewFindNodes(1, identifier.Random(), 8, tree, sender, &fakeVerifier{tree}, func(n []*routing.Node) {
		calledBack = n
	})
	fn.Query()
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d queries, want 1", len(sender.sent))
	}

	// respond with no further peers; outstanding empties, unqueried empty -> exhausted
	peer := tree.GetByID(sender.sent[0].peer.ID)
	fn.HandleResponse(peer, nil)
	if !fn.Terminal() {
		t.Fatal("expected lookup to be exhausted after sole peer responded with no new refs")
	}
	if calledBack == nil {
		t.Fatal("expected callback to fire on exhaustion")
	}
}

func TestFindNodesIgnoresUnsolicitedResponse(t *testing.T) {
	tree := newFakeTree()
	sender := &fakeSender{}
	fn := NewFindNodes(1, identifier.Random(), 8, tree, sender, &fakeVerifier{tree}, nil)
	fn.Query() // no peers known, exhausts immediately
	if !fn.Terminal() {
		t.Fatal("expected immediate exhaustion with empty routing tree")
	}

	stray := routing.New(net.ParseIP("10.0.0.9"), 9001, identifier.Random())
	fn.HandleResponse(stray, nil) // should be a no-op, not panic
}

func TestFindNodesTimeoutIdempotent(t *testing.T) {
	tree := newFakeTree()
	tree.Add(routing.New(net.ParseIP("10.0.0.1"), 9000, identifier.Random()))
	sender := &fakeSender{}
	fn := NewFindNodes(1, identifier.Random(), 8, tree, sender, &fakeVerifier{tree}, nil)
	fn.Query()
	fn.Timeout()
	if !fn.Terminal() {
		t.Fatal("expected timed_out to be terminal")
	}
	fn.Timeout() // must not panic or double-fire callback
}
