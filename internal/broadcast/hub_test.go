package broadcast

import "testing"

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case m := <-ch:
			out = append(out, string(m))
		default:
			return out
		}
	}
}

func TestPublishOrderAndExcept(t *testing.T) {
	h := NewHub()
	a := make(chan []byte, 4)
	b := make(chan []byte, 4)
	h.Register("a", a)
	h.Register("b", b)
	h.Subscribe("race:1", "a")
	h.Subscribe("race:1", "b")

	h.Publish("race:1", []byte("one"))
	h.PublishExcept("race:1", "a", []byte("two"))

	if got := drain(a); len(got) != 1 || got[0] != "one" {
		t.Fatalf("a got %v", got)
	}
	if got := drain(b); len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("b got %v", got)
	}
}

func TestSendFullBufferDrops(t *testing.T) {
	h := NewHub()
	drops := 0
	h.OnDrop(func() { drops++ })
	ch := make(chan []byte, 1)
	h.Register("a", ch)
	if !h.Send("a", []byte("x")) {
		t.Fatal("first send failed")
	}
	if h.Send("a", []byte("y")) {
		t.Fatal("send into full buffer reported success")
	}
	if drops != 1 {
		t.Fatalf("drops = %d, want 1", drops)
	}
	if h.Send("missing", []byte("z")) {
		t.Fatal("send to unknown session reported success")
	}
}

func TestSendClosedChannel(t *testing.T) {
	h := NewHub()
	ch := make(chan []byte, 1)
	h.Register("a", ch)
	close(ch)
	if h.Send("a", []byte("x")) {
		t.Fatal("send on closed channel reported success")
	}
}

func TestUnregisterLeavesGroups(t *testing.T) {
	h := NewHub()
	h.Register("a", make(chan []byte, 1))
	h.Subscribe("g", "a")
	h.Unregister("a")
	if h.Members("g") != 0 {
		t.Fatal("unregistered session still in group")
	}
	h.Register("b", make(chan []byte, 1))
	h.Subscribe("g", "b")
	h.DropGroup("g")
	if h.Members("g") != 0 {
		t.Fatal("group survived DropGroup")
	}
}

func TestBroadcastReachesAll(t *testing.T) {
	h := NewHub()
	a := make(chan []byte, 1)
	b := make(chan []byte, 1)
	h.Register("a", a)
	h.Register("b", b)
	h.Broadcast([]byte("hi"))
	if len(drain(a)) != 1 || len(drain(b)) != 1 {
		t.Fatal("broadcast missed a session")
	}
}
