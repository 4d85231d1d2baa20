package transport

import "testing"

func TestLoopbackRoundTrip(t *testing.T) {
	client, server := NewLoopbackPair()
	if err := client.Send([]byte("hello"), server.self); err != nil {
		t.Fatal(err)
	}
	data, from, ok := server.Recv()
	if !ok || string(data) != "hello" {
		t.Fatalf("expected hello, got %q ok=%v", data, ok)
	}
	if from != client.self {
		t.Fatalf("expected from=client, got %v", from)
	}
	if _, _, ok := server.Recv(); ok {
		t.Fatal("expected empty inbox after drain")
	}
}

func TestLoopbackConnectedPeers(t *testing.T) {
	client, server := NewLoopbackPair()
	peers := client.ConnectedPeers()
	if len(peers) != 1 || peers[0] != server.self {
		t.Fatalf("unexpected peers: %+v", peers)
	}
}
