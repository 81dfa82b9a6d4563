package heartbeat

import (
	"context"
	"testing"
	"time"

	"boardcode-go/bus"
)

func TestHeartbeat_PublishesSequence(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("heartbeat")
	tc := b.NewConnection("test")

	sub := tc.Subscribe(bus.T("board", "heartbeat"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := &Service{}
	if err := svc.Start(ctx, conn); err != nil {
		t.Fatal(err)
	}

	var last int
	for i := 0; i < 2; i++ {
		select {
		case m := <-sub.Channel():
			p, ok := m.Payload.(map[string]any)
			if !ok {
				t.Fatalf("payload type %T", m.Payload)
			}
			seq, ok := p["seq"].(int)
			if !ok || seq <= last {
				t.Fatalf("bad sequence: %#v after %d", p["seq"], last)
			}
			last = seq
		case <-time.After(3 * time.Second):
			t.Fatal("no heartbeat within 3s")
		}
	}
}
