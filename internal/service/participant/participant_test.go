package participant

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/lms/internal/domain"
	"github.com/vladislavdragonenkov/lms/internal/storage/memory"
)

func TestFarm_RespondsToReceivedOrder(t *testing.T) {
	t.Parallel()

	farm := NewFarm("Green Farm")

	reply := farm.Respond("RECEIVED_ORDER | Supervisor -> Green Farm: Create an order abc123 with price 2.5 and quantity 3.")

	if !strings.HasPrefix(reply, "HANDOVER_TO_SHIPPER | Green Farm -> Shipper:") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if !strings.Contains(reply, "abc123") {
		t.Fatalf("reply should carry the order id: %q", reply)
	}
	if !strings.Contains(reply, "Prepared shipment and documentation.") {
		t.Fatalf("reply should carry transition details: %q", reply)
	}
}

func TestFarm_IdleOnOtherStatuses(t *testing.T) {
	t.Parallel()

	farm := NewFarm("Green Farm")

	for _, text := range []string{
		"HANDOVER_TO_SHIPPER | Green Farm -> Shipper: Order abc handed off.",
		"DELIVERED | Shipper -> Supervisor: Order abc delivered successfully.",
		"unrelated chatter",
	} {
		reply := farm.Respond(text)
		if reply != "Logistic Farm remains IDLE. No further action required." {
			t.Fatalf("expected idle reply for %q, got %q", text, reply)
		}
	}
}

func TestShipper_TwoTransitions(t *testing.T) {
	t.Parallel()

	shipper := NewShipper()

	customs := shipper.Respond("HANDOVER_TO_SHIPPER | Green Farm -> Shipper: Order abc123 handed off for international transit.")
	if !strings.HasPrefix(customs, "CUSTOMS_CLEARANCE | Shipper -> Accountant:") {
		t.Fatalf("unexpected customs reply: %q", customs)
	}

	delivered := shipper.Respond("PAYMENT_COMPLETE | Accountant -> Shipper: Payment confirmed on order abc123; preparing final delivery.")
	if !strings.HasPrefix(delivered, "DELIVERED | Shipper -> Supervisor:") {
		t.Fatalf("unexpected delivery reply: %q", delivered)
	}
}

func TestAccountant_ConfirmsPayment(t *testing.T) {
	t.Parallel()

	accountant := NewAccountant()

	reply := accountant.Respond("CUSTOMS_CLEARANCE | Shipper -> Accountant: Customs cleared for order abc123; documents forwarded for payment processing.")
	if !strings.HasPrefix(reply, "PAYMENT_COMPLETE | Accountant -> Shipper:") {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestObserver_RecordsAndStaysIdle(t *testing.T) {
	t.Parallel()

	store := memory.NewEventStore()
	observer := NewObserver(store)

	reply := observer.Respond("HANDOVER_TO_SHIPPER | Green Farm -> Shipper: Order abc123 handed off for international transit.")
	if !strings.Contains(strings.ToLower(reply), "idle") {
		t.Fatalf("observer must stay idle, got %q", reply)
	}

	events, err := store.Get("abc123")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("observer should record one event, got %d", len(events))
	}
	if events[0].State != domain.StateHandoverToShipper {
		t.Fatalf("unexpected recorded state: %s", events[0].State)
	}
}

func TestObserver_IgnoresMalformed(t *testing.T) {
	t.Parallel()

	store := memory.NewEventStore()
	observer := NewObserver(store)

	_ = observer.Respond("just chatter without grammar")

	if _, ok := store.LatestOrder(); ok {
		t.Fatal("malformed text should not be recorded")
	}
}

func TestLoopback_FullConversation(t *testing.T) {
	t.Parallel()

	dialer := NewLoopbackDialer(map[string]Responder{
		"farm":       NewFarm("Green Farm"),
		"shipper":    NewShipper(),
		"accountant": NewAccountant(),
	}, nil)

	session, err := dialer.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer session.Close()

	init := "RECEIVED_ORDER | Supervisor -> Green Farm: Create an order abc123 with price 2.5 and quantity 3."
	replies, err := session.Broadcast(context.Background(), init, []string{"shipper", "farm", "accountant"}, "DELIVERED", 5*time.Second)
	if err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}

	var nonIdle []string
	for _, reply := range replies {
		if !strings.Contains(strings.ToLower(reply.Text), "idle") {
			nonIdle = append(nonIdle, reply.Text)
		}
	}

	if len(nonIdle) != 4 {
		t.Fatalf("expected 4 lifecycle replies, got %d: %v", len(nonIdle), nonIdle)
	}
	wantPrefixes := []string{
		"HANDOVER_TO_SHIPPER |",
		"CUSTOMS_CLEARANCE |",
		"PAYMENT_COMPLETE |",
		"DELIVERED |",
	}
	for i, prefix := range wantPrefixes {
		if !strings.HasPrefix(nonIdle[i], prefix) {
			t.Fatalf("reply %d should start with %q, got %q", i, prefix, nonIdle[i])
		}
	}

	last := replies[len(replies)-1]
	if !strings.Contains(last.Text, "DELIVERED") {
		t.Fatalf("conversation should stop at the end marker, last reply %q", last.Text)
	}
}

func TestLoopback_UnknownRecipientIgnored(t *testing.T) {
	t.Parallel()

	dialer := NewLoopbackDialer(map[string]Responder{
		"shipper": NewShipper(),
	}, nil)

	session, err := dialer.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer session.Close()

	replies, err := session.Broadcast(context.Background(), "RECEIVED_ORDER | Supervisor -> Farm: Create an order abc.", []string{"shipper", "ghost"}, "DELIVERED", time.Second)
	if err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}

	// Только shipper отвечает; беседа затухает на IDLE.
	if len(replies) != 1 {
		t.Fatalf("expected single reply, got %d", len(replies))
	}
	if !strings.Contains(strings.ToLower(replies[0].Text), "idle") {
		t.Fatalf("unexpected reply: %q", replies[0].Text)
	}
}

func TestLoopback_ContextCancelStopsStream(t *testing.T) {
	t.Parallel()

	dialer := NewLoopbackDialer(map[string]Responder{
		"farm":       NewFarm("Green Farm"),
		"shipper":    NewShipper(),
		"accountant": NewAccountant(),
	}, nil)

	session, err := dialer.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())

	stream, err := session.BroadcastStream(ctx, "RECEIVED_ORDER | Supervisor -> Green Farm: Create an order abc.", []string{"shipper", "farm", "accountant"}, "DELIVERED", 5*time.Second)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	// Забираем один ответ и отменяем: канал обязан закрыться.
	<-stream
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-stream:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after context cancel")
		}
	}
}
