package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/botforge/flowbot/internal/dedup"
	"github.com/botforge/flowbot/internal/gateway"
	"github.com/botforge/flowbot/internal/models"
	"github.com/botforge/flowbot/internal/store"
)

func newTestProcessor(t *testing.T) (*Processor, *gateway.FakeClient, *store.InMemoryStore) {
	t.Helper()
	client := gateway.NewFakeClient()
	st := store.NewInMemoryStore()
	flows := store.NewCachedFlows(st)
	guard := dedup.NewGuard()
	exec := NewExecutor("bot-a", client, st, nil)
	return NewProcessor("bot-a", client, flows, guard, exec), client, st
}

func keywordFlow(id string, priority int, keywords, reply string) models.Flow {
	return models.Flow{
		ID: id, BotID: "bot-a", Name: id, Enabled: true, Priority: priority,
		TriggerType:   models.TriggerKeywordMatch,
		TriggerConfig: models.TriggerConfig{Keywords: models.KeywordList{keywords}},
		Actions: []models.Action{
			{Type: models.ActionSendMessage, Message: &models.SendMessageConfig{Text: reply}},
		},
	}
}

func TestHandleEventEndToEnd(t *testing.T) {
	// A keyword flow answers once; a duplicate delivery of the identical
	// event id within the window produces zero additional sends.
	proc, client, st := newTestProcessor(t)
	st.AddFlow(keywordFlow("f1", 0, "cena", "Cena je 10€"))

	ev := gateway.Event{
		ID: "evt-1", BotID: "bot-a", Kind: gateway.KindMessage,
		ChannelID: "ch-1", AuthorID: "u-1", Text: "Aká je cena?",
	}
	proc.HandleEvent(context.Background(), ev)
	proc.HandleEvent(context.Background(), ev)

	sent := client.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected exactly one outbound send, got %d", len(sent))
	}
	if sent[0].Text != "Cena je 10€" {
		t.Errorf("reply = %q", sent[0].Text)
	}
}

func TestHandleEventPriorityFirstMatchWins(t *testing.T) {
	// With priorities 5, 1 and 3 all matching, only priority 1 runs.
	proc, client, st := newTestProcessor(t)
	st.AddFlow(keywordFlow("p5", 5, "hello", "from p5"))
	st.AddFlow(keywordFlow("p1", 1, "hello", "from p1"))
	st.AddFlow(keywordFlow("p3", 3, "hello", "from p3"))

	proc.HandleEvent(context.Background(), gateway.Event{
		ID: "evt-1", BotID: "bot-a", Kind: gateway.KindMessage,
		ChannelID: "ch-1", AuthorID: "u-1", Text: "hello there",
	})

	sent := client.Sent()
	if len(sent) != 1 {
		t.Fatalf("exactly one flow may execute, got %d sends", len(sent))
	}
	if sent[0].Text != "from p1" {
		t.Errorf("lowest priority number wins, got %q", sent[0].Text)
	}
}

func TestHandleEventConditionsGateExecution(t *testing.T) {
	proc, client, st := newTestProcessor(t)
	flow := keywordFlow("f1", 0, "hello", "hi")
	flow.Conditions = &models.Conditions{AllowedChannels: []string{"ch-allowed"}}
	st.AddFlow(flow)

	proc.HandleEvent(context.Background(), gateway.Event{
		ID: "evt-1", BotID: "bot-a", Kind: gateway.KindMessage,
		ChannelID: "ch-other", AuthorID: "u-1", Text: "hello",
	})
	if len(client.Sent()) != 0 {
		t.Error("condition failure must prevent execution")
	}
}

func TestHandleEventFailedSendIsRetryable(t *testing.T) {
	proc, client, st := newTestProcessor(t)
	st.AddFlow(keywordFlow("f1", 0, "hello", "hi"))
	client.FailOps["message"] = errors.New("rate limited")

	ev := gateway.Event{
		ID: "evt-1", BotID: "bot-a", Kind: gateway.KindMessage,
		ChannelID: "ch-1", AuthorID: "u-1", Text: "hello",
	}
	proc.HandleEvent(context.Background(), ev)
	if len(client.Sent()) != 0 {
		t.Fatal("send should have failed")
	}

	// The reply-sent claim is removed on send failure; a later delivery may
	// retry once the event-id window elapsed. Simulate with a new event id.
	delete(client.FailOps, "message")
	ev2 := ev
	ev2.ID = "evt-1-redelivery"
	proc.HandleEvent(context.Background(), ev2)
	if len(client.Sent()) != 1 {
		t.Errorf("expected retry to succeed, got %d sends", len(client.Sent()))
	}
}

func TestHandleEventFlowLoadFailureDegrades(t *testing.T) {
	proc, client, st := newTestProcessor(t)
	st.FailList = errors.New("database on fire")

	// Must not panic, must not send.
	proc.HandleEvent(context.Background(), gateway.Event{
		ID: "evt-1", BotID: "bot-a", Kind: gateway.KindMessage,
		ChannelID: "ch-1", AuthorID: "u-1", Text: "hello",
	})
	if len(client.Sent()) != 0 {
		t.Error("no flows this cycle means no sends")
	}
}

func TestHandleEventComponentCorrelation(t *testing.T) {
	proc, client, st := newTestProcessor(t)
	st.AddFlow(models.Flow{
		ID: "f-btn", BotID: "bot-a", Name: "verify", Enabled: true,
		TriggerType:   models.TriggerButtonClick,
		TriggerConfig: models.TriggerConfig{ComponentID: "verify-me"},
		Actions: []models.Action{
			{Type: models.ActionSendMessage, Message: &models.SendMessageConfig{Text: "verified"}},
		},
	})

	proc.HandleEvent(context.Background(), gateway.Event{
		ID: "evt-1", BotID: "bot-a", Kind: gateway.KindButtonClick,
		ChannelID: "ch-1", AuthorID: "u-1", ComponentID: "some-other-button",
	})
	if len(client.Sent()) != 0 {
		t.Error("non-matching component id must not fire the flow")
	}

	proc.HandleEvent(context.Background(), gateway.Event{
		ID: "evt-2", BotID: "bot-a", Kind: gateway.KindButtonClick,
		ChannelID: "ch-1", AuthorID: "u-1", ComponentID: "verify-me",
	})
	if len(client.Sent()) != 1 {
		t.Errorf("matching component id should fire the flow, got %d sends", len(client.Sent()))
	}
}

func TestHandleEventModalSubmitFiresFlow(t *testing.T) {
	proc, client, st := newTestProcessor(t)
	st.AddFlow(models.Flow{
		ID: "f-modal", BotID: "bot-a", Name: "verify-answers", Enabled: true,
		TriggerType: models.TriggerModalSubmit,
		Actions: []models.Action{
			{Type: models.ActionSendMessage, Message: &models.SendMessageConfig{Text: "thanks"}},
		},
	})

	// The custom id is the one the open_modal action generates. Submission
	// must reach trigger matching, not the template interaction path.
	proc.HandleEvent(context.Background(), gateway.Event{
		ID: "evt-1", BotID: "bot-a", Kind: gateway.KindModalSubmit,
		ChannelID: "ch-1", AuthorID: "u-1",
		ComponentID: EncodeComponentID("f-verify", 0, "modal"),
		Values:      []string{"answer"},
	})

	sent := client.Sent()
	if len(sent) != 1 {
		t.Fatalf("modal submission should fire the modal flow, got %d sends", len(sent))
	}
	if sent[0].Text != "thanks" {
		t.Errorf("reply = %q", sent[0].Text)
	}
	counts, _ := st.CountVotes("f-verify")
	if len(counts) != 0 {
		t.Errorf("modal submission must not leave vote rows: %v", counts)
	}
}

func TestHandleEventMemberJoinUsesSystemChannel(t *testing.T) {
	proc, client, st := newTestProcessor(t)
	client.SetGuilds([]gateway.Guild{{ID: "g-1", Name: "Guild", SystemChannelID: "ch-sys"}})
	st.AddFlow(models.Flow{
		ID: "f-join", BotID: "bot-a", Name: "welcome", Enabled: true,
		TriggerType: models.TriggerMemberJoin,
		Actions: []models.Action{
			{Type: models.ActionSendMessage, Message: &models.SendMessageConfig{Text: "welcome {user}"}},
		},
	})

	proc.HandleEvent(context.Background(), gateway.Event{
		ID: "evt-1", BotID: "bot-a", Kind: gateway.KindMemberJoin,
		GuildID: "g-1", AuthorID: "u-1", AuthorName: "newbie",
	})
	sent := client.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected welcome send, got %d", len(sent))
	}
	if sent[0].ChannelID != "ch-sys" {
		t.Errorf("member join falls back to system channel, got %q", sent[0].ChannelID)
	}
	if sent[0].Text != "welcome newbie" {
		t.Errorf("welcome text = %q", sent[0].Text)
	}
}

func TestHandleEventScheduledFlowsIgnored(t *testing.T) {
	proc, client, st := newTestProcessor(t)
	st.AddFlow(models.Flow{
		ID: "f-sched", BotID: "bot-a", Enabled: true, Priority: 0,
		TriggerType:   models.TriggerScheduled,
		TriggerConfig: models.TriggerConfig{ScheduleType: models.ScheduleInterval, IntervalMinutes: 1},
		Actions: []models.Action{
			{Type: models.ActionSendMessage, Message: &models.SendMessageConfig{Text: "tick"}},
		},
	})

	proc.HandleEvent(context.Background(), gateway.Event{
		ID: "evt-1", BotID: "bot-a", Kind: gateway.KindMessage,
		ChannelID: "ch-1", AuthorID: "u-1", Text: "tick",
	})
	if len(client.Sent()) != 0 {
		t.Error("scheduled flows must never fire from gateway events")
	}
}

func TestRunConsumesEventsUntilClose(t *testing.T) {
	proc, client, st := newTestProcessor(t)
	st.AddFlow(keywordFlow("f1", 0, "ping", "pong"))

	done := make(chan struct{})
	go func() {
		proc.Run(context.Background())
		close(done)
	}()

	client.Deliver(gateway.Event{
		ID: "evt-1", BotID: "bot-a", Kind: gateway.KindMessage,
		ChannelID: "ch-1", AuthorID: "u-1", Text: "ping",
	})
	client.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after event channel closed")
	}
	if len(client.Sent()) != 1 {
		t.Errorf("expected one send from delivered event, got %d", len(client.Sent()))
	}
}
