package engine

import (
	"testing"

	"github.com/botforge/flowbot/internal/gateway"
	"github.com/botforge/flowbot/internal/models"
)

func messageEvent(text string, mentionsBot bool) gateway.Event {
	return gateway.Event{
		ID:          "evt-1",
		Kind:        gateway.KindMessage,
		ChannelID:   "ch-1",
		AuthorID:    "user-1",
		Text:        text,
		MentionsBot: mentionsBot,
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		ev   gateway.Event
		want models.TriggerType
	}{
		{"plain message", messageEvent("hi", false), models.TriggerNewMessage},
		{"mention", messageEvent("hi bot", true), models.TriggerMention},
		{"member join", gateway.Event{Kind: gateway.KindMemberJoin}, models.TriggerMemberJoin},
		{"button", gateway.Event{Kind: gateway.KindButtonClick}, models.TriggerButtonClick},
		{"select", gateway.Event{Kind: gateway.KindSelectMenu}, models.TriggerSelectMenu},
		{"modal", gateway.Event{Kind: gateway.KindModalSubmit}, models.TriggerModalSubmit},
		{"unknown", gateway.Event{Kind: "carrier_pigeon"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.ev); got != tc.want {
				t.Errorf("Classify = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMatchesKeywords(t *testing.T) {
	flow := &models.Flow{
		ID:            "f1",
		TriggerType:   models.TriggerKeywordMatch,
		TriggerConfig: models.TriggerConfig{Keywords: models.KeywordList{"cena", "price"}},
	}
	ev := messageEvent("Aká je cena?", false)
	if !Matches(flow, ev, models.TriggerNewMessage) {
		t.Error("keyword substring should match")
	}
	if !Matches(flow, messageEvent("THE PRICE IS HIGH", false), models.TriggerNewMessage) {
		t.Error("keyword match must be case-insensitive")
	}
	if Matches(flow, messageEvent("no match here", false), models.TriggerNewMessage) {
		t.Error("unrelated text should not match")
	}
}

func TestMatchesKeywordsBothEncodingsEquivalent(t *testing.T) {
	// "cena, price" and ["cena","price"] must match identically.
	fromString := &models.Flow{ID: "fs", TriggerType: models.TriggerKeywordMatch}
	fromArray := &models.Flow{ID: "fa", TriggerType: models.TriggerKeywordMatch}
	mustUnmarshalKeywords(t, `"cena, price"`, &fromString.TriggerConfig.Keywords)
	mustUnmarshalKeywords(t, `["cena","price"]`, &fromArray.TriggerConfig.Keywords)

	for _, text := range []string{"Aká je cena?", "price check", "nothing"} {
		ev := messageEvent(text, false)
		a := Matches(fromString, ev, models.TriggerNewMessage)
		b := Matches(fromArray, ev, models.TriggerNewMessage)
		if a != b {
			t.Errorf("encodings disagree on %q: string=%v array=%v", text, a, b)
		}
	}
}

func TestMatchesRegex(t *testing.T) {
	flow := &models.Flow{
		ID:            "f-re",
		TriggerType:   models.TriggerRegexMatch,
		TriggerConfig: models.TriggerConfig{Pattern: `^order\s+\d+$`},
	}
	if !Matches(flow, messageEvent("ORDER 42", false), models.TriggerNewMessage) {
		t.Error("regex must compile case-insensitively")
	}
	if Matches(flow, messageEvent("order pending", false), models.TriggerNewMessage) {
		t.Error("non-matching text should not match")
	}
}

func TestMatchesInvalidRegexNeverMatches(t *testing.T) {
	flow := &models.Flow{
		ID:            "f-bad",
		TriggerType:   models.TriggerRegexMatch,
		TriggerConfig: models.TriggerConfig{Pattern: `([`},
	}
	// Must not panic, must never match, repeatedly.
	for i := 0; i < 3; i++ {
		if Matches(flow, messageEvent("([", false), models.TriggerNewMessage) {
			t.Error("invalid pattern must be treated as never-match")
		}
	}
}

func TestMatchesSlashCommand(t *testing.T) {
	flow := &models.Flow{
		ID:            "f-cmd",
		TriggerType:   models.TriggerSlashCommand,
		TriggerConfig: models.TriggerConfig{Command: "help"},
	}
	if !Matches(flow, messageEvent("/help me", false), models.TriggerNewMessage) {
		t.Error("slash command prefix should match")
	}
	if Matches(flow, messageEvent("help", false), models.TriggerNewMessage) {
		t.Error("missing slash should not match")
	}

	// Stored with leading slash already.
	flow.TriggerConfig.Command = "/help"
	if !Matches(flow, messageEvent("/help", false), models.TriggerNewMessage) {
		t.Error("configured command may carry its own slash")
	}
}

func TestMatchesClassificationOnlyTypes(t *testing.T) {
	join := &models.Flow{ID: "fj", TriggerType: models.TriggerMemberJoin}
	if !Matches(join, gateway.Event{Kind: gateway.KindMemberJoin}, models.TriggerMemberJoin) {
		t.Error("member_join should match its classification")
	}
	if Matches(join, messageEvent("hi", false), models.TriggerNewMessage) {
		t.Error("member_join must not match messages")
	}

	btn := &models.Flow{ID: "fb", TriggerType: models.TriggerButtonClick}
	if !Matches(btn, gateway.Event{Kind: gateway.KindButtonClick, ComponentID: "x"}, models.TriggerButtonClick) {
		t.Error("button_click should match its classification regardless of id")
	}
}

func TestMatchesScheduledAndUnknownFailClosed(t *testing.T) {
	sched := &models.Flow{ID: "fs", TriggerType: models.TriggerScheduled}
	if Matches(sched, messageEvent("anything", false), models.TriggerNewMessage) {
		t.Error("scheduled flows never match gateway events")
	}
	unknown := &models.Flow{ID: "fu", TriggerType: "telepathy"}
	if Matches(unknown, messageEvent("anything", false), models.TriggerNewMessage) {
		t.Error("unknown trigger type must fail closed")
	}
}

func TestMatchesIsDeterministic(t *testing.T) {
	flow := &models.Flow{
		ID:            "f-det",
		TriggerType:   models.TriggerKeywordMatch,
		TriggerConfig: models.TriggerConfig{Keywords: models.KeywordList{"price"}},
	}
	ev := messageEvent("price?", false)
	first := Matches(flow, ev, models.TriggerNewMessage)
	for i := 0; i < 10; i++ {
		if Matches(flow, ev, models.TriggerNewMessage) != first {
			t.Fatal("Matches must be deterministic for fixed inputs")
		}
	}
}

func mustUnmarshalKeywords(t *testing.T, data string, into *models.KeywordList) {
	t.Helper()
	if err := into.UnmarshalJSON([]byte(data)); err != nil {
		t.Fatalf("unmarshal keywords %s: %v", data, err)
	}
}
