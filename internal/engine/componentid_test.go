package engine

import "testing"

func TestComponentIDRoundTrip(t *testing.T) {
	id := EncodeComponentID("tpl-9", 2, "opt-a")
	if !IsComponentID(id) {
		t.Fatalf("generated id %q not recognized", id)
	}
	cid, err := ParseComponentID(id)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cid.TemplateID != "tpl-9" || cid.Page != 2 || cid.ElementID != "opt-a" {
		t.Errorf("round trip mismatch: %+v", cid)
	}
	if cid.Nonce == "" {
		t.Error("nonce should be present")
	}
}

func TestComponentIDNoncesDiffer(t *testing.T) {
	a := EncodeComponentID("tpl", 0, "x")
	b := EncodeComponentID("tpl", 0, "x")
	if a == b {
		t.Error("ids of republished elements must differ")
	}
}

func TestParseComponentIDRejectsForeignIDs(t *testing.T) {
	for _, bad := range []string{"", "other:tpl:0:x:n", "flowbot:tpl:NaN:x:n", "flowbot:short"} {
		if _, err := ParseComponentID(bad); err == nil {
			t.Errorf("expected parse error for %q", bad)
		}
	}
	if IsComponentID("dashboard-button-1") {
		t.Error("foreign ids must not be claimed")
	}
}
