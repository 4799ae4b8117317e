package canonical

import (
	"strings"
	"testing"
)

func TestMarshalSortsKeys(t *testing.T) {
	out, err := Marshal(map[string]any{"b": 1, "a": 2, "c": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"a":2,"b":1,"c":3}`
	if string(out) != want {
		t.Errorf("expected %s, got %s", want, out)
	}
}

func TestMarshalNoHTMLEscaping(t *testing.T) {
	out, err := Marshal(map[string]string{"k": "<&>"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// RFC 8785 mandates minimal escaping: <, > and & stay literal
	// rather than becoming < and friends.
	if want := `{"k":"<&>"}`; string(out) != want {
		t.Errorf("expected %s, got %s", want, out)
	}
	if strings.Contains(string(out), `<`) {
		t.Errorf("canonical form must not HTML-escape: %s", out)
	}
}

func TestHashStableAcrossKeyOrder(t *testing.T) {
	h1, err := Hash(map[string]any{"x": "1", "y": "2"})
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := Hash(map[string]any{"y": "2", "x": "1"})
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash differs across key order: %s vs %s", h1, h2)
	}
	if !strings.HasPrefix(h1, "sha256:") {
		t.Errorf("hash missing algorithm prefix: %s", h1)
	}
}

func TestHashChangesWithPayload(t *testing.T) {
	h1, _ := Hash(map[string]string{"v": "a"})
	h2, _ := Hash(map[string]string{"v": "b"})
	if h1 == h2 {
		t.Error("distinct payloads must not collide")
	}
}

func TestFingerprint(t *testing.T) {
	h := "sha256:abcdef0123456789abcdef0123456789"
	if got := Fingerprint(h, 18); got != "abcdef0123456789ab" {
		t.Errorf("unexpected fingerprint %q", got)
	}
	if got := Fingerprint("short", 18); got != "short" {
		t.Errorf("fingerprint must clamp to input length, got %q", got)
	}
}
