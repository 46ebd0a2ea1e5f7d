package vnc

import "testing"

func TestKeyFromNameResolvesKnownNames(t *testing.T) {
	cases := map[string]uint32{
		"ctrl": KeyCtrlL, "CTRL": KeyCtrlL, "alt": KeyAltL, "delete": KeyDelete, "del": KeyDelete,
	}
	for name, want := range cases {
		got, ok := KeyFromName(name)
		if !ok || got != want {
			t.Fatalf("KeyFromName(%q) = (%v, %v), want (%v, true)", name, got, ok, want)
		}
	}
}

func TestKeyFromNameFallsBackToSingleASCIIByte(t *testing.T) {
	got, ok := KeyFromName("a")
	if !ok || got != uint32('a') {
		t.Fatalf("KeyFromName(\"a\") = (%v, %v), want (%v, true)", got, ok, uint32('a'))
	}
}

func TestKeyFromNameRejectsUnknownMultiCharName(t *testing.T) {
	_, ok := KeyFromName("nonexistent")
	if ok {
		t.Fatal("expected unknown multi-character name to be rejected")
	}
}

func TestKeysFromSpecSkipsUnknownParts(t *testing.T) {
	keys := KeysFromSpec("ctrl-alt-delete")
	want := []uint32{KeyCtrlL, KeyAltL, KeyDelete}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys, want %d", len(keys), len(want))
	}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("keys[%d] = %v, want %v", i, keys[i], k)
		}
	}

	keys = KeysFromSpec("ctrl-bogus-a")
	want = []uint32{KeyCtrlL, uint32('a')}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys after skipping unknown part, want %d", len(keys), len(want))
	}
}
