package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/jhosm/ProductBundles-sub000/id"
)

func TestNewGeneratesPrefix(t *testing.T) {
	i := id.NewInstanceID()
	if i.IsNil() {
		t.Fatal("NewInstanceID returned nil ID")
	}
	if i.Prefix() != id.PrefixInstance {
		t.Fatalf("prefix = %q, want %q", i.Prefix(), id.PrefixInstance)
	}
	if !strings.HasPrefix(i.String(), "inst_") {
		t.Fatalf("string form %q does not start with inst_", i.String())
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := id.NewScheduleID()
	parsed, err := id.Parse(orig.String())
	if err != nil {
		t.Fatalf("Parse(%q): %v", orig.String(), err)
	}
	if parsed.String() != orig.String() {
		t.Fatalf("round trip: got %q, want %q", parsed.String(), orig.String())
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Fatal("Parse of empty string should fail")
	}
}

func TestParseWithPrefixMismatch(t *testing.T) {
	i := id.NewEventID()
	if _, err := id.ParseInstanceID(i.String()); err == nil {
		t.Fatal("ParseInstanceID should reject an evt-prefixed ID")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	orig := id.NewInstanceID()
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded id.ID
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.String() != orig.String() {
		t.Fatalf("json round trip: got %q, want %q", decoded.String(), orig.String())
	}
}

func TestNilMarshalsEmpty(t *testing.T) {
	text, err := id.Nil.MarshalText()
	if err != nil {
		t.Fatalf("marshal nil: %v", err)
	}
	if len(text) != 0 {
		t.Fatalf("nil ID marshalled to %q, want empty", text)
	}
}

func TestScanValue(t *testing.T) {
	orig := id.NewScheduleID()
	v, err := orig.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scanned.String() != orig.String() {
		t.Fatalf("sql round trip: got %q, want %q", scanned.String(), orig.String())
	}

	var nilID id.ID
	if err := nilID.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if !nilID.IsNil() {
		t.Fatal("scanning nil should produce the Nil ID")
	}
}
