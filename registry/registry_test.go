package registry

import (
	"testing"

	"github.com/pithecus-labs/creditrunner/types"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	entry := &Entry{
		ToolID:        "email-enricher",
		OutputColumns: []string{"email", "status"},
		BuildRequest: func(row *types.InputRow, columnMap map[string]string) (*types.WorkItem, SkipReason) {
			return types.NewWorkItem(0, NormalizeKey(row.Get("Email")), map[string]string{"email": row.Get("Email")}, 1), ""
		},
	}
	r.Register(entry)

	got, err := r.Lookup("email-enricher")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != entry {
		t.Error("expected the registered entry back")
	}
}

func TestLookup_UnknownToolErrors(t *testing.T) {
	r := New()
	if _, err := r.Lookup("nope"); err == nil {
		t.Fatal("expected error for unregistered tool")
	}
}

func TestNormalizeKey(t *testing.T) {
	if got := NormalizeKey("  Alice@Example.com  "); got != "alice@example.com" {
		t.Errorf("expected normalized key, got %q", got)
	}
}
