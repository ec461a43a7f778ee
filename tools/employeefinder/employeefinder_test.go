package employeefinder

import (
	"testing"

	"github.com/pithecus-labs/creditrunner/types"
)

func TestBuildRequest_UsesColumnMap(t *testing.T) {
	header := types.NewHeader([]string{"Company", "URL"})
	row := types.NewInputRow(header, []string{"Acme Corp", "https://acme.example/about"})

	item, skip := buildRequest(row, map[string]string{"key": "Company", "postUrl": "URL"})
	if skip != "" {
		t.Fatalf("unexpected skip: %s", skip)
	}
	if item.Key != "acme corp" {
		t.Errorf("key = %q, want normalized \"acme corp\"", item.Key)
	}
	if item.Request["company"] != "Acme Corp" {
		t.Errorf("request[company] = %q", item.Request["company"])
	}
	if item.Request["postUrl"] != "https://acme.example/about" {
		t.Errorf("request[postUrl] = %q", item.Request["postUrl"])
	}
}

func TestBuildRequest_SkipsWithoutKeyMapping(t *testing.T) {
	header := types.NewHeader([]string{"Company"})
	row := types.NewInputRow(header, []string{"Acme Corp"})

	_, skip := buildRequest(row, map[string]string{})
	if skip == "" {
		t.Fatal("expected skip reason when columnMap lacks \"key\"")
	}
}

func TestBuildOutputRows_FansOutOneRowPerEmployee(t *testing.T) {
	header := types.NewHeader([]string{"Company"})
	row := types.NewInputRow(header, []string{"Acme Corp"})

	parsed := []Employee{
		{Name: "Ada Lovelace", Title: "Engineer", Email: "ada@acme.example"},
		{Name: "Grace Hopper", Title: "Engineer", Email: "grace@acme.example"},
	}

	rows := buildOutputRows(row, parsed)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Values["Company"] != "Acme Corp" || rows[0].Values["Email"] != "ada@acme.example" {
		t.Errorf("unexpected first row: %+v", rows[0].Values)
	}
	if rows[1].Values["Name"] != "Grace Hopper" {
		t.Errorf("unexpected second row: %+v", rows[1].Values)
	}
}

func TestBuildOutputRows_DecodesGenericJSONShape(t *testing.T) {
	header := types.NewHeader([]string{"Company"})
	row := types.NewInputRow(header, []string{"Acme Corp"})

	parsed := []any{
		map[string]any{"name": "Ada Lovelace", "title": "Engineer", "email": "ada@acme.example"},
	}

	rows := buildOutputRows(row, parsed)
	if len(rows) != 1 || rows[0].Values["Name"] != "Ada Lovelace" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestBuildOutputRows_EmptyResultIsNoRows(t *testing.T) {
	header := types.NewHeader([]string{"Company"})
	row := types.NewInputRow(header, []string{"Acme Corp"})

	if rows := buildOutputRows(row, nil); rows != nil {
		t.Errorf("expected nil rows for nil parsed, got %+v", rows)
	}
}
