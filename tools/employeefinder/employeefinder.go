// Package employeefinder is the reference Tool Registry entry shipped with
// this repo: a "finder" tool whose driver call returns a list, so one input
// row fans out into N output rows sharing a single checkpoint.
package employeefinder

import (
	json "github.com/goccy/go-json"

	"github.com/pithecus-labs/creditrunner/driver"
	"github.com/pithecus-labs/creditrunner/registry"
	"github.com/pithecus-labs/creditrunner/types"
)

// ToolID is the value of the Config Loader's toolId option that selects
// this entry.
const ToolID = "employee-finder"

// OutputColumns is the fixed output column set. Company is carried through
// from the input row so each fanned-out result row stays traceable to it.
var OutputColumns = []string{"Company", "Name", "Title", "Email", "Error Status", "Error Message"}

// Employee is one entry of a finder response's result list.
type Employee struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Email string `json:"email"`
}

// Entry builds the registry.Entry for this tool over d. The caller supplies
// the Actor Driver (typically httpdriver.Driver) since the Tool Registry
// only owns the row/response mapping, never the transport.
func Entry(d driver.Driver) *registry.Entry {
	return &registry.Entry{
		ToolID:          ToolID,
		Driver:          d,
		BuildRequest:    buildRequest,
		BuildOutputRows: buildOutputRows,
		OutputColumns:   OutputColumns,
	}
}

// buildRequest expects columnMap to provide "key" (the company name or
// domain used both as cache key and request field) and optionally
// "postUrl" (a company profile URL passed through to the driver when the
// upstream finder API accepts one).
func buildRequest(row *types.InputRow, columnMap map[string]string) (*types.WorkItem, registry.SkipReason) {
	keyCol := columnMap["key"]
	if keyCol == "" {
		return nil, registry.SkipReason("columnMap missing \"key\" mapping")
	}

	key := registry.NormalizeKey(row.Get(keyCol))
	request := map[string]string{"company": row.Get(keyCol)}
	if postURLCol := columnMap["postUrl"]; postURLCol != "" {
		if v := row.Get(postURLCol); v != "" {
			request["postUrl"] = v
		}
	}

	return types.NewWorkItem(0, key, request, 1), ""
}

// buildOutputRows decodes parsed as a JSON array of Employee records (the
// httpdriver reference driver hands back the raw decoded body as `any`,
// typically []any of map[string]any from JSON) and fans it out into one
// OutputRow per employee, all sharing the row's Company value.
func buildOutputRows(row *types.InputRow, parsed any) []*types.OutputRow {
	employees := decodeEmployees(parsed)
	if len(employees) == 0 {
		return nil
	}

	company := row.Get("Company")
	out := make([]*types.OutputRow, 0, len(employees))
	for _, e := range employees {
		r := types.NewOutputRow(OutputColumns)
		r.Set("Company", company)
		r.Set("Name", e.Name)
		r.Set("Title", e.Title)
		r.Set("Email", e.Email)
		out = append(out, r)
	}
	return out
}

// decodeEmployees tolerates the two shapes a driver.Result.Parsed value
// realistically takes: already-typed []Employee (a mock driver in tests) or
// the generic []any/map[string]any goccy/go-json produces when the driver
// decodes the response body itself without a target struct.
func decodeEmployees(parsed any) []Employee {
	switch v := parsed.(type) {
	case []Employee:
		return v
	case nil:
		return nil
	default:
		// Round-trip through JSON to coerce []any/map[string]any into
		// []Employee; any shape mismatch yields a nil, empty result rather
		// than a panic.
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var employees []Employee
		if err := json.Unmarshal(raw, &employees); err != nil {
			return nil
		}
		return employees
	}
}
