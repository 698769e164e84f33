package tools

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultQueryLimit applies when query_records omits limit.
const DefaultQueryLimit = 10

// Verb is the kind of record operation a tool maps to.
type Verb int

const (
	VerbCreate Verb = iota + 1
	VerbQuery
	VerbUpdate
	VerbDelete
	VerbGet
	// VerbCatalog is answered locally without contacting the store.
	VerbCatalog
)

var verbNames = map[Verb]string{
	VerbCreate:  "CREATE",
	VerbQuery:   "QUERY",
	VerbUpdate:  "UPDATE",
	VerbDelete:  "DELETE",
	VerbGet:     "GET",
	VerbCatalog: "CATALOG",
}

func (v Verb) String() string {
	if s, ok := verbNames[v]; ok {
		return s
	}
	return "UNKNOWN"
}

// Method is the HTTP verb used against the table API, or "" for local verbs.
func (v Verb) Method() string {
	switch v {
	case VerbCreate:
		return http.MethodPost
	case VerbQuery, VerbGet:
		return http.MethodGet
	case VerbUpdate:
		return http.MethodPatch
	case VerbDelete:
		return http.MethodDelete
	}
	return ""
}

// Operation fully determines one outbound table API call.
type Operation struct {
	Tool       string
	Verb       Verb
	Table      string
	SysID      string
	Payload    json.RawMessage
	Filter     string
	Limit      int
	Projection string
}

// Query encodes the listing parameters. Only QUERY operations carry any.
func (op Operation) Query() string {
	if op.Verb != VerbQuery {
		return ""
	}
	q := url.Values{}
	q.Set("sysparm_limit", strconv.Itoa(op.Limit))
	if op.Filter != "" {
		q.Set("sysparm_query", op.Filter)
	}
	if op.Projection != "" {
		q.Set("sysparm_fields", op.Projection)
	}
	return q.Encode()
}

// translateFunc maps validated arguments onto an Operation.
type translateFunc func(tool string, args Arguments) Operation

func translateCreate(tool string, args Arguments) Operation {
	return Operation{Tool: tool, Verb: VerbCreate, Table: args.String("table"), Payload: args["fields"]}
}

func translateQuery(tool string, args Arguments) Operation {
	return Operation{
		Tool:       tool,
		Verb:       VerbQuery,
		Table:      args.String("table"),
		Filter:     args.String("query"),
		Limit:      parseLimit(args.String("limit")),
		Projection: args.String("fields"),
	}
}

func translateUpdate(tool string, args Arguments) Operation {
	return Operation{Tool: tool, Verb: VerbUpdate, Table: args.String("table"), SysID: args.String("sys_id"), Payload: args["fields"]}
}

func translateDelete(tool string, args Arguments) Operation {
	return Operation{Tool: tool, Verb: VerbDelete, Table: args.String("table"), SysID: args.String("sys_id")}
}

func translateGet(tool string, args Arguments) Operation {
	return Operation{Tool: tool, Verb: VerbGet, Table: args.String("table"), SysID: args.String("sys_id")}
}

func translateCatalog(tool string, _ Arguments) Operation {
	return Operation{Tool: tool, Verb: VerbCatalog}
}

// translateShortcut binds a create to a fixed table; the whole argument
// object becomes the record payload. Marshal cannot fail here: every value is
// a json.RawMessage that already decoded successfully.
func translateShortcut(tbl string) translateFunc {
	return func(tool string, args Arguments) Operation {
		payload, _ := json.Marshal(args)
		return Operation{Tool: tool, Verb: VerbCreate, Table: tbl, Payload: payload}
	}
}

// parseLimit accepts integers and integral floats; anything else falls back to the default.
func parseLimit(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultQueryLimit
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 1 && f == float64(int(f)) {
		return int(f)
	}
	return DefaultQueryLimit
}
