package tools

import (
	"fmt"
)

// Built-in tool names.
const (
	CreateRecord = "create_record"
	QueryRecords = "query_records"
	UpdateRecord = "update_record"
	DeleteRecord = "delete_record"
	GetRecord    = "get_record"
	ListTables   = "list_tables"
)

// Tool pairs a descriptor with the function that translates its arguments.
type Tool struct {
	Descriptor
	translate translateFunc
}

// Shortcut is a create tool bound to one table, declared in configuration.
type Shortcut struct {
	Name        string              `yaml:"name" toml:"name"`
	Table       string              `yaml:"table" toml:"table"`
	Description string              `yaml:"description" toml:"description"`
	Properties  map[string]Property `yaml:"properties" toml:"properties"`
	Required    []string            `yaml:"required" toml:"required"`
}

// Registry is the immutable tool catalog. It is safe for concurrent reads.
type Registry struct {
	tools  []*Tool
	byName map[string]*Tool
}

// NewRegistry builds the catalog from the built-in tools followed by any shortcuts.
func NewRegistry(shortcuts ...Shortcut) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Tool)}
	for _, t := range builtins() {
		if err := r.add(t); err != nil {
			return nil, err
		}
	}
	for _, s := range shortcuts {
		if s.Table == "" {
			return nil, fmt.Errorf("shortcut %s: table is required", s.Name)
		}
		desc := s.Description
		if desc == "" {
			desc = fmt.Sprintf("Create a %s record", s.Table)
		}
		t := &Tool{
			Descriptor: Descriptor{
				Name:        s.Name,
				Description: desc,
				InputSchema: objectSchema(s.Properties, s.Required...),
			},
			translate: translateShortcut(s.Table),
		}
		if err := r.add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(t *Tool) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, dup := r.byName[t.Name]; dup {
		return fmt.Errorf("tool %s registered twice", t.Name)
	}
	r.tools = append(r.tools, t)
	r.byName[t.Name] = t
	return nil
}

// List returns descriptors in registration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.tools))
	for i, t := range r.tools {
		out[i] = t.Descriptor
	}
	return out
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.tools))
	for i, t := range r.tools {
		out[i] = t.Name
	}
	return out
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (*Tool, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t, nil
}

// Translate resolves name, checks required arguments and builds the Operation.
// Nothing is sent anywhere; a failed lookup or validation leaves the store untouched.
func (r *Registry) Translate(name string, args Arguments) (Operation, error) {
	t, err := r.Get(name)
	if err != nil {
		return Operation{}, err
	}
	if err := t.validate(args); err != nil {
		return Operation{}, err
	}
	return t.translate(t.Name, args), nil
}

func builtins() []*Tool {
	return []*Tool{
		{
			Descriptor: Descriptor{
				Name:        CreateRecord,
				Description: createDescription,
				InputSchema: objectSchema(map[string]Property{
					"table":  {Type: "string", Description: "Table name (e.g., incident, change_request, problem, task, sc_request, kb_knowledge, cmdb_ci)"},
					"fields": {Type: "object", Description: "Fields and values to set on the record. Use the store's actual field names; the object is sent unchanged."},
				}, "table", "fields"),
			},
			translate: translateCreate,
		},
		{
			Descriptor: Descriptor{
				Name:        QueryRecords,
				Description: "Search/query records from ANY table. Returns a numbered list with number, short description and sys_id of each match.",
				InputSchema: objectSchema(map[string]Property{
					"table":  {Type: "string", Description: "Table name to query"},
					"query":  {Type: "string", Description: "Encoded query passed through unchanged (e.g., active=true, priority=1, short_descriptionLIKEemail)"},
					"limit":  {Type: "number", Description: "Max records to return (default 10)"},
					"fields": {Type: "string", Description: "Comma-separated fields to return (optional)"},
				}, "table"),
			},
			translate: translateQuery,
		},
		{
			Descriptor: Descriptor{
				Name:        UpdateRecord,
				Description: "Update ANY existing record by sys_id. Only the given fields change.",
				InputSchema: objectSchema(map[string]Property{
					"table":  {Type: "string", Description: "Table name"},
					"sys_id": {Type: "string", Description: "The sys_id of the record to update"},
					"fields": {Type: "object", Description: "Fields to update with new values"},
				}, "table", "sys_id", "fields"),
			},
			translate: translateUpdate,
		},
		{
			Descriptor: Descriptor{
				Name:        DeleteRecord,
				Description: "Delete a record by sys_id",
				InputSchema: objectSchema(map[string]Property{
					"table":  {Type: "string", Description: "Table name"},
					"sys_id": {Type: "string", Description: "The sys_id of the record to delete"},
				}, "table", "sys_id"),
			},
			translate: translateDelete,
		},
		{
			Descriptor: Descriptor{
				Name:        GetRecord,
				Description: "Get a single record by sys_id. Returns the full record as JSON.",
				InputSchema: objectSchema(map[string]Property{
					"table":  {Type: "string", Description: "Table name"},
					"sys_id": {Type: "string", Description: "The sys_id of the record"},
				}, "table", "sys_id"),
			},
			translate: translateGet,
		},
		{
			Descriptor: Descriptor{
				Name:        ListTables,
				Description: "List commonly used tables (static reference, no lookup)",
				InputSchema: objectSchema(nil),
			},
			translate: translateCatalog,
		},
	}
}

const createDescription = `Create ANY record. Common tables:
- incident: For issues/problems (fields: short_description, description, urgency, impact, category)
- change_request: For changes (fields: short_description, description, type, risk)
- problem: For problems (fields: short_description, description, urgency, impact)
- sc_request: For service requests (fields: short_description, description)
- sc_req_item: For catalog items (fields: short_description, quantity, cat_item)
- task: For tasks (fields: short_description, description, assigned_to, priority)
- kb_knowledge: For knowledge articles (fields: short_description, text)
- cmdb_ci: For configuration items (fields: name, short_description)
- sys_user: For users (fields: user_name, first_name, last_name, email)
- sys_user_group: For groups (fields: name, description)
- sc_cat_item: For catalog items (fields: name, short_description, description)
- cmn_location: For locations (fields: name, street, city, state)
- cmn_department: For departments (fields: name, description)
- ast_contract: For contracts (fields: short_description, vendor)
- alm_asset: For assets (fields: display_name, model, serial_number)
Returns the new record's number and sys_id.`
