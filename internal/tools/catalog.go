package tools

import (
	"fmt"
	"strings"
)

// TableRef is one entry of the list_tables reference text.
type TableRef struct {
	Name  string `yaml:"name" toml:"name"`
	Label string `yaml:"label" toml:"label"`
	Group string `yaml:"group" toml:"group"`
}

// DefaultTables is the reference catalog used when configuration supplies none.
var DefaultTables = []TableRef{
	{"incident", "Incidents", "ITSM"},
	{"change_request", "Change Requests", "ITSM"},
	{"problem", "Problems", "ITSM"},
	{"sc_request", "Service Requests", "ITSM"},
	{"sc_req_item", "Requested Items", "ITSM"},
	{"sc_task", "Catalog Tasks", "ITSM"},
	{"task", "Generic Tasks", "ITSM"},
	{"cmdb_ci", "Configuration Items", "CMDB"},
	{"cmdb_ci_server", "Servers", "CMDB"},
	{"cmdb_ci_computer", "Computers", "CMDB"},
	{"cmdb_ci_service", "Services", "CMDB"},
	{"sys_user", "Users", "HR / Users"},
	{"sys_user_group", "Groups", "HR / Users"},
	{"cmn_department", "Departments", "HR / Users"},
	{"cmn_location", "Locations", "HR / Users"},
	{"sc_cat_item", "Catalog Items", "Catalog"},
	{"sc_category", "Categories", "Catalog"},
	{"kb_knowledge", "Knowledge Articles", "Knowledge"},
	{"kb_knowledge_base", "Knowledge Bases", "Knowledge"},
	{"alm_asset", "Assets", "Assets"},
	{"alm_hardware", "Hardware Assets", "Assets"},
	{"sysapproval_approver", "Approvals", "Other"},
	{"ast_contract", "Contracts", "Other"},
	{"core_company", "Companies", "Other"},
}

// RenderCatalog formats refs grouped in first-seen group order.
func RenderCatalog(refs []TableRef) string {
	if len(refs) == 0 {
		refs = DefaultTables
	}
	var order []string
	groups := map[string][]TableRef{}
	for _, r := range refs {
		g := r.Group
		if g == "" {
			g = "Other"
		}
		if _, seen := groups[g]; !seen {
			order = append(order, g)
		}
		groups[g] = append(groups[g], r)
	}

	var b strings.Builder
	b.WriteString("Common Tables:\n")
	for _, g := range order {
		fmt.Fprintf(&b, "\n%s:\n", g)
		for _, r := range groups[g] {
			if r.Label == "" {
				fmt.Fprintf(&b, "• %s\n", r.Name)
				continue
			}
			fmt.Fprintf(&b, "• %s - %s\n", r.Name, r.Label)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
