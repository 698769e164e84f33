package server

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"

	"record-mcp/internal/tools"
)

// renderInfoPage builds the HTML page served to non-POST requests.
func renderInfoPage(name, version string, descs []tools.Descriptor) ([]byte, error) {
	var md strings.Builder
	fmt.Fprintf(&md, "# %s MCP Server\n\n", name)
	fmt.Fprintf(&md, "Version %s. Send JSON-RPC 2.0 requests with `POST`.\n\n", version)
	md.WriteString("## Available tools\n\n")
	for _, d := range descs {
		summary, _, _ := strings.Cut(d.Description, "\n")
		fmt.Fprintf(&md, "- **%s**: %s\n", d.Name, summary)
	}

	var body bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &body); err != nil {
		return nil, fmt.Errorf("rendering info page: %w", err)
	}

	var page bytes.Buffer
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>%s</title></head>\n<body>\n", html.EscapeString(name))
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}
