// Package mcp implements the JSON-RPC side of the Model Context Protocol for
// the record gateway.
//
// # Methods
//
//   - initialize: static protocol version, server info and capabilities
//   - ping: empty result
//   - tools/list: the tool registry in registration order
//   - tools/call: validate, translate and execute one tool
//
// Any other method is answered with -32601. Unknown tools and missing
// required arguments are answered with -32602 before the record store is
// contacted. Failures on the store side are not protocol errors: they come
// back as a normal result whose text starts with the error marker, so the
// calling model can read them.
//
// # Example
//
//	{
//	  "jsonrpc": "2.0",
//	  "id": 2,
//	  "method": "tools/call",
//	  "params": {
//	    "name": "create_record",
//	    "arguments": {"table": "incident", "fields": {"short_description": "VPN down"}}
//	  }
//	}
package mcp
