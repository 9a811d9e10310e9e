// Package server implements the MCP (Model Context Protocol) server for
// bubble-sheet scanning.
//
// This package provides a JSON-RPC 2.0 server that exposes the omr scanner
// through the MCP protocol, so an assistant can check a capture for the corner
// markers, read a sheet and grade it.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - omr_detect_markers: readiness check with normalized marker centers
//   - omr_scan_sheet: rectify and read ID digits and answers
//   - omr_annotate: draw grading marks against an answer key
//   - omr_validate_template: validate and summarize a template
//   - omr_template_overlay: draw the template layout over a sheet
//   - omr_info: backend, dictionary and threshold settings
//
// Images are passed as a file path or as base64 text. Templates are passed as
// a JSON or YAML file path, cached for the life of the process, or inline.
//
// # Error Handling
//
// Scanner failures are tool results with isError set. The text content holds
// {"success": false, "error": {"kind": ..., "message": ...}} where kind is
// one of the stable codes of omr.Kind. Unknown tools are JSON-RPC errors with
// code -32000; malformed params use -32602.
//
// # Usage
//
//	srv := server.New(cfg, scanner, server.WithLogger(logger))
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
