package tools

// ReadOnlyAnnotations are the MCP hints shared by every tool here: none of
// them modify state visible to the caller.
func ReadOnlyAnnotations() map[string]bool {
	return map[string]bool{
		"readOnlyHint":    true,
		"destructiveHint": false,
		"idempotentHint":  true,
		"openWorldHint":   false,
	}
}
