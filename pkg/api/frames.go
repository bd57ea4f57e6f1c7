package api

// Frames carried on the SSE stream. Each frame is serialized as a
// `data: <json>` block followed by a blank line.

type TokenFrame struct {
	Token string `json:"token"`
}

type ToolCallPayload struct {
	ToolName          string `json:"tool_name"`
	ToolResultPreview string `json:"tool_result_preview"`
}

type ToolCallFrame struct {
	ToolCall ToolCallPayload `json:"tool_call"`
}

type DoneFrame struct {
	Done bool `json:"done"`
}

type ErrorFrame struct {
	Error string `json:"error"`
}
