package mcp

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// AnalyzeUserInput is the input for summi_analyze_user
type AnalyzeUserInput struct {
	UserID string `json:"user_id" jsonschema:"the subscriber id whose stale conversations are classified"`
}

// PreviewDigestInput is the input for summi_preview_digest
type PreviewDigestInput struct {
	UserID string `json:"user_id" jsonschema:"the subscriber id to compose the digest for"`
}

// RunHourlyInput is empty, the tick covers every active subscriber
type RunHourlyInput struct{}

// EnqueueJobInput is the input for summi_enqueue_job
type EnqueueJobInput struct {
	Type   string `json:"type" jsonschema:"job type, analyze_user or run_hourly"`
	UserID string `json:"user_id,omitempty" jsonschema:"subscriber id, required for analyze_user"`
}

// EnqueueJobOutput reports where the job went
type EnqueueJobOutput struct {
	Queued bool   `json:"queued"`
	Queue  string `json:"queue"`
}

// registerTools registers all operator tools
func (s *Server) registerTools() {
	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name:        "summi_analyze_user",
		Description: "Classify a subscriber's new or changed conversations now and return the per-conversation priorities.",
	}, s.handler.AnalyzeUser)

	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name:        "summi_preview_digest",
		Description: "Compose the Summi da Hora digest a subscriber would receive right now, without sending it.",
	}, s.handler.PreviewDigest)

	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name:        "summi_run_hourly",
		Description: "Run the hourly digest tick for every active subscriber. Sends real WhatsApp messages.",
	}, s.handler.RunHourly)

	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name:        "summi_enqueue_job",
		Description: "Push an analyze_user or run_hourly job onto its worker queue.",
	}, s.handler.EnqueueJob)
}
