package runtimecfg

import "time"

const (
	RuntimeDefaultAPIBase    = "https://api.openai.com/v1"
	RuntimeSDKMaxRetries     = 2
	RuntimeRequestTimeout    = 30 * time.Second
	RuntimeAssistantsBetaHdr = "assistants=v2"
)

const (
	BridgeDefaultMaxPendingAge = 30 * time.Minute
	BridgeDefaultSweepSchedule = "@every 1m"
	BridgeDefaultMaxPending    = 10000
)

// BridgeDefaultLeadTools are the function names whose output carries lead records.
var BridgeDefaultLeadTools = []string{"search_leads", "find_leads"}

// LeadDefaultRelevantKeywords drive the relevance sub-score.
var LeadDefaultRelevantKeywords = []string{
	"florist", "flower", "wedding", "event", "garden",
	"nursery", "gift", "boutique", "decor", "plant",
}

const (
	LeadDefaultPageSize = 50
	LeadMaxPageSize     = 500
)

const (
	ServerDefaultAddr            = "127.0.0.1:8080"
	ServerShutdownTimeout        = 5 * time.Second
	ServerReadHeaderTimeout      = 10 * time.Second
	ServerMaxRequestBodyBytes    = 1 << 20
	StoreDefaultFileName         = "leadbridge.db"
	RunCompletedFallbackMessage  = "Run completed, but the response could not be retrieved."
	RunTerminalCancelledMessage  = "Run was cancelled."
	RunTerminalExpiredMessage    = "Run expired before completion."
	RunTerminalIncompleteMessage = "Run ended incomplete."
)
