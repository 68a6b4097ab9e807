package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	oaioption "github.com/openai/openai-go/v3/option"

	"github.com/linanwx/leadbridge/internal/runtimecfg"
	"github.com/linanwx/leadbridge/logger"
)

// OpenAIRuntime implements Runtime on the OpenAI Assistants API.
type OpenAIRuntime struct {
	apiBase string
	client  openai.Client
}

// NewOpenAIRuntime creates a runtime client.
func NewOpenAIRuntime(apiKey, apiBase, organization string) *OpenAIRuntime {
	baseURL := apiBaseURL(apiBase)
	opts := []oaioption.RequestOption{
		oaioption.WithAPIKey(apiKey),
		oaioption.WithBaseURL(baseURL),
		oaioption.WithHeader("OpenAI-Beta", runtimecfg.RuntimeAssistantsBetaHdr),
		oaioption.WithMaxRetries(runtimecfg.RuntimeSDKMaxRetries),
		oaioption.WithRequestTimeout(runtimecfg.RuntimeRequestTimeout),
	}
	if org := strings.TrimSpace(organization); org != "" {
		opts = append(opts, oaioption.WithOrganization(org))
	}

	return &OpenAIRuntime{
		apiBase: baseURL,
		client:  openai.NewClient(opts...),
	}
}

// CreateThread opens a new thread.
func (r *OpenAIRuntime) CreateThread(ctx context.Context) (string, error) {
	start := time.Now()
	th, err := r.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		logger.Error("runtime create thread error", "err", err)
		return "", fmt.Errorf("create thread: %w", err)
	}
	logger.Info("runtime thread created", "thread", th.ID, "latencyMs", time.Since(start).Milliseconds())
	return th.ID, nil
}

// CreateRun posts the user message and starts a run.
func (r *OpenAIRuntime) CreateRun(ctx context.Context, threadID, assistantID, message string) (*Run, error) {
	start := time.Now()
	_, err := r.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(message),
		},
	})
	if err != nil {
		logger.Error("runtime add message error", "thread", threadID, "err", err)
		return nil, fmt.Errorf("add message: %w", err)
	}

	run, err := r.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		logger.Error("runtime create run error", "thread", threadID, "err", err)
		return nil, fmt.Errorf("create run: %w", err)
	}

	out := fromOpenAIRun(threadID, run)
	logger.Info("runtime run created",
		"thread", threadID,
		"run", out.ID,
		"status", out.Status,
		"inputChars", len(message),
		"latencyMs", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// GetRun fetches the run state.
func (r *OpenAIRuntime) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	run, err := r.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		logger.Error("runtime get run error", "thread", threadID, "run", runID, "err", err)
		return nil, fmt.Errorf("get run: %w", err)
	}
	return fromOpenAIRun(threadID, run), nil
}

// GetLatestMessage returns the newest message on the thread.
func (r *OpenAIRuntime) GetLatestMessage(ctx context.Context, threadID string) (*Message, error) {
	page, err := r.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Limit: openai.Int(1),
		Order: openai.BetaThreadMessageListParamsOrderDesc,
	})
	if err != nil {
		logger.Error("runtime list messages error", "thread", threadID, "err", err)
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if page == nil || len(page.Data) == 0 {
		return nil, fmt.Errorf("thread %s has no messages", threadID)
	}

	msg := page.Data[0]
	var sb strings.Builder
	for _, part := range msg.Content {
		if part.Type != "text" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(part.Text.Value)
	}
	return &Message{
		ID:      msg.ID,
		Role:    string(msg.Role),
		Content: sb.String(),
	}, nil
}

// SubmitToolOutputs resumes a run waiting on tool calls.
func (r *OpenAIRuntime) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error) {
	start := time.Now()
	params := openai.BetaThreadRunSubmitToolOutputsParams{
		ToolOutputs: make([]openai.BetaThreadRunSubmitToolOutputsParamsToolOutput, 0, len(outputs)),
	}
	outputChars := 0
	for _, o := range outputs {
		params.ToolOutputs = append(params.ToolOutputs, openai.BetaThreadRunSubmitToolOutputsParamsToolOutput{
			ToolCallID: openai.String(o.ToolCallID),
			Output:     openai.String(o.Output),
		})
		outputChars += len(o.Output)
	}

	run, err := r.client.Beta.Threads.Runs.SubmitToolOutputs(ctx, threadID, runID, params)
	if err != nil {
		logger.Error("runtime submit tool outputs error", "thread", threadID, "run", runID, "err", err)
		return nil, fmt.Errorf("submit tool outputs: %w", err)
	}

	out := fromOpenAIRun(threadID, run)
	logger.Info("runtime tool outputs submitted",
		"thread", threadID,
		"run", runID,
		"outputCount", len(outputs),
		"outputChars", outputChars,
		"status", out.Status,
		"latencyMs", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func fromOpenAIRun(threadID string, run *openai.Run) *Run {
	out := &Run{
		ID:       run.ID,
		ThreadID: threadID,
		Status:   string(run.Status),
	}
	for _, tc := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	if run.LastError.Message != "" || run.LastError.Code != "" {
		out.LastError = &RunError{
			Code:    string(run.LastError.Code),
			Message: run.LastError.Message,
		}
	}
	return out
}
