package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/evalforge/evalforge/pkg/models"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPHandler invokes a remote agent service over HTTP. The remote endpoint
// receives the agent request plus context as JSON and answers with an agent
// response in the wire contract shape.
type HTTPHandler struct {
	taskType models.TaskType
	endpoint string
	client   *http.Client
}

func NewHTTPHandler(taskType models.TaskType, endpoint string) *HTTPHandler {
	return &HTTPHandler{
		taskType: taskType,
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (h *HTTPHandler) TaskType() models.TaskType { return h.taskType }

type httpInvocation struct {
	Request models.AgentRequest `json:"request"`
	Context models.AgentContext `json:"context"`
}

func (h *HTTPHandler) Execute(ctx context.Context, req models.AgentRequest, agentCtx models.AgentContext) (*models.AgentResponse, error) {
	payload, err := json.Marshal(httpInvocation{Request: req, Context: agentCtx})
	if err != nil {
		return nil, fmt.Errorf("failed to encode agent invocation for %s: %w", h.taskType, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build agent request for %s: %w", h.taskType, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Execution-Id", agentCtx.ExecutionID)

	if agentCtx.CorrelationID != "" {
		httpReq.Header.Set("X-Correlation-Id", agentCtx.CorrelationID)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agent %s call failed: %w", h.taskType, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("agent %s response read failed: %w", h.taskType, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("agent %s returned status %d: %s", h.taskType, resp.StatusCode, string(body))
	}

	var agentResp models.AgentResponse
	if err := json.Unmarshal(body, &agentResp); err != nil {
		return nil, fmt.Errorf("agent %s returned malformed payload: %w", h.taskType, err)
	}

	return &agentResp, nil
}
