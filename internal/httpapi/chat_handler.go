package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ollama_gateway/internal/backend"
	"ollama_gateway/internal/models"
	"ollama_gateway/internal/utils"
)

const defaultTemperature = 0.7

// handleChatCompletions serves OpenAI-compatible chat completions, buffered
// or streamed depending on the request's stream flag.
//
// Flow after authentication:
//  1. Quota pre-check
//  2. Rate limit
//  3. Forward to the backend
//  4. Respond (buffered JSON or SSE relay)
//  5. Hand usage to the background recorder
func (d *Dependencies) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	endpoint := "/v1/chat/completions"

	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, utils.ErrKindInvalidRequest, "method not allowed")
		return
	}

	cred, ok := d.authorize(w, r, endpoint)
	if !ok {
		return
	}

	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, utils.ErrKindInvalidRequest, "invalid JSON body")
		return
	}
	if req.Model == "" {
		req.Model = d.DefaultModel
	}
	if len(req.Messages) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, utils.ErrKindInvalidRequest, "missing 'messages' field")
		return
	}

	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	backendReq := backend.ChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
	}

	if req.Stream {
		d.streamChat(w, r, cred, backendReq, endpoint, start)
		return
	}

	result, err := d.Backend.Chat(r.Context(), backendReq)
	if err != nil {
		d.Logger.Error("Chat request failed", "model", req.Model, "error", err)
		d.respondBackendFailure(w, err, cred, req.Model, endpoint, start)
		return
	}

	resp := ChatCompletionResponse{
		ID:      newCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      backend.Message{Role: "assistant", Content: result.Content},
			FinishReason: result.FinishReason,
		}},
		Usage: UsageStats{
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			TotalTokens:      result.PromptTokens + result.CompletionTokens,
		},
	}

	utils.RespondWithJSON(w, http.StatusOK, resp)
	d.finishRequest(cred, req.Model, endpoint, result.PromptTokens, result.CompletionTokens, start)
}

// streamChat relays a backend stream to the client as SSE. Usage for
// whatever was actually delivered is recorded even when the client hangs up
// or the backend dies mid-stream.
func (d *Dependencies) streamChat(w http.ResponseWriter, r *http.Request, cred *models.Credential, backendReq backend.ChatRequest, endpoint string, start time.Time) {
	stream, err := d.Backend.ChatStream(r.Context(), backendReq)
	if err != nil {
		d.Logger.Error("Chat stream failed to open", "model", backendReq.Model, "error", err)
		d.respondBackendFailure(w, err, cred, backendReq.Model, endpoint, start)
		return
	}
	defer stream.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondWithError(w, http.StatusInternalServerError, utils.ErrKindInternal, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	completionID := newCompletionID()
	created := time.Now().Unix()
	clientGone := false

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Backend died mid-stream; tell the client before closing
			d.Logger.Error("Chat stream broke", "model", backendReq.Model, "error", err)
			d.writeSSE(w, flusher, map[string]string{"error": "stream interrupted"})
			break
		}

		var finishReason *string
		if chunk.Done {
			finishReason = &chunk.FinishReason
		}

		frame := ChatCompletionChunk{
			ID:      completionID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   backendReq.Model,
			Choices: []chatChunkChoice{{
				Index:        0,
				Delta:        chatChunkDelta{Role: "assistant", Content: chunk.Delta},
				FinishReason: finishReason,
			}},
		}

		if !d.writeSSE(w, flusher, frame) {
			// Client hung up; closing the stream cancels the backend
			clientGone = true
			break
		}

		if chunk.Done {
			break
		}
	}

	// Account what was actually delivered, including partial streams
	promptTokens, completionTokens := stream.Usage()

	if !clientGone {
		// Final accounting frame, then the end marker
		d.writeSSE(w, flusher, ChatCompletionChunk{
			ID:      completionID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   backendReq.Model,
			Choices: []chatChunkChoice{},
			Usage: &UsageStats{
				PromptTokens:     promptTokens,
				CompletionTokens: completionTokens,
				TotalTokens:      promptTokens + completionTokens,
			},
		})
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}

	d.finishRequest(cred, backendReq.Model, endpoint, promptTokens, completionTokens, start)
}

// writeSSE writes one data frame and reports whether the client is still
// connected.
func (d *Dependencies) writeSSE(w http.ResponseWriter, flusher http.Flusher, payload interface{}) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return true
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
