// Package agent runs the LLM-driven tool-selection loop over the portfolio
// tools. One Turn takes a user message through a bounded number of
// model↔tool round trips to a final answer.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/NadavAzoulay124/portfolio.AI/internal/config"
)

const systemPrompt = `You are Finsight Assistant.
- Use tools to inspect the portfolio and fetch facts.
- NEVER execute Buy/Sell unless the user explicitly confirms in the same message. Trade tools return a confirm_token instead of trading; relay the proposal to the user and pass the token back only after an explicit confirmation.
- Be concise and base statements on tool results; avoid guessing.`

// ErrIterationLimit reports a turn that kept calling tools without ever
// producing a final answer.
var ErrIterationLimit = errors.New("aborted: tool-call iteration limit reached")

// Completer is the slice of the chat-completion API the agent needs. It
// keeps the model backend swappable and mockable.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Agent is the conversational assistant: a Completer plus the tool surface.
type Agent struct {
	completer     Completer
	model         string
	temperature   float32
	maxIterations int
	tools         []Tool
	logger        *zap.Logger
}

// New creates an Agent on an arbitrary Completer.
func New(completer Completer, cfg *config.Config, tools []Tool, logger *zap.Logger) *Agent {
	maxIter := cfg.Agent.MaxIterations
	if maxIter <= 0 {
		maxIter = 6
	}
	return &Agent{
		completer:     completer,
		model:         cfg.OpenAI.Model,
		temperature:   cfg.OpenAI.Temperature,
		maxIterations: maxIter,
		tools:         tools,
		logger:        logger,
	}
}

// NewOpenAI creates an Agent backed by the OpenAI API. It fails fast when
// the credential is missing.
func NewOpenAI(cfg *config.Config, tools []Tool, logger *zap.Logger) (*Agent, error) {
	if err := cfg.ValidateForAgent(); err != nil {
		return nil, err
	}
	return New(openai.NewClient(cfg.OpenAI.APIKey), cfg, tools, logger), nil
}

// Turn runs one agent turn: user message in, final answer out. Tool calls
// requested by the model are executed and their results fed back until the
// model answers in plain text or the iteration cap aborts the turn.
func (a *Agent) Turn(ctx context.Context, input string) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: input},
	}
	decls := declarations(a.tools)

	for i := 0; i < a.maxIterations; i++ {
		resp, err := a.completer.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       a.model,
			Temperature: a.temperature,
			Messages:    messages,
			Tools:       decls,
		})
		if err != nil {
			return "", fmt.Errorf("model invocation failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("model returned no choices")
		}

		msg := resp.Choices[0].Message
		messages = append(messages, msg)

		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		for _, call := range msg.ToolCalls {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    a.execute(ctx, call),
				ToolCallID: call.ID,
			})
		}
	}
	return "", ErrIterationLimit
}

// execute runs one tool call and renders its result (or its failure) as the
// tool-message payload. Unknown tools and bad arguments are recoverable:
// the model sees the error and may correct itself.
func (a *Agent) execute(ctx context.Context, call openai.ToolCall) string {
	name := call.Function.Name
	log := a.logger.With(zap.String("tool", name))

	var tool Tool
	for _, t := range a.tools {
		if t.Name() == name {
			tool = t
			break
		}
	}
	if tool == nil {
		log.Warn("model requested unknown tool")
		return errorPayload(fmt.Sprintf("unknown tool %q", name))
	}

	result, err := tool.Call(ctx, json.RawMessage(call.Function.Arguments))
	if err != nil {
		log.Warn("tool call failed", zap.Error(err))
		return errorPayload(err.Error())
	}

	out, err := json.Marshal(result)
	if err != nil {
		log.Error("tool result not serialisable", zap.Error(err))
		return errorPayload("tool result could not be serialised")
	}
	log.Debug("tool call succeeded")
	return string(out)
}

func errorPayload(msg string) string {
	out, _ := json.Marshal(map[string]string{"error": msg})
	return string(out)
}
