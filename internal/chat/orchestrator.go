// Package chat is the orchestration core: it turns one user utterance
// into a stream of chunks by running the scope gate, the conversation
// store, the LLM, and the tool router in a bounded loop.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/farewatch/farewatch/internal/conversations"
	"github.com/farewatch/farewatch/internal/llm"
	"github.com/farewatch/farewatch/internal/scope"
	"github.com/farewatch/farewatch/internal/tools"
	"github.com/farewatch/farewatch/internal/trips"
	"github.com/farewatch/farewatch/pkg/models"
)

// Config bounds one chat exchange. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	// MaxUtteranceLen is the inclusive upper bound on utterance runes.
	MaxUtteranceLen int `yaml:"max_utterance_len"`
	// MaxMessages is the per-conversation log cap applied at finalization.
	MaxMessages int `yaml:"max_messages"`
	// MaxConversations is the per-user conversation cap.
	MaxConversations int `yaml:"max_conversations"`
	// MaxToolRounds caps LLM round trips per utterance.
	MaxToolRounds int `yaml:"max_tool_rounds"`
	// MaxToolRetries caps invocations of one tool name per utterance.
	MaxToolRetries int `yaml:"max_tool_retries"`
	// Temperature is passed through to the LLM.
	Temperature float32 `yaml:"temperature"`
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MaxUtteranceLen:  10000,
		MaxMessages:      100,
		MaxConversations: 20,
		MaxToolRounds:    10,
		MaxToolRetries:   3,
		Temperature:      0.7,
	}
}

// Request is one user utterance entering the orchestrator.
type Request struct {
	UserID   string
	UserName string
	// ThreadID continues an existing conversation when set.
	ThreadID  string
	Utterance string
}

// ElicitationAnswer carries the user's form submission back to the tool
// that asked for it.
type ElicitationAnswer struct {
	UserID     string
	ThreadID   string
	ToolCallID string
	ToolName   string
	Args       map[string]any
}

// User-facing error strings. These are deliberately generic: internal
// detail goes to the log, never to the stream.
const (
	errGeneric    = "Something went wrong while processing your message. Please try again."
	errDailyQuota = "The assistant has reached its daily usage limit. Please try again tomorrow."
	errRateLimit  = "The assistant is handling too many requests right now. Please try again in a moment."
)

// Orchestrator runs the chat loop. All collaborators are required
// except titles and trips, which degrade gracefully when nil.
type Orchestrator struct {
	store  conversations.Store
	trips  trips.Store
	router *tools.Router
	client llm.Client
	titles llm.TitleGenerator
	cfg    Config
	logger *slog.Logger
}

// NewOrchestrator wires the chat loop to its collaborators.
func NewOrchestrator(store conversations.Store, tripStore trips.Store, router *tools.Router, client llm.Client, titles llm.TitleGenerator, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:  store,
		trips:  tripStore,
		router: router,
		client: client,
		titles: titles,
		cfg:    cfg,
		logger: logger.With("component", "chat"),
	}
}

// Stream processes one utterance and returns the chunk stream. The
// channel is closed after the terminal done chunk. The first chunk of a
// stream carries the thread id so new conversations are addressable
// immediately.
func (o *Orchestrator) Stream(ctx context.Context, req *Request) <-chan models.ChatChunk {
	out := make(chan models.ChatChunk, 16)
	go func() {
		defer close(out)
		o.run(ctx, req, &emitter{ctx: ctx, out: out, threadID: req.ThreadID})
	}()
	return out
}

func (o *Orchestrator) run(ctx context.Context, req *Request, e *emitter) {
	if strings.TrimSpace(req.Utterance) == "" || utf8.RuneCountInString(req.Utterance) > o.cfg.MaxUtteranceLen {
		e.send(models.ErrorChunk(fmt.Sprintf("Message must be between 1 and %d characters.", o.cfg.MaxUtteranceLen)))
		e.done()
		return
	}

	verdict := scope.Classify(req.Utterance)
	if !verdict.Valid {
		// Nothing is persisted for rejected utterances.
		o.logger.Info("utterance rejected",
			"user_id", req.UserID, "reason", verdict.Reason, "confidence", verdict.Confidence)
		e.send(models.ContentChunk(scope.RedirectMessage))
		e.done()
		return
	}

	if req.ThreadID == "" {
		removed, err := o.store.EnforceLimit(ctx, req.UserID, o.cfg.MaxConversations)
		if err != nil {
			o.fail(e, "enforce conversation limit", err)
			return
		}
		if removed > 0 {
			o.logger.Info("evicted oldest conversations", "user_id", req.UserID, "removed", removed)
		}
	}

	conv, err := o.store.GetOrCreate(ctx, req.ThreadID, req.UserID)
	if err != nil {
		o.fail(e, "load conversation", err)
		return
	}
	e.threadID = conv.ID

	// The user message commits on its own so it survives later failures.
	if _, err := o.store.Append(ctx, conv.ID, &models.Message{Role: models.RoleUser, Content: req.Utterance}); err != nil {
		o.fail(e, "persist user message", err)
		return
	}

	system := o.buildSystemPrompt(ctx, req)
	history, err := o.store.MessagesForContext(ctx, conv.ID, system)
	if err != nil {
		o.fail(e, "load context window", err)
		return
	}

	turn, finalText, loopErr := o.runLoop(ctx, e, req, system, history)
	if loopErr != nil {
		// The LLM failed before producing a turn; the user message stays.
		e.done()
		return
	}

	if len(turn) > 0 {
		if err := o.store.AppendTurn(ctx, conv.ID, turn, o.cfg.MaxMessages); err != nil {
			o.fail(e, "finalize turn", err)
			return
		}
		o.maybeTitle(ctx, conv, req.Utterance, finalText)
	}
	e.done()
}

// runLoop is the tool-calling loop. It returns the messages synthesized
// during this turn, the final assistant text, and a non-nil error only
// when the LLM itself failed. Cap violations emit an error chunk but
// still return the partial turn for persistence.
func (o *Orchestrator) runLoop(ctx context.Context, e *emitter, req *Request, system string, history []*models.Message) ([]*models.Message, string, error) {
	msgs := history
	retries := map[string]int{}
	defs := o.toolDefinitions()
	var turn []*models.Message

	for round := 1; ; round++ {
		if round > o.cfg.MaxToolRounds {
			e.send(models.ErrorChunk(fmt.Sprintf(
				"Reached the limit of %d tool rounds for a single message.", o.cfg.MaxToolRounds)))
			return turn, "", nil
		}

		deltas, err := o.client.Stream(ctx, &llm.Request{
			System:      system,
			Messages:    msgs,
			Tools:       defs,
			Temperature: o.cfg.Temperature,
		})
		if err != nil {
			o.emitLLMError(e, err)
			return turn, "", err
		}

		var text strings.Builder
		acc := newCallAccumulator()
		for d := range deltas {
			if d.Err != nil {
				o.emitLLMError(e, d.Err)
				return turn, "", d.Err
			}
			if d.RateLimit != nil {
				e.send(models.ChatChunk{Type: models.ChunkRateLimit, RateLimit: d.RateLimit})
			}
			if d.Content != "" {
				text.WriteString(d.Content)
				e.send(models.ContentChunk(d.Content))
			}
			acc.add(d.ToolCalls)
		}

		calls := acc.ordered()
		if len(calls) == 0 {
			final := text.String()
			if final != "" {
				turn = append(turn, &models.Message{Role: models.RoleAssistant, Content: final})
			}
			return turn, final, nil
		}

		assistant := &models.Message{Role: models.RoleAssistant, Content: text.String(), ToolCalls: calls}
		msgs = append(msgs, assistant)
		turn = append(turn, assistant)

		for i, call := range calls {
			name := call.Function.Name
			if retries[name] >= o.cfg.MaxToolRetries {
				capMsg := fmt.Sprintf(
					"Tool %s was called %d times for this message; giving up on it.", name, o.cfg.MaxToolRetries)
				e.send(models.ErrorChunk(capMsg))
				// The assistant message carrying these calls is already
				// part of the turn; every abandoned call still needs a
				// tool reply or the persisted history would reach the
				// model with unanswered tool calls.
				for _, skipped := range calls[i:] {
					turn = append(turn, skippedToolMessage(skipped, capMsg))
				}
				return turn, "", nil
			}
			retries[name]++

			e.send(models.ChatChunk{Type: models.ChunkToolCall, ToolCall: &models.ToolCallChunk{
				ID: call.ID, Name: name, Arguments: call.Function.Arguments,
			}})

			result := o.router.ExecuteFromJSON(ctx, name, call.Function.Arguments, req.UserID)

			if result.IsElicitation() {
				el := result.ElicitationRequest()
				el.ToolCallID = call.ID
				el.ToolName = name
				e.send(models.ChatChunk{Type: models.ChunkElicitation, Elicitation: el})
				// The eliciting call is answered later by the form
				// submission; any calls after it never run and get
				// their slots closed here.
				for _, skipped := range calls[i+1:] {
					turn = append(turn, skippedToolMessage(skipped, "Tool call skipped: waiting for user input."))
				}
				return turn, "", nil
			}

			e.send(models.ChatChunk{Type: models.ChunkToolResult, ToolResult: &models.ToolResultChunk{
				ToolCallID: call.ID, Name: name, Result: result.Payload(), Success: result.Success,
			}})

			toolMsg := &models.Message{
				Role:       models.RoleTool,
				Content:    result.PayloadJSON(),
				ToolCallID: call.ID,
				Name:       name,
			}
			msgs = append(msgs, toolMsg)
			turn = append(turn, toolMsg)
		}
	}
}

// SubmitElicitation resumes a paused tool call with the user's form
// answer. The tool runs directly; the model is not re-entered, the next
// utterance sees the result in history.
func (o *Orchestrator) SubmitElicitation(ctx context.Context, ans *ElicitationAnswer) <-chan models.ChatChunk {
	out := make(chan models.ChatChunk, 4)
	go func() {
		defer close(out)
		e := &emitter{ctx: ctx, out: out, threadID: ans.ThreadID}

		if _, err := o.store.Get(ctx, ans.ThreadID, ans.UserID); err != nil {
			if errors.Is(err, conversations.ErrNotFound) {
				e.send(models.ErrorChunk("Conversation not found."))
			} else {
				o.logger.Error("elicitation conversation lookup failed", "error", err)
				e.send(models.ErrorChunk(errGeneric))
			}
			e.done()
			return
		}
		if !o.router.Registry().Has(ans.ToolName) {
			e.send(models.ErrorChunk(fmt.Sprintf("Tool %s is not available.", ans.ToolName)))
			e.done()
			return
		}

		result := o.router.Execute(ctx, ans.ToolName, ans.Args, ans.UserID)

		if result.IsElicitation() {
			// The submission was still incomplete; ask again, persist nothing.
			el := result.ElicitationRequest()
			el.ToolCallID = ans.ToolCallID
			el.ToolName = ans.ToolName
			e.send(models.ChatChunk{Type: models.ChunkElicitation, Elicitation: el})
			e.done()
			return
		}

		e.send(models.ChatChunk{Type: models.ChunkToolResult, ToolResult: &models.ToolResultChunk{
			ToolCallID: ans.ToolCallID, Name: ans.ToolName, Result: result.Payload(), Success: result.Success,
		}})

		toolMsg := &models.Message{
			Role:       models.RoleTool,
			Content:    result.PayloadJSON(),
			ToolCallID: ans.ToolCallID,
			Name:       ans.ToolName,
		}
		if _, err := o.store.Append(ctx, ans.ThreadID, toolMsg); err != nil {
			o.fail(e, "persist elicitation result", err)
			return
		}
		e.done()
	}()
	return out
}

// maybeTitle assigns a generated title to a still-untitled conversation.
// Failures are logged and swallowed; titling never fails a chat.
func (o *Orchestrator) maybeTitle(ctx context.Context, conv *models.Conversation, utterance, finalText string) {
	if o.titles == nil || conv.Title != "" || finalText == "" {
		return
	}
	title, err := o.titles.GenerateTitle(ctx, utterance, finalText)
	if err != nil || title == "" {
		o.logger.Warn("title generation failed", "conversation_id", conv.ID, "error", err)
		return
	}
	if err := o.store.SetTitle(ctx, conv.ID, title); err != nil {
		o.logger.Warn("title persistence failed", "conversation_id", conv.ID, "error", err)
	}
}

// fail logs the internal error and emits the generic error plus done.
func (o *Orchestrator) fail(e *emitter, op string, err error) {
	o.logger.Error("chat failed", "op", op, "error", err)
	e.send(models.ErrorChunk(errGeneric))
	e.done()
}

// emitLLMError maps a typed LLM failure to its user-facing wording.
func (o *Orchestrator) emitLLMError(e *emitter, err error) {
	var rate *llm.RateLimitError
	msg := errGeneric
	switch {
	case errors.As(err, &rate) && rate.Daily:
		msg = errDailyQuota
	case errors.As(err, &rate):
		msg = errRateLimit
	}
	o.logger.Error("llm call failed", "error", err)
	e.send(models.ErrorChunk(msg))
}

func (o *Orchestrator) toolDefinitions() []llm.ToolDefinition {
	defs := o.router.Registry().Definitions()
	out := make([]llm.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, llm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return out
}

// skippedToolMessage closes a tool_calls slot that will never execute
// so the persisted round remains valid model input.
func skippedToolMessage(call models.ToolCall, reason string) *models.Message {
	failed := &models.ToolResult{Success: false, Error: reason}
	return &models.Message{
		Role:       models.RoleTool,
		Content:    failed.PayloadJSON(),
		ToolCallID: call.ID,
		Name:       call.Function.Name,
	}
}

// emitter serializes chunk delivery. The first chunk sent is stamped
// with the thread id; the done chunk always carries it.
type emitter struct {
	ctx      context.Context
	out      chan<- models.ChatChunk
	threadID string
	sent     bool
}

func (e *emitter) send(chunk models.ChatChunk) {
	if !e.sent {
		chunk.ThreadID = e.threadID
		e.sent = true
	}
	select {
	case e.out <- chunk:
	case <-e.ctx.Done():
	}
}

func (e *emitter) done() {
	e.send(models.DoneChunk(e.threadID))
}

// callAccumulator merges streamed tool-call fragments. Fragments for
// one call share an index; id, type, and name arrive once while the
// argument text arrives in pieces and is concatenated.
type callAccumulator struct {
	byIndex map[int]*models.ToolCall
	order   []int
}

func newCallAccumulator() *callAccumulator {
	return &callAccumulator{byIndex: map[int]*models.ToolCall{}}
}

func (a *callAccumulator) add(deltas []llm.ToolCallDelta) {
	for _, d := range deltas {
		call, ok := a.byIndex[d.Index]
		if !ok {
			call = &models.ToolCall{}
			a.byIndex[d.Index] = call
			a.order = append(a.order, d.Index)
		}
		if d.ID != "" {
			call.ID = d.ID
		}
		if d.Type != "" {
			call.Type = d.Type
		}
		if d.Name != "" {
			call.Function.Name = d.Name
		}
		call.Function.Arguments += d.Arguments
	}
}

func (a *callAccumulator) ordered() []models.ToolCall {
	sort.Ints(a.order)
	out := make([]models.ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		out = append(out, *a.byIndex[idx])
	}
	return out
}
