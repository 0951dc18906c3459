// Package tokens provides an approximate token estimator used for
// context-window budgeting. It is not an exact tokenizer for any given
// model; callers rely only on the counts being deterministic, monotone
// and additive.
package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// perMessageOverhead accounts for role framing tokens per message.
	perMessageOverhead = 4
	// primingOverhead accounts for the assistant reply priming, counted
	// once per batch.
	primingOverhead = 3

	defaultEncoding = "cl100k_base"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// Estimator counts tokens with a fixed BPE encoding. The zero value is
// not usable; construct with NewEstimator.
type Estimator struct {
	enc *tiktoken.Tiktoken
}

// NewEstimator returns an estimator backed by the cl100k_base encoding.
// If the encoding cannot be loaded the estimator falls back to a
// 4-bytes-per-token heuristic so counting stays total.
func NewEstimator() *Estimator {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(defaultEncoding)
		if err == nil {
			encoding = enc
		}
	})
	return &Estimator{enc: encoding}
}

// Count returns the approximate token count of text. Empty text counts
// as zero.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	if e == nil || e.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(e.enc.Encode(text, nil, nil))
}

// CountedMessage is the subset of a message that contributes tokens.
type CountedMessage struct {
	Role      string
	Content   string
	Name      string
	ToolCalls []CountedToolCall
}

// CountedToolCall is a tool call reduced to its token-bearing parts.
type CountedToolCall struct {
	Name      string
	Arguments string
}

// CountMessages returns the approximate token total for a message batch:
// content plus a fixed per-message overhead, a name surcharge, the
// canonical serialization of any tool calls, and a one-time priming
// overhead.
func (e *Estimator) CountMessages(messages []CountedMessage) int {
	total := 0
	for _, msg := range messages {
		total += e.CountMessage(msg)
	}
	return total + primingOverhead
}

// CountMessage returns the token contribution of a single message,
// excluding the batch priming overhead.
func (e *Estimator) CountMessage(msg CountedMessage) int {
	n := perMessageOverhead
	n += e.Count(msg.Role)
	n += e.Count(msg.Content)
	if msg.Name != "" {
		n += e.Count(msg.Name) + 1
	}
	for _, tc := range msg.ToolCalls {
		n += e.Count(canonicalCall(tc.Name, tc.Arguments))
	}
	return n
}

// CountTools returns the approximate token cost of advertising the given
// tool schemas to the model.
func (e *Estimator) CountTools(serialized []string) int {
	total := 0
	for _, s := range serialized {
		total += e.Count(s)
	}
	return total
}

func canonicalCall(name, arguments string) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	b.WriteString(arguments)
	b.WriteByte(')')
	return b.String()
}
