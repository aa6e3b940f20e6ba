package transcript

import (
	"encoding/json"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

// Per-message wire framing overhead, in tokens.
const messageOverheadTokens = 4

// HeuristicEstimator approximates one token per four characters.
type HeuristicEstimator struct{}

// EstimateTokens returns a rough token count for the message.
func (HeuristicEstimator) EstimateTokens(msg Message) int {
	return messageOverheadTokens + (len(flattenMessage(msg))+3)/4
}

// TiktokenEstimator counts tokens with a real BPE encoding.
type TiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
}

// EstimateTokens encodes the message content and tool-call payloads.
func (e *TiktokenEstimator) EstimateTokens(msg Message) int {
	return messageOverheadTokens + len(e.encoding.Encode(flattenMessage(msg), nil, nil))
}

// NewEstimator returns a tiktoken-backed estimator, falling back to the
// character heuristic when the encoding cannot be loaded (for example
// when its data files are unavailable offline).
func NewEstimator() Estimator {
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		log.Warn().Err(err).Msg("Token encoding unavailable, using character heuristic")
		return HeuristicEstimator{}
	}
	return &TiktokenEstimator{encoding: enc}
}

// flattenMessage renders the token-bearing parts of a message.
func flattenMessage(msg Message) string {
	text := msg.Content
	for _, call := range msg.ToolCalls {
		text += call.Name
		if args, err := json.Marshal(call.Arguments); err == nil {
			text += string(args)
		}
	}
	return text
}
