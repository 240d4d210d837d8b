package respond

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/saymasiddiquie/dscpl/internal/types"
)

const (
	versePrefix = "🌟 Here are some verses that might inspire you:\n"
	shownVerses = 2
)

type SelectorConfig struct {
	Searcher types.Searcher
	// K is how many hits to retrieve. Defaults to 3.
	K int
	// Rand returns a value in [0, n). Defaults to math/rand/v2.IntN.
	Rand   func(n int) int
	Logger *slog.Logger
}

// Selector turns a user message into a reply: retrieved verses when the index
// has any, otherwise an encouragement from the topic table.
type Selector struct {
	config SelectorConfig
}

func NewSelector(config SelectorConfig) *Selector {
	if config.K <= 0 {
		config.K = 3
	}
	if config.Rand == nil {
		config.Rand = rand.IntN
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Selector{config: config}
}

// Respond always returns a reply. conversation is the prior dialogue and is
// only logged.
func (s *Selector) Respond(ctx context.Context, query, conversation string) string {
	s.config.Logger.Debug("responding", "query", query, "context_len", len(conversation))

	if s.config.Searcher != nil {
		res := s.config.Searcher.Search(ctx, query, s.config.K)
		if res.Available() && len(res.Hits) > 0 {
			hits := res.Hits[:min(shownVerses, len(res.Hits))]
			texts := make([]string, len(hits))
			for i, h := range hits {
				texts[i] = h.Text
			}
			return versePrefix + strings.Join(texts, "\n\n")
		}
		if !res.Available() {
			s.config.Logger.Info("retrieval unavailable, using fallback", "reason", res.Reason)
		}
	}

	return s.Fallback(query)
}

// Fallback returns the message for query when it names a topic exactly
// (ignoring case), or a uniformly chosen message otherwise.
func (s *Selector) Fallback(query string) string {
	if m, ok := Message(strings.ToLower(query)); ok {
		return m
	}
	return messages[topics[s.config.Rand(len(topics))]]
}
