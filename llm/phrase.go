package llm

import (
	"context"
	"strings"

	"go.aimuz.me/saathi/internal/types"
)

// CannedReply answers any user message containing one of Keywords.
type CannedReply struct {
	Keywords []string
	Reply    string
}

// PhraseCompleter is an offline Completer that answers the latest user
// message by keyword lookup. It is used when no model credential is set.
type PhraseCompleter struct {
	replies  []CannedReply
	fallback string
}

// NewPhraseCompleter returns a completer over the given replies. Keywords
// are matched case-insensitively in declaration order.
func NewPhraseCompleter(replies []CannedReply, fallback string) *PhraseCompleter {
	normalized := make([]CannedReply, len(replies))
	for i, r := range replies {
		kws := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		normalized[i] = CannedReply{Keywords: kws, Reply: r.Reply}
	}
	return &PhraseCompleter{replies: normalized, fallback: fallback}
}

func (p *PhraseCompleter) Complete(_ context.Context, messages []Message) (string, types.Usage, error) {
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			last = strings.ToLower(messages[i].Content)
			break
		}
	}

	for _, r := range p.replies {
		for _, kw := range r.Keywords {
			if strings.Contains(last, kw) {
				return r.Reply, types.Usage{}, nil
			}
		}
	}
	return p.fallback, types.Usage{}, nil
}
