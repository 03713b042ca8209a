package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/conversation.txt
	conversationRaw string

	//go:embed template/retrieval.txt
	retrievalRaw string

	//go:embed template/search.txt
	searchRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Conversation string
	Retrieval    string
	Search       string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// Safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Conversation: strings.TrimSpace(conversationRaw),
		Retrieval:    strings.TrimSpace(retrievalRaw),
		Search:       strings.TrimSpace(searchRaw),
	}
}
