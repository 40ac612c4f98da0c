package chat

import (
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/relay/config"
	"github.com/aschepis/backscratcher/relay/conversations"
	"github.com/aschepis/backscratcher/relay/llm"
)

// namingInstruction asks the model to open its first reply with one inline
// title tag. The Auto-Namer extracts the tag and strips it from the
// visible response after the stream completes.
const namingInstruction = "This is the first message of a new conversation. Start your reply with a short, descriptive title for the conversation wrapped in <name></name> tags, then continue the reply normally. Emit the tag exactly once."

// Composer builds the system message for a request.
type Composer struct {
	cfg *config.ServerConfig
}

// NewComposer creates a composer backed by the server configuration.
func NewComposer(cfg *config.ServerConfig) *Composer {
	return &Composer{cfg: cfg}
}

// Compose resolves the active system prompt by precedence (persona >
// custom prompt > guided > default) and appends the contextual blocks in
// fixed order: user context, memories, personality, naming instruction.
// It reports whether the naming instruction was included, which arms the
// Auto-Namer for this request. When cacheAnnotate is set each block
// becomes its own cache-annotated text part; otherwise the blocks join
// into one plain string.
func (c *Composer) Compose(req *Request, conv *conversations.Conversation, cacheAnnotate bool) (llm.Message, bool) {
	persona := c.cfg.Persona(req.PersonaID)

	var base string
	switch {
	case persona != nil:
		base = persona.Prompt
	case req.CustomPrompt != "":
		base = req.CustomPrompt
	case req.Guided:
		base = c.cfg.Prompts.Guided
	default:
		base = c.cfg.Prompts.Default
	}

	blocks := []string{base}
	if userCtx := userContextBlock(req); userCtx != "" {
		blocks = append(blocks, userCtx)
	}
	if mem := memoryBlock(req); mem != "" {
		blocks = append(blocks, mem)
	}
	if personality := strings.TrimSpace(req.Personality); personality != "" {
		blocks = append(blocks, "Adopt the following personality in your responses:\n"+personality)
	}

	namingRequested := false
	if conv != nil && conv.NamingEligible() && persona == nil && req.CustomPrompt == "" {
		blocks = append(blocks, namingInstruction)
		namingRequested = true
	}

	if cacheAnnotate {
		parts := make([]llm.ContentPart, 0, len(blocks))
		for _, block := range blocks {
			part := llm.NewTextPart(block)
			part.Cache = llm.NewCacheDirective()
			parts = append(parts, part)
		}
		return llm.NewMultipartMessage(llm.RoleSystem, parts), namingRequested
	}

	return llm.NewTextMessage(llm.RoleSystem, strings.Join(blocks, "\n\n")), namingRequested
}

// userContextBlock formats the caller-supplied identity fields.
func userContextBlock(req *Request) string {
	var sb strings.Builder
	if req.UserName != "" {
		fmt.Fprintf(&sb, "The user's name is %s.\n", req.UserName)
	}
	if req.UserNickname != "" {
		fmt.Fprintf(&sb, "The user prefers to be called %s.\n", req.UserNickname)
	}
	if req.UserAbout != "" {
		fmt.Fprintf(&sb, "About the user: %s\n", req.UserAbout)
	}
	return strings.TrimSpace(sb.String())
}

// memoryBlock formats global and conversation-scoped memories. The
// conversation-scoped set wins when the two conflict.
func memoryBlock(req *Request) string {
	if len(req.GlobalMemories) == 0 && len(req.ConversationMemories) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Context about the user from previous conversations:\n")
	if len(req.GlobalMemories) > 0 {
		sb.WriteString("\nGlobal memories:\n")
		for _, m := range req.GlobalMemories {
			sb.WriteString("- " + m + "\n")
		}
	}
	if len(req.ConversationMemories) > 0 {
		sb.WriteString("\nMemories specific to this conversation:\n")
		for _, m := range req.ConversationMemories {
			sb.WriteString("- " + m + "\n")
		}
	}
	sb.WriteString("\nWhere global and conversation-specific memories conflict, prefer the conversation-specific ones.")
	return sb.String()
}
