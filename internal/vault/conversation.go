package vault

import (
	"encoding/json"
	"sort"
	"strings"
)

// DefaultTitle is used when a conversation carries no usable title.
const DefaultTitle = "Untitled"

// Conversation is the parsed view of a conversation body. Bodies are stored
// and cached as raw JSON so unknown fields survive a save/load round trip;
// this struct only exists for the fields the store derives metadata from and
// for transcript rendering.
type Conversation struct {
	ID         string          `json:"id,omitempty"`
	Title      string          `json:"title,omitempty"`
	CreateTime *float64        `json:"create_time,omitempty"`
	UpdateTime *float64        `json:"update_time,omitempty"`
	Mapping    map[string]Node `json:"mapping,omitempty"`
}

// Node is one entry in the conversation's message tree.
type Node struct {
	ID       string   `json:"id,omitempty"`
	Parent   string   `json:"parent,omitempty"`
	Children []string `json:"children,omitempty"`
	Message  *Message `json:"message,omitempty"`
}

// Message is the payload attached to a tree node.
type Message struct {
	ID         string   `json:"id,omitempty"`
	Author     Author   `json:"author"`
	CreateTime *float64 `json:"create_time,omitempty"`
	Content    Content  `json:"content"`
}

// Author identifies who produced a message.
type Author struct {
	Role string `json:"role,omitempty"`
}

// Content holds the textual parts of a message. Parts are kept raw because
// exports mix plain strings with structured blocks.
type Content struct {
	ContentType string            `json:"content_type,omitempty"`
	Parts       []json.RawMessage `json:"parts,omitempty"`
}

// ParseConversation decodes a raw body into its parsed view.
func ParseConversation(raw []byte) (*Conversation, error) {
	var conv Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Text returns the concatenated textual parts of the content, joined with
// newlines. String parts are used directly; structured blocks contribute
// their "text" field when present.
func (c Content) Text() string {
	if len(c.Parts) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, part := range c.Parts {
		text := partText(part)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}
	return sb.String()
}

func partText(part json.RawMessage) string {
	var s string
	if err := json.Unmarshal(part, &s); err == nil {
		return s
	}

	var block map[string]interface{}
	if err := json.Unmarshal(part, &block); err != nil {
		return ""
	}
	if text, ok := block["text"].(string); ok {
		return text
	}
	return ""
}

// Text returns the message's concatenated content text, or "" when the
// message carries none.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	return m.Content.Text()
}

// MessageCount counts the nodes whose message carries non-empty text after
// concatenating its parts. Empty system stubs and tool plumbing nodes do not
// count.
func (c *Conversation) MessageCount() int {
	if c == nil {
		return 0
	}
	count := 0
	for _, node := range c.Mapping {
		if strings.TrimSpace(node.Message.Text()) != "" {
			count++
		}
	}
	return count
}

// TranscriptEntry is one rendered message in tree-walk order.
type TranscriptEntry struct {
	Role       string
	Text       string
	CreateTime *float64
}

// Transcript linearizes the message tree: depth-first from the root nodes
// following children links, keeping only messages with non-empty text, then
// stable-sorted by message create_time so replies land in wall-clock order.
// Nodes without timestamps keep their tree position.
func (c *Conversation) Transcript() []TranscriptEntry {
	if c == nil || len(c.Mapping) == 0 {
		return nil
	}

	var roots []string
	for id, node := range c.Mapping {
		if node.Parent == "" {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)

	var entries []TranscriptEntry
	seen := make(map[string]bool, len(c.Mapping))

	var walk func(id string)
	walk = func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		node, ok := c.Mapping[id]
		if !ok {
			return
		}
		if text := strings.TrimSpace(node.Message.Text()); text != "" {
			entries = append(entries, TranscriptEntry{
				Role:       node.Message.Author.Role,
				Text:       text,
				CreateTime: node.Message.CreateTime,
			})
		}
		for _, child := range node.Children {
			walk(child)
		}
	}
	for _, root := range roots {
		walk(root)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreateTime == nil || entries[j].CreateTime == nil {
			return false
		}
		return *entries[i].CreateTime < *entries[j].CreateTime
	})

	return entries
}

// bodyTitle extracts the title field from a raw body without requiring the
// full parse to succeed.
func bodyTitle(raw []byte) string {
	var probe struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(probe.Title)
}

// patchBodyTitle rewrites the title field of a raw body, preserving every
// other field. Returns the patched body or an error when the body is not a
// JSON object.
func patchBodyTitle(raw []byte, title string) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(title)
	if err != nil {
		return nil, err
	}
	doc["title"] = encoded
	return json.Marshal(doc)
}
