package platform

// User is the sender of a message as delivered by the platform.
type User struct {
	ID          int64  `json:"user_id"`
	IsBot       bool   `json:"is_bot"`
	DisplayName string `json:"name"`
}

// Attachment is a tagged union: Type names the attachment kind (image,
// video, audio, file, share, sticker, inline_keyboard, ...) and Payload
// carries whatever nested structure the platform sent. Detectors walk the
// payload generically instead of probing known shapes.
type Attachment struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Embedded is a forwarded or replied-to sub-message carried inside an
// incoming message.
type Embedded struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
}

// Message is one inbound chat message. It is ephemeral: the engine never
// stores it, only decisions derived from it.
type Message struct {
	ID          string       `json:"mid"`
	Sender      User         `json:"sender"`
	ChatID      int64        `json:"chat_id"`
	ChatKind    string       `json:"chat_type"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
	Forwarded   *Embedded    `json:"forwarded,omitempty"`
}

// CombinedText is the direct text plus any forwarded text, which is what
// length and content checks operate on.
func (m *Message) CombinedText() string {
	if m.Forwarded == nil || m.Forwarded.Text == "" {
		return m.Text
	}
	if m.Text == "" {
		return m.Forwarded.Text
	}
	return m.Text + "\n" + m.Forwarded.Text
}

// HasPhoto reports whether any direct attachment is an image.
func (m *Message) HasPhoto() bool {
	for _, att := range m.Attachments {
		if att.Type == "image" {
			return true
		}
	}
	return false
}
