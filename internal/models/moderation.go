package models

// ModerationInput is one element of the upstream "input" array.
type ModerationInput struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	ImageURL *ModerationImageURL `json:"image_url,omitempty"`
}

type ModerationImageURL struct {
	URL string `json:"url"`
}

type ModerationPayload struct {
	Model string            `json:"model"`
	Input []ModerationInput `json:"input"`
}

// NewModerationPayload builds the upstream request; empty fields are omitted.
func NewModerationPayload(model, text, imageURL string) ModerationPayload {
	p := ModerationPayload{Model: model, Input: []ModerationInput{}}
	if text != "" {
		p.Input = append(p.Input, ModerationInput{Type: "text", Text: text})
	}
	if imageURL != "" {
		p.Input = append(p.Input, ModerationInput{Type: "image_url", ImageURL: &ModerationImageURL{URL: imageURL}})
	}
	return p
}
