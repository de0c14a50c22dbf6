package core

import "context"

// Payload is what a handler produces. The set of implementations is closed:
// Text, Media, Sticker, Edit and Computed.
type Payload interface {
	isPayload()
}

// Text replies with a text message. The body is rendered as a template.
type Text string

// Media replies with a photo, video, audio, voice note or document. Source is
// a local file path or an http(s) URL; Caption is rendered as a template.
type Media struct {
	Kind    MediaKind
	Source  string
	Caption string
}

// Sticker replies with a sticker by file id.
type Sticker struct {
	FileID string
}

// Edit replaces the text of the message the update refers to: the message
// carrying the pressed button for callbacks, otherwise the incoming message.
type Edit struct {
	Text string
}

// Computed builds the reply at dispatch time. Returning a nil Payload means
// the function handled the update itself and nothing is sent.
type Computed func(ctx context.Context, u Update) (Payload, error)

func (Text) isPayload()     {}
func (Media) isPayload()    {}
func (Sticker) isPayload()  {}
func (Edit) isPayload()     {}
func (Computed) isPayload() {}

// Photo is shorthand for a photo Media payload.
func Photo(source, caption string) Media {
	return Media{Kind: MediaPhoto, Source: source, Caption: caption}
}

// Video is shorthand for a video Media payload.
func Video(source, caption string) Media {
	return Media{Kind: MediaVideo, Source: source, Caption: caption}
}

// Audio is shorthand for an audio Media payload.
func Audio(source, caption string) Media {
	return Media{Kind: MediaAudio, Source: source, Caption: caption}
}

// Voice is shorthand for a voice note Media payload.
func Voice(source, caption string) Media {
	return Media{Kind: MediaVoice, Source: source, Caption: caption}
}

// Document is shorthand for a document Media payload.
func Document(source, caption string) Media {
	return Media{Kind: MediaDocument, Source: source, Caption: caption}
}
