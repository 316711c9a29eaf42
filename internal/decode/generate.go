package decode

import "github.com/archerheffern/imessage-undeleter/internal/model"

// GenerateText hydrates msg.Text, msg.Components, and msg.EditedParts
// from msg.AttributedBody and msg.MessageSummaryInfo. It is idempotent
// (R1): calling it twice on the same Message produces equal
// Components and EditedParts, since both decode calls are pure
// functions of the immutable blob fields.
func GenerateText(msg *model.Message) error {
	components, text, err := decodeComponentsForMessage(msg)
	if err != nil {
		return err
	}
	msg.Components = components
	// The DB's own text column is authoritative when populated (it is
	// what Messages.app itself rendered); attributedBody is decoded as
	// the fallback and as the sole source of component structure,
	// matching the attributedBody-as-fallback pattern observed in
	// imessage-sync.go's syncMessages.
	if msg.Text == "" {
		msg.Text = text
	}

	edited, err := DecodeEditedMessage(msg.MessageSummaryInfo)
	if err != nil {
		return err
	}
	msg.EditedParts = &edited

	return nil
}
