package line

import "github.com/line/line-bot-sdk-go/v7/linebot"

// Text builds a plain text message.
func Text(text string) linebot.SendingMessage {
	return linebot.NewTextMessage(text)
}

// TextWithQuickReplies builds a text message with tappable options. Each
// label is sent back verbatim as the user's message when tapped.
func TextWithQuickReplies(text string, labels []string) linebot.SendingMessage {
	if len(labels) == 0 {
		return linebot.NewTextMessage(text)
	}
	buttons := make([]*linebot.QuickReplyButton, 0, len(labels))
	for _, label := range labels {
		buttons = append(buttons, linebot.NewQuickReplyButton("", linebot.NewMessageAction(label, label)))
	}
	return linebot.NewTextMessage(text).WithQuickReplies(linebot.NewQuickReplyItems(buttons...))
}

// Image builds an image message from a content URL and a preview URL.
func Image(contentURL, previewURL string) linebot.SendingMessage {
	return linebot.NewImageMessage(contentURL, previewURL)
}
