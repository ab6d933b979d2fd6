package testutil

// FilterFrames filters frames by type
func FilterFrames(frames []RelayFrame, frameType string) []RelayFrame {
	var filtered []RelayFrame
	for _, frame := range frames {
		if frame.Type == frameType {
			filtered = append(filtered, frame)
		}
	}
	return filtered
}

// FindReply finds the most recent reply to the message with the given ID
func FindReply(frames []RelayFrame, id string) *RelayFrame {
	for i := len(frames) - 1; i >= 0; i-- {
		frame := frames[i]
		if frame.Type == "reply" && frame.ID == id {
			return &frame
		}
	}
	return nil
}

// ReplyTexts returns the text of every reply, in arrival order
func ReplyTexts(frames []RelayFrame) []string {
	var texts []string
	for _, frame := range FilterFrames(frames, "reply") {
		texts = append(texts, frame.Text)
	}
	return texts
}
