package schemas

import "time"

// Speaker identifies which side of the conversation produced a turn.
type Speaker string

const (
	SpeakerAgent  Speaker = "agent"
	SpeakerCaller Speaker = "caller"
)

// Turn is a single utterance in the interleaved transcript.
type Turn struct {
	Index     int       `json:"index"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is the ordered record of everything said in one conversation.
type Transcript []Turn

// Append adds an utterance, assigning the next index.
func (t *Transcript) Append(speaker Speaker, text string) {
	*t = append(*t, Turn{
		Index:     len(*t),
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
}

// LastN returns up to n most recent turns, oldest first.
func (t Transcript) LastN(n int) []Turn {
	if n <= 0 || len(t) == 0 {
		return nil
	}
	if n > len(t) {
		n = len(t)
	}
	return t[len(t)-n:]
}
