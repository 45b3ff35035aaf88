package types

// Outcome is the single return contract of every handler in the dispatch
// chain. The set of variants is closed: Silent, Text and Image.
type Outcome interface {
	Kind() OutcomeKind
	outcome()
}

// OutcomeKind names an Outcome variant.
type OutcomeKind string

const (
	KindSilent OutcomeKind = "silent"
	KindText   OutcomeKind = "text"
	KindImage  OutcomeKind = "image"
)

// Silent means "send nothing". It is a decision, not a missing answer.
type Silent struct{}

// Text is a plain text reply.
type Text struct {
	Content string
}

// Image is a reply with a caption and an image.
type Image struct {
	Content  string
	ImageURL string
}

func (Silent) Kind() OutcomeKind { return KindSilent }
func (Text) Kind() OutcomeKind   { return KindText }
func (Image) Kind() OutcomeKind  { return KindImage }

func (Silent) outcome() {}
func (Text) outcome()   {}
func (Image) outcome()  {}

// OutcomeText returns the user-visible text of o, or "" for Silent.
func OutcomeText(o Outcome) string {
	switch v := o.(type) {
	case Text:
		return v.Content
	case Image:
		return v.Content
	default:
		return ""
	}
}
