package domain

type ReplyKind string

const (
	ReplyModel       ReplyKind = "model"
	ReplyFallback    ReplyKind = "fallback"
	ReplyRateLimited ReplyKind = "rate_limited"
)

// Reply is the outcome of one chat call. Degraded replies carry fallback text
// that looks like a normal reply on the wire; Kind and Err keep them apart.
type Reply struct {
	Text string
	Kind ReplyKind
	Err  error
}

func (r Reply) Degraded() bool {
	return r.Kind != ReplyModel
}

// Synthesis is the persisted reply audio.
type Synthesis struct {
	Path  string
	Audio []byte
}
