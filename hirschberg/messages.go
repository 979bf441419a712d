package hirschberg

// Operation names the runtime dispatches on.
const (
	MsgReceiveOut = "ReceiveOut"
	MsgReceiveIn  = "ReceiveIn"
)

// OutMessage is the forward-direction probe: is Candidate still the
// farthest known candidate after Hops more hops? The sender is named by
// the envelope, so the receiver can derive its other neighbour.
type OutMessage struct {
	Candidate int64 `json:"candidate"`
	Hops      int64 `json:"hops"`
}

// InMessage is the return-direction confirmation that Candidate survived
// its hop budget in this direction.
type InMessage struct {
	Candidate int64 `json:"candidate"`
}
