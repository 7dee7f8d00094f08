package mqtt

import "log"

// pendingMsg is a serialized message held until the broker is reachable.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog is a fixed-capacity FIFO of messages queued while disconnected.
// When full, the oldest message is overwritten.
// Not safe for concurrent use; RealPublisher guards it with its mutex.
type backlog struct {
	msgs    []pendingMsg
	next    int // slot for the next push
	size    int
	dropped int // messages overwritten since the last drain
}

func newBacklog(capacity int) *backlog {
	return &backlog{msgs: make([]pendingMsg, capacity)}
}

func (b *backlog) push(msg pendingMsg) {
	b.msgs[b.next] = msg
	b.next = (b.next + 1) % len(b.msgs)
	if b.size < len(b.msgs) {
		b.size++
		return
	}
	if b.dropped == 0 {
		log.Printf("mqtt: backlog full (%d messages), dropping oldest", len(b.msgs))
	}
	b.dropped++
}

// drain returns queued messages oldest first and empties the backlog.
func (b *backlog) drain() []pendingMsg {
	if b.size == 0 {
		return nil
	}

	out := make([]pendingMsg, 0, b.size)
	first := (b.next - b.size + len(b.msgs)) % len(b.msgs)
	for i := 0; i < b.size; i++ {
		out = append(out, b.msgs[(first+i)%len(b.msgs)])
	}
	if b.dropped > 0 {
		log.Printf("mqtt: %d messages were dropped while disconnected", b.dropped)
	}

	b.next, b.size, b.dropped = 0, 0, 0
	return out
}

func (b *backlog) len() int {
	return b.size
}
