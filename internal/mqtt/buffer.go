package mqtt

import "go.uber.org/zap"

// ringBuffer is a fixed-capacity FIFO of messages held while the broker is
// unreachable. When full the oldest message is dropped, and the first drop
// since the last drain is logged. Not safe for concurrent use.
type ringBuffer struct {
	buf      []Message
	capacity int
	head     int // next write position
	count    int
	overflow bool // true if any message was dropped since last drain
	log      *zap.SugaredLogger
}

func newRingBuffer(capacity int, log *zap.SugaredLogger) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ringBuffer{
		buf:      make([]Message, capacity),
		capacity: capacity,
		log:      log,
	}
}

func (r *ringBuffer) push(msg Message) {
	if r.count == r.capacity {
		if !r.overflow {
			r.log.Warnf("mqtt: buffer full (%d messages), dropping oldest", r.capacity)
			r.overflow = true
		}
		// head points at the oldest entry when full
		r.buf[r.head] = msg
		r.head = (r.head + 1) % r.capacity
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
}

func (r *ringBuffer) drainAll() []Message {
	if r.count == 0 {
		return nil
	}

	result := make([]Message, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}

	r.count = 0
	r.head = 0
	r.overflow = false
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
