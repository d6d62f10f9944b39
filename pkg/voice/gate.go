package voice

// turnGate is a capacity-1 semaphore. Callers that fail to acquire it drop
// their work instead of waiting.
type turnGate chan struct{}

func newTurnGate() turnGate {
	return make(turnGate, 1)
}

// TryAcquire takes the gate without blocking.
func (g turnGate) TryAcquire() bool {
	select {
	case g <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the gate. Releasing a free gate is a no-op.
func (g turnGate) Release() {
	select {
	case <-g:
	default:
	}
}

// Busy reports whether the gate is held.
func (g turnGate) Busy() bool {
	return len(g) == 1
}
