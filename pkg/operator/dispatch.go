package operator

// Loop serializes device callbacks onto a single controller goroutine.
// Workers hand their readiness and error events to the loop through a
// bounded channel; the loop invokes the corresponding device hooks one at
// a time, so no device callback ever runs concurrently with another.
type Loop struct {
	ch   chan func()
	quit chan struct{}
	done chan struct{}
}

const defaultLoopBuffer = 64

// NewLoop creates a dispatch loop with the given channel capacity. A zero
// or negative buffer selects the default.
func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = defaultLoopBuffer
	}
	return &Loop{
		ch:   make(chan func(), buffer),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start runs the loop on its own goroutine
func (l *Loop) Start() {
	go l.run()
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.ch:
			fn()
		case <-l.quit:
			// Drain whatever was already queued before exiting so no
			// event that made it into the channel is lost.
			for {
				select {
				case fn := <-l.ch:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Post enqueues fn for execution on the loop goroutine. It blocks while the
// channel is full, providing backpressure to fast workers. Posting to a
// stopped loop discards fn.
func (l *Loop) Post(fn func()) {
	select {
	case l.ch <- fn:
	case <-l.done:
	}
}

// Stop asks the loop to exit and waits until pending callbacks have run
func (l *Loop) Stop() {
	close(l.quit)
	<-l.done
}
