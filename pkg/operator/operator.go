package operator

// Reporter is the error surface a runtime offers to its operator. Operators
// may report at any time, before or after Prepare has completed; every
// report becomes an error event delivered to the owning device.
type Reporter interface {
	// ReportError delivers a structured message with optional detail
	ReportError(message string, detail interface{})
	// ReportFault delivers a wrapped error value
	ReportFault(err error)
}

// Operator is the unit of background work a device offloads to a worker
// goroutine. Prepare runs exactly once right after the worker starts and
// may block for arbitrary durations (hardware I/O); Finalize runs exactly
// once when the worker is asked to stop. Neither is ever called on the
// controller goroutine.
//
// Implementations embed Base to get Bind and the error-reporting helpers.
type Operator interface {
	// Bind attaches the runtime's reporter before the worker starts
	Bind(Reporter)
	// Prepare performs the blocking setup work and returns its result
	Prepare(args interface{}) (interface{}, error)
	// Finalize performs teardown. A failure here is reported but never
	// blocks the worker from exiting.
	Finalize() error
}

// Device is the capability surface a runtime drives on behalf of its owner.
// OperatorReady fires at most once per activation cycle; ShowError and
// ShowException forward reported failures upward; Kill tears the device
// down after a fatal initialization failure.
type Device interface {
	OperatorReady(result interface{})
	ShowError(message string, detail interface{})
	ShowException(err error)
	Kill()
}

// Base is an embeddable partial Operator implementation. It carries the
// bound reporter and provides no-op Prepare and Finalize so operators only
// implement what they need.
type Base struct {
	rep Reporter
}

// Bind stores the reporter. The runtime calls this before starting the
// worker, so operator code may use the reporting helpers from any of its
// goroutines afterwards.
func (b *Base) Bind(r Reporter) {
	b.rep = r
}

// ShowError reports a structured message with optional detail
func (b *Base) ShowError(message string, detail interface{}) {
	if b.rep != nil {
		b.rep.ReportError(message, detail)
	}
}

// ShowException reports a wrapped error value
func (b *Base) ShowException(err error) {
	if b.rep != nil {
		b.rep.ReportFault(err)
	}
}

// Prepare is a no-op returning a nil result
func (b *Base) Prepare(args interface{}) (interface{}, error) {
	return nil, nil
}

// Finalize is a no-op
func (b *Base) Finalize() error {
	return nil
}
