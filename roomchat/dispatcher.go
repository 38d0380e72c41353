package roomchat

// Dispatcher routes session notifications to registered callbacks.
// A Session invokes it only from its event loop.
type Dispatcher struct {
	onError        func(error)
	onStateChanged func(StateEvent)
	onSent         func(Message)
}

func (d *Dispatcher) SetOnError(fn func(error))             { d.onError = fn }
func (d *Dispatcher) SetOnStateChanged(fn func(StateEvent)) { d.onStateChanged = fn }
func (d *Dispatcher) SetOnSent(fn func(Message))            { d.onSent = fn }

func (d *Dispatcher) fireError(err error) {
	if d.onError != nil && err != nil {
		d.onError(err)
	}
}

func (d *Dispatcher) fireState(ev StateEvent) {
	if d.onStateChanged != nil {
		d.onStateChanged(ev)
	}
}

func (d *Dispatcher) fireSent(m Message) {
	if d.onSent != nil {
		d.onSent(m)
	}
}
