package device

// Service is a unit of background work a Device drives through its
// lifecycle: started once in Start, polled on every HandleEvents, and
// stopped once in Stop. Grounded on UwService's
// start/event/stop_handler triple in service.c, expressed here as an
// interface plus a slice registration instead of the origin's
// intrusive linked list.
type Service interface {
	// Start begins the service's work.
	Start()
	// HandleEvents advances the service and reports whether it still has
	// work pending (keeping the device's work state busy).
	HandleEvents() bool
	// Stop ends the service's work.
	Stop()
}

// RegisterService appends svc to the device's service list. Services run
// in registration order, matching uw_service_register_next_ appending to
// the end of the chain.
func (d *Device) RegisterService(svc Service) {
	d.services = append(d.services, svc)
}
