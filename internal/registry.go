package internal

type member struct {
	conn Conn
	role Role
}

// Registry holds the device slot and the monitor set. It does no locking of
// its own; the Relay owns it and serializes every call.
type Registry struct {
	device   Conn
	monitors map[string]Conn
	members  map[string]member

	// swept is the device a sweep cleared before its close was handled.
	swept string
}

func NewRegistry() *Registry {
	return &Registry{
		monitors: make(map[string]Conn),
		members:  make(map[string]member),
	}
}

func (r *Registry) RoleOf(c Conn) Role {
	return r.members[c.ID()].role
}

// AssignDevice makes c the device, forgetting (not closing) any previous one.
func (r *Registry) AssignDevice(c Conn) {
	delete(r.monitors, c.ID())
	r.device = c
	r.swept = ""
	r.members[c.ID()] = member{conn: c, role: RoleDevice}
}

func (r *Registry) AddMonitor(c Conn) {
	r.monitors[c.ID()] = c
	r.members[c.ID()] = member{conn: c, role: RoleMonitor}
}

// Remove forgets c and reports whether it occupied the device slot.
func (r *Registry) Remove(c Conn) bool {
	id := c.ID()
	delete(r.members, id)
	delete(r.monitors, id)

	if r.device != nil && r.device.ID() == id {
		r.device = nil
		return true
	}

	return false
}

// ClaimSwept reports whether c is the device last cleared by a sweep, with no
// device assigned since. It answers true at most once per sweep.
func (r *Registry) ClaimSwept(c Conn) bool {
	if r.swept == "" || r.swept != c.ID() {
		return false
	}

	r.swept = ""
	return true
}

func (r *Registry) IsDevice(c Conn) bool {
	return r.device != nil && r.device.ID() == c.ID()
}

func (r *Registry) Device() Conn {
	return r.device
}

func (r *Registry) IsDeviceConnected() bool {
	return r.device != nil && r.device.Alive()
}

func (r *Registry) MonitorCount() int {
	return len(r.monitors)
}

func (r *Registry) LiveMonitorCount() int {
	n := 0
	for _, c := range r.monitors {
		if c.Alive() {
			n++
		}
	}

	return n
}

func (r *Registry) Monitors() []Conn {
	conns := make([]Conn, 0, len(r.monitors))
	for _, c := range r.monitors {
		conns = append(conns, c)
	}

	return conns
}

// Prune drops monitors whose connection is no longer alive.
func (r *Registry) Prune() int {
	n := 0
	for id, c := range r.monitors {
		if !c.Alive() {
			delete(r.monitors, id)
			delete(r.members, id)
			n++
		}
	}

	return n
}

// Sweep evicts every dead entry, including a dead device, and returns how many
// monitors went and whether the device slot was cleared.
func (r *Registry) Sweep() (int, bool) {
	n := r.Prune()

	for id, m := range r.members {
		if !m.conn.Alive() {
			delete(r.members, id)
		}
	}

	if r.device != nil && !r.device.Alive() {
		r.swept = r.device.ID()
		r.device = nil
		return n, true
	}

	return n, false
}
