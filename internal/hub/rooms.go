package hub

// Rooms maps room names to their current member sets. It is deliberately
// unsynchronized: all mutation and iteration happens on the dispatcher
// goroutine, which is the single writer of connection state. It is
// injected into the Hub at construction so tests can inspect it directly.
type Rooms struct {
	rooms map[string]map[*Session]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]map[*Session]struct{})}
}

// Register adds a session to a room, creating the room on first
// reference. Registering an existing member is a no-op.
func (r *Rooms) Register(name string, s *Session) {
	members, ok := r.rooms[name]
	if !ok {
		members = make(map[*Session]struct{})
		r.rooms[name] = members
	}
	members[s] = struct{}{}
}

// Unregister removes a session from a room. It is a no-op when the
// session is not a member, so a socket error followed by an explicit
// close is harmless. An emptied room is garbage-collected.
func (r *Rooms) Unregister(name string, s *Session) {
	members, ok := r.rooms[name]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(r.rooms, name)
	}
}

// MembersOf returns a snapshot of the room's current members. The slice
// is taken at call time; broadcasts must call this after any suspension
// point, never reuse an earlier snapshot.
func (r *Rooms) MembersOf(name string) []*Session {
	members, ok := r.rooms[name]
	if !ok {
		return nil
	}
	snapshot := make([]*Session, 0, len(members))
	for s := range members {
		snapshot = append(snapshot, s)
	}
	return snapshot
}

// Names lists rooms that currently have members.
func (r *Rooms) Names() []string {
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	return names
}
