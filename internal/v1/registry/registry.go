// Package registry is the authoritative, concurrency-safe store of users and
// chatrooms. It owns both collections exclusively; callers only ever see
// snapshots taken under the registry's locks.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/chatwire/chatserver/internal/v1/logging"
	"github.com/chatwire/chatserver/internal/v1/metrics"
)

// SocketID is the opaque per-connection identity key.
type SocketID string

var (
	ErrDuplicateName   = errors.New("registry: username already in use")
	ErrDuplicateSocket = errors.New("registry: socket already has a user")
	ErrUnknownUser     = errors.New("registry: unknown user")
	ErrUnknownRoom     = errors.New("registry: unknown room")
	ErrNotAMember      = errors.New("registry: user is not a member of room")
)

// UserInfo is the externally visible identity of a user.
type UserInfo struct {
	Username string
	Addr     string
}

// Member is one entry of a room membership snapshot.
type Member struct {
	Username string
	Addr     string
}

type user struct {
	info  UserInfo
	rooms map[string]struct{}
}

type room struct {
	members map[SocketID]struct{}
}

// Registry holds the user set and the room map.
//
// Lock ordering: roomsMu is acquired before usersMu, never the reverse.
// Every operation that touches both collections must obey this; single-lock
// operations may take either one independently. No lock is held across I/O.
type Registry struct {
	roomsMu sync.Mutex
	rooms   map[string]*room

	usersMu sync.Mutex
	users   map[SocketID]*user
	byName  map[string]SocketID
}

func New() *Registry {
	return &Registry{
		rooms:  make(map[string]*room),
		users:  make(map[SocketID]*user),
		byName: make(map[string]SocketID),
	}
}

// AddUser inserts a new identified user. It rejects a username already in
// use and a socket that already has a user, with no side effect on failure.
func (r *Registry) AddUser(id SocketID, username, addr string) error {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	if _, taken := r.byName[username]; taken {
		return ErrDuplicateName
	}
	if _, exists := r.users[id]; exists {
		return ErrDuplicateSocket
	}

	r.users[id] = &user{
		info:  UserInfo{Username: username, Addr: addr},
		rooms: make(map[string]struct{}),
	}
	r.byName[username] = id

	metrics.ActiveUsers.Set(float64(len(r.users)))
	r.logStatsUsersLocked()
	return nil
}

// RemoveUser removes the user and its memberships. Rooms left empty are
// deleted. It returns the removed user's identity and former room names so
// the caller can emit leave notifications. An absent user is a no-op.
func (r *Registry) RemoveUser(id SocketID) (UserInfo, []string, bool) {
	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()
	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return UserInfo{}, nil, false
	}

	affected := make([]string, 0, len(u.rooms))
	for name := range u.rooms {
		affected = append(affected, name)
		rm, ok := r.rooms[name]
		if !ok {
			continue
		}
		delete(rm.members, id)
		if len(rm.members) == 0 {
			delete(r.rooms, name)
		}
	}
	sort.Strings(affected)

	delete(r.users, id)
	delete(r.byName, u.info.Username)

	metrics.ActiveUsers.Set(float64(len(r.users)))
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	r.logStatsLocked()
	return u.info, affected, true
}

// EnterRoom atomically records the pairing of user and room, creating the
// room if it does not exist.
func (r *Registry) EnterRoom(id SocketID, roomName string) error {
	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()
	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUnknownUser
	}

	u.rooms[roomName] = struct{}{}

	rm, ok := r.rooms[roomName]
	if !ok {
		rm = &room{members: make(map[SocketID]struct{})}
		r.rooms[roomName] = rm
	}
	rm.members[id] = struct{}{}

	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	r.logStatsLocked()
	return nil
}

// LeaveRoom atomically removes the pairing and deletes the room if its
// membership drops to zero. Leaving a room the user is not in is a no-op
// reported as ErrNotAMember.
func (r *Registry) LeaveRoom(id SocketID, roomName string) error {
	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()
	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUnknownUser
	}
	if _, member := u.rooms[roomName]; !member {
		return ErrNotAMember
	}

	delete(u.rooms, roomName)

	if rm, ok := r.rooms[roomName]; ok {
		delete(rm.members, id)
		if len(rm.members) == 0 {
			delete(r.rooms, roomName)
		}
	}

	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	r.logStatsLocked()
	return nil
}

// ListRoomNames returns a consistent point-in-time snapshot of live room
// names, sorted ascending.
func (r *Registry) ListRoomNames() []string {
	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()

	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListRoomMembers returns a consistent snapshot of the named room's members,
// sorted by username.
func (r *Registry) ListRoomMembers(roomName string) ([]Member, error) {
	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()

	rm, ok := r.rooms[roomName]
	if !ok {
		return nil, ErrUnknownRoom
	}

	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	members := make([]Member, 0, len(rm.members))
	for id := range rm.members {
		if u, ok := r.users[id]; ok {
			members = append(members, Member{Username: u.info.Username, Addr: u.info.Addr})
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Username < members[j].Username })
	return members, nil
}

// UserBySocket returns the identity of the user on the given socket.
func (r *Registry) UserBySocket(id SocketID) (UserInfo, bool) {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return UserInfo{}, false
	}
	return u.info, true
}

// RoomMembersSnapshot returns the socket IDs of the named room's members,
// taken atomically for fan-out. An unknown room yields an empty snapshot.
func (r *Registry) RoomMembersSnapshot(roomName string) []SocketID {
	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()

	rm, ok := r.rooms[roomName]
	if !ok {
		return nil
	}

	ids := make([]SocketID, 0, len(rm.members))
	for id := range rm.members {
		ids = append(ids, id)
	}
	return ids
}

// Counts reports the number of live users and rooms.
func (r *Registry) Counts() (users, rooms int) {
	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()
	r.usersMu.Lock()
	defer r.usersMu.Unlock()
	return len(r.users), len(r.rooms)
}

// logStatsLocked logs user/room counts. Caller holds roomsMu and usersMu.
func (r *Registry) logStatsLocked() {
	logging.Debug(context.Background(), "registry statistics",
		zap.Int("users", len(r.users)),
		zap.Int("rooms", len(r.rooms)))
}

// logStatsUsersLocked logs the user count alone. Caller holds usersMu only;
// reading the room map here would acquire roomsMu after usersMu and violate
// the lock ordering.
func (r *Registry) logStatsUsersLocked() {
	logging.Debug(context.Background(), "registry statistics",
		zap.Int("users", len(r.users)))
}
