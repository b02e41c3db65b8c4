package server

import (
	"context"
	"errors"
	"sort"

	"github.com/sasha-s/go-deadlock"
)

const maxRoomNameLen = 64

// RoomManager 管理多个房间的生命周期：首次加入时创建，最后一名成员离开后移除
type RoomManager struct {
	mu    deadlock.RWMutex
	rooms map[string]*Room
	cfg   RoomConfig
}

// RoomInfo is the listing entry of one room.
type RoomInfo struct {
	Name    string `json:"name"`
	Players int    `json:"players"`
}

// NewRoomManager returns an empty manager whose rooms use cfg.
func NewRoomManager(cfg RoomConfig) *RoomManager {
	return &RoomManager{rooms: make(map[string]*Room), cfg: cfg}
}

// ValidRoomName reports whether name may be used as a room name.
func ValidRoomName(name string) bool {
	if name == "" || len(name) > maxRoomNameLen {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

// GetOrCreateRoom 获取或创建房间，并确保房间协程已启动
func (m *RoomManager) GetOrCreateRoom(name string) (*Room, error) {
	if !ValidRoomName(name) {
		return nil, ErrBadRoomName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[name]; ok {
		return r, nil
	}
	r, err := NewRoom(name, m.cfg)
	if err != nil {
		return nil, err
	}
	r.onEmpty = m.removeRoom
	m.rooms[name] = r
	r.Start()
	Log.Infow("room created", "room", name, "maze_size", m.cfg.MazeSize)
	return r, nil
}

// GetRoom returns an existing room.
func (m *RoomManager) GetRoom(name string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// JoinOrCreate joins conn to the room called name. With create false the
// room must already exist. A room that closes between lookup and join is
// replaced by a fresh one.
func (m *RoomManager) JoinOrCreate(ctx context.Context, name string, create bool, conn Conn) (*Room, string, error) {
	for {
		var (
			r   *Room
			err error
		)
		if create {
			r, err = m.GetOrCreateRoom(name)
		} else {
			if !ValidRoomName(name) {
				return nil, "", ErrBadRoomName
			}
			r, err = m.GetRoom(name)
		}
		if err != nil {
			return nil, "", err
		}
		id, err := r.Join(ctx, conn)
		if errors.Is(err, ErrRoomClosed) {
			m.forget(r)
			if !create {
				return nil, "", ErrRoomNotFound
			}
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return r, id, nil
	}
}

// ListRooms returns the live rooms sorted by name.
func (m *RoomManager) ListRooms() []RoomInfo {
	m.mu.RLock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for name, r := range m.rooms {
		out = append(out, RoomInfo{Name: name, Players: r.NumPlayers()})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CloseAll stops every room and waits for them to exit or ctx to end.
func (m *RoomManager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for name, r := range m.rooms {
		rooms = append(rooms, r)
		delete(m.rooms, name)
	}
	m.mu.Unlock()

	for _, r := range rooms {
		r.Stop()
	}
	for _, r := range rooms {
		select {
		case <-r.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// removeRoom 房间清空后在房间协程中调用
func (m *RoomManager) removeRoom(r *Room) {
	m.forget(r)
	r.Stop()
	Log.Infow("room removed", "room", r.ID)
}

func (m *RoomManager) forget(r *Room) {
	m.mu.Lock()
	if m.rooms[r.ID] == r {
		delete(m.rooms, r.ID)
	}
	m.mu.Unlock()
}
