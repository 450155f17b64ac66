// Package session 管理已认证会话的生命周期。
//
// 每个 websocket 推送和由治疗师会话驱动的后台分析都运行在一个 Scope 中，
// 用户登出时 End 会取消该用户的全部 Scope，进程退出时 Shutdown 取消所有 Scope。
package session

import (
	"context"
	"sync"

	"mindscribe-go/pkg/log"
)

// Scope 是绑定到某个用户会话的可取消生命周期。
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	uid    string
	id     uint64
	m      *Manager
}

// Context 返回 Scope 的 context，Scope 结束时被取消。
func (s *Scope) Context() context.Context {
	return s.ctx
}

// UID 返回 Scope 所属的用户。
func (s *Scope) UID() string {
	return s.uid
}

// Close 结束 Scope 并将其从 Manager 中移除，可重复调用。
func (s *Scope) Close() {
	s.cancel()
	s.m.remove(s)
}

// Manager 是进程级的会话注册表。
type Manager struct {
	mu     sync.Mutex
	scopes map[string]map[uint64]*Scope
	nextID uint64
	closed bool
}

// NewManager 创建一个新的 Manager。
func NewManager() *Manager {
	return &Manager{scopes: make(map[string]map[uint64]*Scope)}
}

// Open 为用户打开一个新的 Scope。Manager 已关闭时返回的 Scope 已被取消。
func (m *Manager) Open(parent context.Context, uid string) *Scope {
	ctx, cancel := context.WithCancel(parent)
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	s := &Scope{ctx: ctx, cancel: cancel, uid: uid, id: m.nextID, m: m}
	if m.closed {
		cancel()
		return s
	}
	if m.scopes[uid] == nil {
		m.scopes[uid] = make(map[uint64]*Scope)
	}
	m.scopes[uid][s.id] = s
	return s
}

func (m *Manager) remove(s *Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if byUser, ok := m.scopes[s.uid]; ok {
		delete(byUser, s.id)
		if len(byUser) == 0 {
			delete(m.scopes, s.uid)
		}
	}
}

// End 取消某个用户的全部 Scope，返回被取消的数量。
func (m *Manager) End(uid string) int {
	m.mu.Lock()
	byUser := m.scopes[uid]
	delete(m.scopes, uid)
	m.mu.Unlock()

	for _, s := range byUser {
		s.cancel()
	}
	if len(byUser) > 0 {
		log.Infof("[Session] 已结束用户 %s 的 %d 个会话", uid, len(byUser))
	}
	return len(byUser)
}

// Active 返回某个用户当前活跃的 Scope 数量。
func (m *Manager) Active(uid string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scopes[uid])
}

// Shutdown 取消所有 Scope，之后 Open 返回的 Scope 都已取消。
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := m.scopes
	m.scopes = make(map[string]map[uint64]*Scope)
	m.closed = true
	m.mu.Unlock()

	for _, byUser := range all {
		for _, s := range byUser {
			s.cancel()
		}
	}
}
