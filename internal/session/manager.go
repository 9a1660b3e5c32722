// Package session 管理自动化会话：每个会话持有一个浏览器连接及其等待、交互与下载监视。
package session

import (
	"sort"
	"sync"

	"cdprpa/internal/logger"
	"cdprpa/pkg/domain"
)

// Manager 会话注册表
type Manager struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*Session
	log      logger.Logger
}

// NewManager 创建会话注册表
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[domain.SessionID]*Session),
		log:      l,
	}
}

// Add 注册会话，同 ID 的旧会话被替换
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
	m.log.Info("创建自动化会话", "sessionID", string(s.ID()), "devtools", s.devtoolsURL)
}

// Get 获取会话
func (m *Manager) Get(id domain.SessionID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete 注销会话并返回它
func (m *Manager) Delete(id domain.SessionID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		m.log.Info("销毁自动化会话", "sessionID", string(id))
	}
	return s, ok
}

// List 按创建时间返回所有活动会话
func (m *Manager) List() []*Session {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].createdAt.Equal(list[j].createdAt) {
			return list[i].id < list[j].id
		}
		return list[i].createdAt.Before(list[j].createdAt)
	})
	return list
}
