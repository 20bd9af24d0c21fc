package window

import (
	"sort"
	"sync"
	"time"

	"wisefido-anxiety/internal/models"
)

// Store 每会话固定容量的滑动窗口存储
// 这是系统唯一保留的历史：窗口以外的读数设计上不可达，
// 因此无论会话跑多久，内存占用和"持续升高"扫描的代价都是常数
//
// 并发约定：不同会话可以并发读写；同一会话的读数必须由调用方
// 串行送入（消费者按设备分发到单个 worker），Store 自身只保证 map 安全
type Store struct {
	capacity int

	mu       sync.RWMutex
	sessions map[string][]models.Reading // 按 Timestamp 升序
}

// NewStore 创建窗口存储
// capacity 为每个会话保留的最近读数条数（如 50）
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 50
	}
	return &Store{
		capacity: capacity,
		sessions: make(map[string][]models.Reading),
	}
}

// Append 按时间戳顺序插入读数，超出容量时淘汰最旧的一条（严格 FIFO 滑动窗口）
// 返回插入后的窗口大小
func (s *Store) Append(sessionID string, reading models.Reading) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.sessions[sessionID]

	// 常见情况：新读数时间戳最大，直接追加；
	// 乱序到达时按时间戳找到插入位置
	if n := len(entries); n == 0 || reading.Timestamp >= entries[n-1].Timestamp {
		entries = append(entries, reading)
	} else {
		idx := sort.Search(n, func(i int) bool {
			return entries[i].Timestamp > reading.Timestamp
		})
		entries = append(entries, models.Reading{})
		copy(entries[idx+1:], entries[idx:])
		entries[idx] = reading
	}

	// 淘汰最旧的条目
	if len(entries) > s.capacity {
		entries = entries[len(entries)-s.capacity:]
	}

	s.sessions[sessionID] = entries
	return len(entries)
}

// RecentWithin 返回窗口中 timestamp >= now - duration 的读数（只读视图，返回拷贝）
// 结果不可能超过窗口容量：持续检测的灵敏度受窗口填充速度限制
func (s *Store) RecentWithin(sessionID string, duration time.Duration, now time.Time) []models.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.sessions[sessionID]
	if len(entries) == 0 {
		return nil
	}

	cutoff := now.Add(-duration).Unix()
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].Timestamp >= cutoff
	})

	if idx >= len(entries) {
		return nil
	}

	result := make([]models.Reading, len(entries)-idx)
	copy(result, entries[idx:])
	return result
}

// Size 返回会话窗口当前大小
func (s *Store) Size(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID])
}

// Snapshot 返回会话窗口的完整拷贝（按时间戳升序）
func (s *Store) Snapshot(sessionID string) []models.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.sessions[sessionID]
	if len(entries) == 0 {
		return nil
	}

	result := make([]models.Reading, len(entries))
	copy(result, entries)
	return result
}

// Drop 丢弃会话的窗口（会话结束时调用，窗口随会话一起失效）
func (s *Store) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
