package models

import (
	"time"
)

// Assignment 设备分配记录（对应 device_assignments 表）
// 同一设备同一时刻最多一条非 released 的分配
// version 用于 compare-and-swap 更新，避免并发下 last-write-wins
type Assignment struct {
	DeviceID        string    `json:"device_id" db:"device_id"`
	AssignedUserID  string    `json:"assigned_user_id" db:"assigned_user_id"`
	ActiveSessionID string    `json:"active_session_id" db:"active_session_id"`
	AssignedAt      time.Time `json:"assigned_at" db:"assigned_at"`
	Status          string    `json:"status" db:"status"` // active, released
	Version         int64     `json:"version" db:"version"`
}

// Assignment 状态
const (
	AssignmentStatusActive   = "active"
	AssignmentStatusReleased = "released"
)

// Session 佩戴会话（对应 wear_sessions 表）
// 不变式：一个用户同一时刻最多一个 active 会话
type Session struct {
	SessionID string     `json:"session_id" db:"session_id"`
	UserID    string     `json:"user_id" db:"user_id"`
	DeviceID  string     `json:"device_id" db:"device_id"`
	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	Status    string     `json:"status" db:"status"` // active, completed
}

// Session 状态
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
)
