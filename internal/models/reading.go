package models

// Reading 一条生理读数（入流后不可变）
// 运动强度和体温为可选字段：nil 表示传感器未上报，与数值 0 含义不同
type Reading struct {
	SessionID     string   `json:"session_id,omitempty"`
	Timestamp     int64    `json:"timestamp"` // Unix 时间戳（秒）
	HeartRate     float64  `json:"heart_rate"`
	SpO2          float64  `json:"spo2"`
	MovementLevel *float64 `json:"movement_level,omitempty"`
	BodyTemp      *float64 `json:"body_temp,omitempty"`
}

// StreamReading 接入流上的标准化读数（由 MQTT 接入桥发布到 Redis Streams）
type StreamReading struct {
	DeviceID      string   `json:"device_id"`
	Timestamp     int64    `json:"timestamp"`
	HeartRate     float64  `json:"heart_rate"`
	SpO2          float64  `json:"spo2"`
	MovementLevel *float64 `json:"movement_level,omitempty"`
	BodyTemp      *float64 `json:"body_temp,omitempty"`
}

// ToReading 转换为核心读数（SessionID 由会话解析后填入）
func (s *StreamReading) ToReading() Reading {
	return Reading{
		Timestamp:     s.Timestamp,
		HeartRate:     s.HeartRate,
		SpO2:          s.SpO2,
		MovementLevel: s.MovementLevel,
		BodyTemp:      s.BodyTemp,
	}
}
