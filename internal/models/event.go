package models

import "time"

// BedEventType 变更事件类型
type BedEventType string

const (
	EventInsert BedEventType = "insert"
	EventUpdate BedEventType = "update"
	EventDelete BedEventType = "delete"
)

// BedEvent 变更流消息：整行替换
type BedEvent struct {
	EventType   BedEventType `json:"event_type"`
	Bed         Bed          `json:"bed"`
	Origin      string       `json:"origin,omitempty"` // 写入方 client id
	PublishedAt time.Time    `json:"published_at"`
}
