package domain

import "time"

// EventType 实时推送的事件类型
type EventType string

const (
	EventCorrespondenceAdded   EventType = "correspondence_added"
	EventCorrespondenceUpdated EventType = "correspondence_updated"
	EventCorrespondenceDeleted EventType = "correspondence_deleted"
)

// EventData 事件载荷，只包含列表展示所需字段
type EventData struct {
	ID              uint      `json:"id"`
	Subject         string    `json:"subject"`
	ReferenceNumber string    `json:"reference_number"`
	Type            Direction `json:"type"`
	Department      string    `json:"department,omitempty"`
}

// Event 推送给已登录浏览器的公文变更通知
type Event struct {
	Type      EventType `json:"type"`
	Data      EventData `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCorrespondenceEvent 根据公文构造事件
func NewCorrespondenceEvent(eventType EventType, c *Correspondence, department string, now time.Time) Event {
	return Event{
		Type: eventType,
		Data: EventData{
			ID:              c.ID,
			Subject:         c.Subject,
			ReferenceNumber: c.ReferenceNumber,
			Type:            c.Type,
			Department:      department,
		},
		Timestamp: now.UTC(),
	}
}
