package service

import "ecs/backend/internal/domain"

// Publisher 公文变更通知的发布端，只在事务提交后调用
type Publisher interface {
	Publish(event domain.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(domain.Event) {}
