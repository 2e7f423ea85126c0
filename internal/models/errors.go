package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation 注册表输入无效（名称或地址为空）
	ErrValidation = errors.New("validation error")
	// ErrPersistence 存储写入失败，内存状态仍然有效
	ErrPersistence = errors.New("persistence error")
	// ErrTransport 套接字层面的失败或关闭
	ErrTransport = errors.New("transport error")
	// ErrDecode 帧不是合法的结构化数据
	ErrDecode = errors.New("decode error")
	// ErrSchema 消息类型可识别，但负载未通过字段或策略类型校验
	ErrSchema = errors.New("schema error")
	// ErrUnknownMessage 未知的消息类型
	ErrUnknownMessage = errors.New("unrecognized message")
	// ErrNotFound 连接ID不存在
	ErrNotFound = errors.New("connection not found")
	// ErrReleased Store 已随会话关闭而释放
	ErrReleased = errors.New("store released")
	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("session closed")
)

// FieldError 描述导致消息被拒绝的具体字段
type FieldError struct {
	Kind   string
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("schema error: %s.%s: %s", e.Kind, e.Field, e.Reason)
}

// Unwrap 使 errors.Is(err, ErrSchema) 成立
func (e *FieldError) Unwrap() error {
	return ErrSchema
}
