package models

import (
	"time"
)

// 注意：
// - 保持与 internal/migrate/sql 下的建表语句完全对齐
// - 不使用 gorm.Model，显式声明每个字段

// 帧方向（与协议方向字节一致）
const (
	DirectionDown int16 = 0
	DirectionUp   int16 = 1
)

// 帧日志结果
const (
	ResultOK          = "ok"           // 上行解码成功
	ResultRaw         = "raw"          // 上行无字段表，仅原始数据
	ResultDecodeError = "decode_error" // 上行数据区过短
	ResultSent        = "sent"         // 下行已写入链路
	ResultFailed      = "failed"       // 下行写入失败
)

// FrameLog 映射 frame_logs 表：每条收发帧一行
type FrameLog struct {
	ID        int64   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	LinkID    string  `gorm:"column:link_id;type:text;not null;index:idx_frame_logs_link_time,priority:1" json:"link_id"`
	Direction int16   `gorm:"column:direction;not null" json:"direction"`
	Module    int16   `gorm:"column:module;not null" json:"module"`
	Command   int16   `gorm:"column:command;not null" json:"command"`
	Payload   []byte  `gorm:"column:payload;type:bytea" json:"-"`
	Raw       string  `gorm:"column:raw;type:text;not null" json:"raw"`
	Decoded   []byte  `gorm:"column:decoded;type:jsonb" json:"decoded,omitempty"`
	CommandID *string `gorm:"column:command_id;type:uuid" json:"command_id,omitempty"`
	Result    string  `gorm:"column:result;type:text;not null" json:"result"`
	// 审计字段
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index:idx_frame_logs_link_time,priority:2,sort:desc" json:"created_at"`
}

func (FrameLog) TableName() string { return "frame_logs" }

// StatusSnapshot 映射 status_snapshots 表（复合主键：link_id + module + command）
type StatusSnapshot struct {
	LinkID    string    `gorm:"column:link_id;type:text;primaryKey" json:"link_id"`
	Module    int16     `gorm:"column:module;primaryKey" json:"module"`
	Command   int16     `gorm:"column:command;primaryKey" json:"command"`
	Fields    []byte    `gorm:"column:fields;type:jsonb;not null" json:"fields"`
	Summary   string    `gorm:"column:summary;type:text;not null" json:"summary"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (StatusSnapshot) TableName() string { return "status_snapshots" }
