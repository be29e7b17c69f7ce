package storage

import "time"

const (
	PaperStatusProcessing = "processing"
	PaperStatusReady      = "ready"
	PaperStatusFailed     = "failed"
)

// Paper 表示一篇已上传的论文。正文与向量存放在向量库中，这里只保存元信息。
type Paper struct {
	// ID 为论文唯一标识（UUID），同时作为向量库中 paper_id 元数据。
	ID string `gorm:"primaryKey;size:64"`
	// Filename 为用户上传时的原始文件名。
	Filename string `gorm:"size:512;not null"`
	// Title 为从首页推测的标题（可能为空）。
	Title string `gorm:"size:1024"`
	// Path 为 PDF 在本地磁盘上的保存路径，用于下载。
	Path   string `gorm:"size:1024;not null"`
	Pages  int    `gorm:"not null;default:0"`
	Chunks int    `gorm:"not null;default:0"`
	// Tokens 为全部分块的 token 总数（tiktoken 估算）。
	Tokens int `gorm:"not null;default:0"`
	// Status: processing/ready/failed
	Status       string    `gorm:"size:32;not null;index"`
	ErrorMessage string    `gorm:"type:text"`
	UploadedAt   time.Time `gorm:"not null;index"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime"`
}

// Checkpoint 保存某个会话最近一次提交的 Agent 状态快照（每个会话一行，覆盖写）。
type Checkpoint struct {
	SessionID string `gorm:"primaryKey;size:64"`
	// Node 为最后一个成功执行的图节点。
	Node string `gorm:"size:64;not null"`
	Step int    `gorm:"not null;default:0"`
	// StateJSON 为序列化后的完整状态。
	StateJSON string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// AuditRecord 记录一次工具调用及其结果，用于审计与追溯。
//
// 一条审计记录对应 Agent 在某个会话中的一次工具执行（例如：检索、arXiv 搜索、代码执行）。
// 入参/输出统一以字符串存放，超长内容会被截断。
type AuditRecord struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// TraceID 串联一次会话，取值为 session id。
	TraceID string `gorm:"size:64;index"`
	// Action 为工具名（例如 retrieve / execute_code）。
	Action     string `gorm:"size:128;not null;index"`
	ParamsJSON string `gorm:"type:text"`
	ResultJSON string `gorm:"type:text"`
	// Status 表示执行状态（running/success/failed）。
	Status       string    `gorm:"size:32;not null;index"`
	ErrorMessage string    `gorm:"type:text"`
	StartedAt    time.Time `gorm:"index"`
	FinishedAt   time.Time `gorm:"index"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime;index"`
}
