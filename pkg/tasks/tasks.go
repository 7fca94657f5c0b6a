// Package tasks 定义通过 Kafka 传递的异步任务。
package tasks

import "fmt"

// IngestTask 表示一次文档入库任务。ExtractedText 为空时从对象存储读取 ObjectName 并用 Tika 提取文本。
type IngestTask struct {
	TaskID        string `json:"task_id"`
	DocumentID    uint   `json:"document_id"`
	FileName      string `json:"file_name"`
	ObjectName    string `json:"object_name,omitempty"`
	ExtractedText string `json:"extracted_text,omitempty"`
}

// Key 用作 Kafka 消息 key，同一文档的任务落在同一分区并按顺序处理。
func (t IngestTask) Key() []byte {
	return []byte(fmt.Sprintf("document-%d", t.DocumentID))
}
