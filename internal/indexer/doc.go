// Package indexer 订阅账本提交的日志，按合约 ABI 解码为结构化事件并写入存储，
// 为 HTTP 查询与审计提供历史记录。
package indexer
