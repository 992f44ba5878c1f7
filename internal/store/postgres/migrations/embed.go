package migrations

import "embed"

// FS 内嵌的 PostgreSQL 建表脚本
//
//go:embed *.sql
var FS embed.FS
