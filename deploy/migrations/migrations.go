package migrations

import "embed"

// Files 内嵌按版本号命名的 SQL 迁移文件，由存储层在启动时执行。
//
//go:embed *.sql
var Files embed.FS
