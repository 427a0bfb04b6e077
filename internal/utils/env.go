// 包 utils：环境变量读取与外部连接（PostgreSQL/Redis）工具
package utils

import (
	"os"
	"strconv"
	"strings"
)

// EnvString：读取字符串环境变量，未设置时返回默认值
func EnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvInt：读取整数环境变量
// 约束：解析失败或非正数时回退默认值，配置错误不阻断启动
func EnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func EnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

// EnvBool：仅识别 true/false（大小写不敏感），其余取默认值
func EnvBool(key string, def bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true":
		return true
	case "false":
		return false
	}
	return def
}
