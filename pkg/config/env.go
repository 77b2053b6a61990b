package config

import "os"

// EnvVar 选择配置环境的环境变量，对应 <env>.yaml
const EnvVar = "APP_ENV"

// GetEnv 获取环境变量，未设置时返回默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetConfigEnv 从 APP_ENV 读取配置环境，未设置时只加载 base.yaml
func GetConfigEnv() string {
	return GetEnv(EnvVar, "")
}
