package config

import "errors"

var (
	// ErrConfigNotFound 配置文件不存在
	ErrConfigNotFound = errors.New("config: file not found")
	// ErrConfigReadFailed 配置文件读取失败
	ErrConfigReadFailed = errors.New("config: read failed")
	// ErrConfigInvalid 配置内容非法
	ErrConfigInvalid = errors.New("config: invalid settings")
)
