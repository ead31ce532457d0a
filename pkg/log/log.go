// Package log 是全局 zap SugaredLogger 的轻量封装，业务代码不直接持有 logger。
package log

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 未初始化时退化为 no-op，库代码和测试可以无条件调用。
var sugar = zap.NewNop().Sugar()

// Init 按配置构建全局 logger。
// format 为 console 时输出带颜色的开发格式，其余输出生产 JSON；
// level 不可识别时回退到 info；outputPath 非空时在 stdout 之外追加文件输出。
func Init(level, format, outputPath string) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.OutputPaths = []string{"stdout"}
	if outputPath != "" {
		_ = os.MkdirAll(outputPath, os.ModePerm)
		cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(outputPath, "spechub.log"))
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	sugar = logger.Sugar()
}

// Info 记录一条 info 级别的日志。
func Info(msg string) {
	sugar.Info(msg)
}

// Infof 以格式化字符串记录 info 级别日志。
func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

// Infow 以键值对记录结构化的 info 级别日志，复杂上下文优先用它。
func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

// Warnf 以格式化字符串记录 warn 级别日志。
func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

// Error 记录一条 error 级别的日志并附带 error 字段。
func Error(msg string, err error) {
	sugar.Errorw(msg, "error", err)
}

// Errorf 以格式化字符串记录 error 级别日志。
func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

// Fatal 记录一条 fatal 级别的日志并附带 error 字段，随后退出进程。
func Fatal(msg string, err error) {
	sugar.Fatalw(msg, "error", err)
}

// Fatalf 以格式化字符串记录 fatal 级别日志，随后退出进程。
func Fatalf(template string, args ...interface{}) {
	sugar.Fatalf(template, args...)
}

// Sync 把缓冲中的日志刷到底层 Writer，进程退出前调用。
func Sync() {
	_ = sugar.Sync()
}
