package filesystem

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// PlatformUtils 平台兼容性工具
type PlatformUtils struct{}

// NewPlatformUtils 创建平台工具实例
func NewPlatformUtils() *PlatformUtils {
	return &PlatformUtils{}
}

// ValidatePath 验证存储根目录是否安全
func (p *PlatformUtils) ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path must not be empty")
	}

	if len(path) > p.GetMaxPathLength()*10 {
		return fmt.Errorf("path too long: %d characters", len(path))
	}

	// 检查是否包含路径遍历
	if strings.Contains(path, "..") {
		return fmt.Errorf("path traversal detected: %s", path)
	}

	return nil
}

// GetMaxPathLength 获取当前平台的最大路径长度
func (p *PlatformUtils) GetMaxPathLength() int {
	switch runtime.GOOS {
	case "windows":
		// Windows 10 支持长路径，但为了兼容性使用保守值
		return 200
	case "darwin", "linux":
		return 400
	default:
		return 200
	}
}

// NormalizePath 转换为绝对路径并清理
func (p *PlatformUtils) NormalizePath(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(absPath)
}

// IsMessageFile 判断目录项是否应视为邮件文件：隐藏文件和空名都不算
func (p *PlatformUtils) IsMessageFile(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`+"\x00")
}
