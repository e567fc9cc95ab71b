package domain

import (
	"errors"
	"fmt"
	"regexp"
)

// 验证相关的错误定义
var (
	ErrNameEmpty   = errors.New("name must not be empty")
	ErrNameTooLong = fmt.Errorf("name too long (max %d chars)", MaxNameLength)
	ErrInvalidName = errors.New("invalid name format")
)

// 用户名长度限制
const (
	MinNameLength = 1
	MaxNameLength = 8
)

// 用户名只允许小写字母和数字
var nameRegex = regexp.MustCompile(`^[a-z0-9]+$`)

// ValidateName 校验发件人、收件人和信箱用户名。
//
// 规则：长度 1-8，仅允许小写 ASCII 字母和数字。
func ValidateName(name string) error {
	if len(name) < MinNameLength {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if !nameRegex.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

// IsValidName 是 ValidateName 的布尔版本
func IsValidName(name string) bool {
	return ValidateName(name) == nil
}
