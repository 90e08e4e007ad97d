package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidAddress 邮箱地址格式无效
	ErrInvalidAddress = errors.New("invalid email address")
	// ErrInvalidPriority 优先级取值无效
	ErrInvalidPriority = errors.New("invalid mail priority")
)

// emailPattern 宽松的邮箱地址校验（完整校验交给 SMTP 服务器）
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// NormalizeAddress 规范化邮箱地址（去空白、转小写）
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// ValidateAddress 校验邮箱地址格式
func ValidateAddress(address string) error {
	address = NormalizeAddress(address)
	if address == "" {
		return fmt.Errorf("%w: address must not be empty", ErrInvalidAddress)
	}
	if len(address) > 255 {
		return fmt.Errorf("%w: address too long (max 255 characters)", ErrInvalidAddress)
	}
	if !emailPattern.MatchString(address) {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	return nil
}

// ValidatePriority 校验优先级取值，空值回落到 normal。
func ValidatePriority(p MailPriority) (MailPriority, error) {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return p, nil
	case "":
		return PriorityNormal, nil
	default:
		return "", fmt.Errorf("%w: %q (expected high, normal or low)", ErrInvalidPriority, p)
	}
}

// SplitAddressList 将逗号/分号分隔的地址串解析为规范化地址数组。
func SplitAddressList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		addr := NormalizeAddress(f)
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
