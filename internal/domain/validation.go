package domain

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmailTooLong     = errors.New("email address too long")
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
	ErrInvalidLocalPart = errors.New("invalid local part format")
	ErrInvalidDomain    = errors.New("invalid domain format")
	ErrPasswordTooShort = errors.New("password too short (min 8 chars)")
	ErrPasswordTooLong  = errors.New("password too long (max 128 chars)")
)

// RFC 5322 长度限制
const (
	MaxEmailLength     = 254
	MaxLocalPartLength = 64
	MaxDomainLength    = 253

	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var (
	// 本地部分：字母数字开头结尾，中间允许 . _ -
	localPartRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

	// 域名：支持多级子域名
	domainRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?(\.[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?)+$`)
)

// EmailValidator 邮箱地址验证器
type EmailValidator struct{}

// NewEmailValidator 创建邮箱验证器
func NewEmailValidator() *EmailValidator {
	return &EmailValidator{}
}

// ValidateEmail 完整验证邮箱地址
func (v *EmailValidator) ValidateEmail(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ErrInvalidEmail
	}

	if err := v.ValidateLocalPart(parts[0]); err != nil {
		return err
	}
	return v.ValidateDomain(parts[1])
}

// ValidateLocalPart 验证邮箱本地部分
func (v *EmailValidator) ValidateLocalPart(localPart string) error {
	if len(localPart) < 3 {
		return ErrInvalidLocalPart
	}
	if len(localPart) > MaxLocalPartLength {
		return ErrLocalPartTooLong
	}
	if !localPartRegex.MatchString(localPart) {
		return ErrInvalidLocalPart
	}
	// 不允许连续的特殊字符
	for _, seq := range []string{"..", ".-", "-.", "--", "__", "_.", "._"} {
		if strings.Contains(localPart, seq) {
			return ErrInvalidLocalPart
		}
	}
	return nil
}

// ValidateDomain 验证域名格式
func (v *EmailValidator) ValidateDomain(domain string) error {
	domain = strings.TrimSpace(strings.ToLower(domain))
	if domain == "" || len(domain) > MaxDomainLength {
		return ErrInvalidDomain
	}
	if !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}
	return nil
}

// ValidatePassword 验证密码长度
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}
