// Package sanitize 对入库前的 HTML 邮件体做消毒。
package sanitize

import (
	"regexp"
	"strings"
)

// Sanitizer HTML 消毒器，入库前剥离可执行内容。
type Sanitizer struct {
	patterns []*regexp.Regexp
}

// NewSanitizer 创建 HTML 消毒器。
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: []*regexp.Regexp{
			// script/iframe/object/embed 整块移除
			regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
			regexp.MustCompile(`(?is)<script[^>]*/?>`),
			regexp.MustCompile(`(?is)<iframe[^>]*>.*?</iframe>`),
			regexp.MustCompile(`(?is)<iframe[^>]*/?>`),
			regexp.MustCompile(`(?i)<object[^>]*>`),
			regexp.MustCompile(`(?i)<embed[^>]*>`),
			// 内联事件处理属性
			regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*"[^"]*"`),
			regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*'[^']*'`),
			regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*[^\s>]+`),
		},
	}
}

var javascriptURL = regexp.MustCompile(`(?i)(href|src|action)\s*=\s*(["']?)\s*javascript:[^"'>\s]*`)

// HTML 返回消毒后的 HTML。
//
// 剥离 script 标签、内联事件属性与 javascript: 协议链接，
// 其余标签原样保留（展示侧还有 iframe sandbox 兜底）。
func (s *Sanitizer) HTML(input string) string {
	if input == "" {
		return ""
	}
	out := input
	for _, pattern := range s.patterns {
		out = pattern.ReplaceAllString(out, "")
	}
	out = javascriptURL.ReplaceAllString(out, `$1=$2`)
	return strings.TrimSpace(out)
}
