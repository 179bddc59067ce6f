package log

import (
	"net/url"
	"regexp"
	"strings"
)

// 这些关键字出现在字段名里时整值脱敏
var secretKeys = []string{
	"password", "passwd", "pwd",
	"api_key", "apikey", "api-key",
	"token", "secret", "authorization",
	"credential", "private_key",
}

// dsnUserinfo 匹配 MySQL DSN 开头的 user:pass@（DSN 没有 scheme）
var dsnUserinfo = regexp.MustCompile(`^([^:/@]+):([^@]+)@`)

// SanitizeField 按字段名决定脱敏方式
//   - 带 scheme 的值（proxy_url、probe target 等）: 隐藏密码和 access_token 等查询参数
//   - dsn: 只隐藏密码，保留主机便于排查
//   - 其余含敏感关键字的字段: 首尾各留 4 位
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}
	k := strings.ToLower(key)

	urlKey := k == "url" || k == "target" || k == "endpoint" || strings.HasSuffix(k, "_url")
	switch {
	case strings.Contains(value, "://") && (urlKey || strings.Contains(k, "dsn")):
		return sanitizeURL(value)
	case strings.Contains(k, "dsn"):
		return dsnUserinfo.ReplaceAllString(value, "$1:****@")
	case urlKey:
		return dsnUserinfo.ReplaceAllString(value, "$1:****@")
	}

	if isSecretKey(k) {
		return maskMiddle(value)
	}
	return value
}

// sanitizeURL 隐藏密码和敏感查询参数，无法解析时只保留 scheme 和主机以后的部分
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if _, rest, ok := strings.Cut(raw, "@"); ok {
			scheme, _, _ := strings.Cut(raw, "://")
			return scheme + "://****@" + rest
		}
		return raw
	}

	var userPart string
	if u.User != nil {
		name := url.User(u.User.Username()).String()
		if _, ok := u.User.Password(); ok {
			userPart = name + ":****@"
		} else {
			userPart = name + "@"
		}
		u.User = nil
	}
	if u.RawQuery != "" {
		q := u.Query()
		for name := range q {
			if isSecretKey(name) {
				q.Set(name, "redacted")
			}
		}
		u.RawQuery = q.Encode()
	}

	out := u.String()
	if userPart != "" {
		out = strings.Replace(out, "://", "://"+userPart, 1)
	}
	return out
}

func isSecretKey(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range secretKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func maskMiddle(value string) string {
	n := len(value)
	switch {
	case n <= 2:
		return strings.Repeat("*", n)
	case n <= 8:
		return value[:1] + strings.Repeat("*", n-2) + value[n-1:]
	}
	return value[:4] + strings.Repeat("*", n-8) + value[n-4:]
}
