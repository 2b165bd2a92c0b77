package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Normalize 将 JSON 载荷规整为键序稳定、无多余空白的形式。
// 非 JSON 输入原样返回，此时哈希退化为对原始字符串取摘要。
func Normalize(raw string) string {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return string(b)
}

// Hash 计算规整化载荷的 SHA-256 十六进制摘要
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(Normalize(raw)))
	return hex.EncodeToString(sum[:])
}
