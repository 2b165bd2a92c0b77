package capture

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"aepaudit/pkg/model"
)

// Load 从磁盘读入捕获文档。
// 文件不可读或顶层 JSON 非法是硬错误；文档内部的数据质量问题留给校验器。
func Load(path string) (model.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	defer f.Close()
	doc, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("parse capture file %s: %w", path, err)
	}
	return doc, nil
}

// Decode 从流解码捕获文档
func Decode(r io.Reader) (model.Document, error) {
	var doc model.Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = make(model.Document)
	}
	return doc, nil
}

// Save 将捕获文档以缩进 JSON 落盘
func Save(path string, doc model.Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode capture document: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write capture file: %w", err)
	}
	return nil
}
