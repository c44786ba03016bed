package search

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// 游标是不透明 token：base64url(JSON{f, o})。
// f 是查询指纹，把 offset 绑定到产生它的那组参数上；
// 任何影响排序的参数变化都会使旧游标失效，而不是拼出错乱的页。

type cursorPayload struct {
	F string `json:"f"`
	O int    `json:"o"`
}

// Fingerprint 对影响结果排序的全部参数做规范化序列化后取哈希：
// 查询文本、过滤条件、排序方式、per_doc、neighbors。页大小 k 不参与——
// 游标携带的是绝对 offset，翻页途中调整 k 不破坏顺序一致性。
func Fingerprint(req *Request) string {
	contains := normalizeContains(req.Contains)
	raw := strings.Join([]string{
		req.Query,
		string(req.Sort),
		fmt.Sprintf("per_doc=%d", req.PerDoc),
		fmt.Sprintf("neighbors=%d", req.Neighbors),
		fmt.Sprintf("year=%d-%d", req.YearMin, req.YearMax),
		"doc=" + req.DocID,
		"contains=" + strings.Join(contains, ","),
	}, "|")
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:16])
}

// EncodeCursor 生成下一页游标。
func EncodeCursor(fingerprint string, offset int) string {
	raw, _ := json.Marshal(cursorPayload{F: fingerprint, O: offset})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor 解析游标；格式损坏返回 *DecodeError。
func DecodeCursor(token string) (fingerprint string, offset int, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", 0, &DecodeError{Reason: "not base64url"}
	}
	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", 0, &DecodeError{Reason: "not valid JSON"}
	}
	if p.F == "" || p.O < 0 {
		return "", 0, &DecodeError{Reason: "missing fingerprint or negative offset"}
	}
	return p.F, p.O, nil
}

// normalizeContains 小写、去重、排序，保证指纹与关键词书写顺序无关。
func normalizeContains(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}
