package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Fingerprint 计算请求指纹：sha256(method, 不含查询串的 URL, 排序后的全部参数)。
//
// URL 中已有的查询参数与 params 合并后统一排序，参数顺序不影响结果。
func Fingerprint(method, rawURL string, params map[string]string) string {
	base := rawURL
	values := url.Values{}
	if u, err := url.Parse(rawURL); err == nil {
		values = u.Query()
		u.RawQuery = ""
		u.Fragment = ""
		base = u.String()
	}
	for k, v := range params {
		values.Add(k, v)
	}
	// Encode 按键排序，同名参数的多个值也排序
	for _, vs := range values {
		sort.Strings(vs)
	}

	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{'\n'})
	h.Write([]byte(base))
	h.Write([]byte{'\n'})
	h.Write([]byte(values.Encode()))
	return hex.EncodeToString(h.Sum(nil))
}
