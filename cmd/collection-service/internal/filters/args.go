package filters

import (
	"encoding/json"
	"strconv"

	"catalog/cmd/collection-service/internal/domain"
)

// Args 过滤器参数 (已合并默认值)
type Args map[string]string

func newArgs(def *Definition, given []domain.FilterArg) Args {
	args := make(Args, len(def.Args))
	for _, ad := range def.Args {
		if ad.DefaultValue != "" {
			args[ad.Name] = ad.DefaultValue
		}
	}
	for _, a := range given {
		if a.Value != "" {
			args[a.Name] = a.Value
		}
	}
	return args
}

// String 字符串参数
func (a Args) String(name string) string {
	return a[name]
}

// Bool 布尔参数，缺省或无法解析时为 false
func (a Args) Bool(name string) bool {
	b, _ := strconv.ParseBool(a[name])
	return b
}

// Int 整数参数
func (a Args) Int(name string) (int64, bool) {
	v, ok := a[name]
	if !ok || v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IDs JSON 列表形式的 ID 参数
func (a Args) IDs(name string) ([]string, error) {
	v := a[name]
	if v == "" {
		return nil, nil
	}
	var raw []any
	if err := json.Unmarshal([]byte(v), &raw); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		if s := scalarString(item); s != "" {
			ids = append(ids, s)
		}
	}
	return ids, nil
}
