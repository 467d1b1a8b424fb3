package filters

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gorm.io/gorm"

	"catalog/cmd/collection-service/internal/domain"
)

// ArgType 参数类型
type ArgType string

const (
	ArgString  ArgType = "string"
	ArgInt     ArgType = "int"
	ArgFloat   ArgType = "float"
	ArgBoolean ArgType = "boolean"
	ArgID      ArgType = "ID"
)

// ArgDefinition 参数声明
type ArgDefinition struct {
	Name         string   `json:"name"`
	Type         ArgType  `json:"type"`
	List         bool     `json:"list"`
	Required     bool     `json:"required"`
	DefaultValue string   `json:"defaultValue,omitempty"`
	Options      []string `json:"options,omitempty"` // 字符串参数的可选值
	Label        string   `json:"label,omitempty"`
}

// ApplyFunc 对规格查询做变换。后一个过滤器看到的是前面过滤器变换后的查询
type ApplyFunc func(q *gorm.DB, args Args) (*gorm.DB, error)

// Definition 过滤器定义
type Definition struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Args        []ArgDefinition `json:"args"`
	Apply       ApplyFunc       `json:"-"`
}

func (d *Definition) arg(name string) (ArgDefinition, bool) {
	for _, a := range d.Args {
		if a.Name == name {
			return a, true
		}
	}
	return ArgDefinition{}, false
}

// Registry 过滤器注册表
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]*Definition
	order []string
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// NewDefaultRegistry 创建包含内置过滤器的注册表
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, def := range Builtins() {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

// Register 注册过滤器
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Code == "" {
		return fmt.Errorf("filter definition must have a code")
	}
	if def.Apply == nil {
		return fmt.Errorf("filter %q has no apply function", def.Code)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Code]; exists {
		return fmt.Errorf("filter %q already registered", def.Code)
	}
	r.defs[def.Code] = def
	r.order = append(r.order, def.Code)
	return nil
}

// Get 获取过滤器定义
func (r *Registry) Get(code string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[code]
	return def, ok
}

// Definitions 按注册顺序返回全部定义
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(r.order))
	for _, code := range r.order {
		defs = append(defs, r.defs[code])
	}
	return defs
}

// ParseInputs 校验并转换一组过滤器输入
func (r *Registry) ParseInputs(inputs []domain.FilterInput) ([]domain.Filter, error) {
	out := make([]domain.Filter, 0, len(inputs))
	for _, in := range inputs {
		f, err := r.ParseInput(in)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// ParseInput 校验过滤器输入：code 必须已注册，参数需符合声明
func (r *Registry) ParseInput(in domain.FilterInput) (domain.Filter, error) {
	def, ok := r.Get(in.Code)
	if !ok {
		return domain.Filter{}, fmt.Errorf("%w: %s", domain.ErrUnknownFilter, in.Code)
	}

	given := make(map[string]string, len(in.Arguments))
	for _, a := range in.Arguments {
		if _, declared := def.arg(a.Name); !declared {
			return domain.Filter{}, fmt.Errorf("%w: %s has no argument %q", domain.ErrInvalidFilterArg, def.Code, a.Name)
		}
		given[a.Name] = a.Value
	}

	filter := domain.Filter{Code: def.Code, Args: make([]domain.FilterArg, 0, len(def.Args))}
	for _, ad := range def.Args {
		value, present := given[ad.Name]
		if !present || value == "" {
			if ad.Required && ad.DefaultValue == "" {
				return domain.Filter{}, fmt.Errorf("%w: %s.%s is required", domain.ErrInvalidFilterArg, def.Code, ad.Name)
			}
			if !present {
				continue
			}
		}
		normalized, err := normalizeArg(ad, value)
		if err != nil {
			return domain.Filter{}, fmt.Errorf("%w: %s.%s: %v", domain.ErrInvalidFilterArg, def.Code, ad.Name, err)
		}
		filter.Args = append(filter.Args, domain.FilterArg{Name: ad.Name, Value: normalized})
	}
	return filter, nil
}

// Apply 应用单个过滤器
func (r *Registry) Apply(q *gorm.DB, f domain.Filter) (*gorm.DB, error) {
	def, ok := r.Get(f.Code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownFilter, f.Code)
	}
	return def.Apply(q, newArgs(def, f.Args))
}

// ApplyChain 按顺序应用过滤器链。空链不匹配任何规格。
// 第二个起的过滤器作用在前序结果的子查询上，OR 只与已成形的结果组合
func (r *Registry) ApplyChain(q *gorm.DB, chain []domain.Filter) (*gorm.DB, error) {
	if len(chain) == 0 {
		return q.Where("1 = 0"), nil
	}
	var err error
	for i, f := range chain {
		if i > 0 {
			q = shaped(q)
		}
		if q, err = r.Apply(q, f); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// shaped 把已成形的查询包成子查询，返回可继续组合的新查询
func shaped(prev *gorm.DB) *gorm.DB {
	sub := prev.Select(VariantTable + ".id")
	return prev.Session(&gorm.Session{NewDB: true}).
		Table(VariantTable).
		Select(VariantTable+".id").
		Where(VariantTable+".id IN (?)", sub)
}

func normalizeArg(ad ArgDefinition, value string) (string, error) {
	if value == "" {
		return value, nil
	}
	if !ad.List {
		return normalizeScalar(ad, value)
	}

	var items []any
	if err := json.Unmarshal([]byte(value), &items); err != nil {
		return "", fmt.Errorf("expected a JSON list: %v", err)
	}
	values := make([]string, 0, len(items))
	for _, item := range items {
		v, err := normalizeScalar(ad, scalarString(item))
		if err != nil {
			return "", err
		}
		values = append(values, v)
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func normalizeScalar(ad ArgDefinition, value string) (string, error) {
	switch ad.Type {
	case ArgInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return "", fmt.Errorf("%q is not an integer", value)
		}
		return strconv.FormatInt(n, 10), nil
	case ArgFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "", fmt.Errorf("%q is not a number", value)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case ArgBoolean:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return "", fmt.Errorf("%q is not a boolean", value)
		}
		return strconv.FormatBool(b), nil
	case ArgID:
		if strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("empty id")
		}
		return value, nil
	default:
		if len(ad.Options) > 0 {
			for _, o := range ad.Options {
				if o == value {
					return value, nil
				}
			}
			return "", fmt.Errorf("%q is not one of %v", value, ad.Options)
		}
		return value, nil
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
