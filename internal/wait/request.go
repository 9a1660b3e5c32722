package wait

import (
	"fmt"
	"sort"
	"time"

	"cdprpa/pkg/domain"
)

// Kind 等待条件类型
type Kind string

const (
	KindAlertPresent          Kind = "alert-present"
	KindElementClickable      Kind = "element-clickable"
	KindFrameAvailable        Kind = "frame-available"
	KindElementInvisible      Kind = "element-invisible"
	KindElementSelected       Kind = "element-selected"
	KindAttributeContainsText Kind = "attribute-contains-text"
	KindURLContains           Kind = "url-contains"
	KindElementVisible        Kind = "element-visible"
	KindAllElementsVisible    Kind = "all-elements-visible"
	KindNewWindowOpened       Kind = "new-window-opened"

	// KindSelectionState 对已定位元素轮询选中状态，只能通过 SelectionState 发起
	KindSelectionState Kind = "element-selection-state"
)

type fields struct {
	locator   bool
	value     bool
	attribute bool
}

var requirements = map[Kind]fields{
	KindAlertPresent:          {},
	KindElementClickable:      {locator: true},
	KindFrameAvailable:        {locator: true},
	KindElementInvisible:      {locator: true},
	KindElementSelected:       {locator: true},
	KindAttributeContainsText: {locator: true, value: true, attribute: true},
	KindURLContains:           {value: true},
	KindElementVisible:        {locator: true},
	KindAllElementsVisible:    {locator: true},
	KindNewWindowOpened:       {},
}

// Kinds 返回全部可分发的条件类型（按名称排序）
func Kinds() []Kind {
	out := make([]Kind, 0, len(requirements))
	for k := range requirements {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseKind 解析条件名称
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := requirements[k]; !ok {
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, s)
	}
	return k, nil
}

// Request 一次等待请求，发起后不再修改
type Request struct {
	Kind      Kind
	Locator   domain.Locator
	Value     string
	Attribute string
	// Timeout 为 0 时使用分发器默认超时
	Timeout time.Duration
}

// Validate 按条件类型检查必填字段
func (r Request) Validate() error {
	need, ok := requirements[r.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, r.Kind)
	}
	if need.locator && r.Locator == "" {
		return fmt.Errorf("%w: %s requires a locator", ErrInvalidRequest, r.Kind)
	}
	if need.value && r.Value == "" {
		return fmt.Errorf("%w: %s requires a value", ErrInvalidRequest, r.Kind)
	}
	if need.attribute && r.Attribute == "" {
		return fmt.Errorf("%w: %s requires an attribute name", ErrInvalidRequest, r.Kind)
	}
	if r.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %s", ErrInvalidRequest, r.Timeout)
	}
	return nil
}

// Outcome 条件满足时的结果
//
// element-visible 与 element-clickable 填充 Element，all-elements-visible 填充
// Elements（文档顺序），其余类型只有 Satisfied。
type Outcome struct {
	Kind      Kind
	Element   domain.Element
	Elements  []domain.Element
	Satisfied bool
	Elapsed   time.Duration
	Polls     int
}
