// Package fakebrowser 提供内存中的 domain.Automation 实现，供测试使用。
package fakebrowser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"cdprpa/pkg/domain"
)

var (
	_ domain.Automation = (*Browser)(nil)
	_ domain.Element    = (*Element)(nil)
)

// Browser 可编程的假浏览器，Hook 在每次查询前被调用，用于按时间推进页面状态
type Browser struct {
	mu sync.Mutex

	Elements map[domain.Locator][]*Element
	URL      string
	Alert    bool
	Handles  []domain.WindowHandle
	Window   int
	Frame    *Element

	// FindErr 非空时 FindElements 返回该错误
	FindErr error
	// HandlesErr 非空时 WindowHandles 返回该错误
	HandlesErr   error
	ScriptResult string
	Hook         func(b *Browser)

	Navigated   []string
	Scripts     []string
	Screenshots []string
	Closed      int
	Quitted     bool
	// Accepted 记录每次 HandleAlert 的 accept 参数
	Accepted []bool
}

// New 创建只有一个窗口的空白页面
func New() *Browser {
	return &Browser{
		Elements: make(map[domain.Locator][]*Element),
		URL:      "about:blank",
		Handles:  []domain.WindowHandle{"w0"},
	}
}

// Put 设置 locator 对应的元素
func (b *Browser) Put(loc domain.Locator, els ...*Element) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, el := range els {
		el.loc = loc
	}
	b.Elements[loc] = els
}

// Remove 删除 locator 对应的元素
func (b *Browser) Remove(loc domain.Locator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.Elements, loc)
}

func (b *Browser) hook() {
	if b.Hook != nil {
		b.Hook(b)
	}
}

func (b *Browser) Navigate(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Navigated = append(b.Navigated, url)
	b.URL = url
	return nil
}

func (b *Browser) FindElements(ctx context.Context, loc domain.Locator) ([]domain.Element, error) {
	b.hook()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FindErr != nil {
		return nil, b.FindErr
	}
	out := make([]domain.Element, 0, len(b.Elements[loc]))
	for _, el := range b.Elements[loc] {
		out = append(out, el)
	}
	return out, nil
}

func (b *Browser) ExecuteScript(ctx context.Context, script string) (gjson.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Scripts = append(b.Scripts, script)
	if b.ScriptResult == "" {
		return gjson.Result{}, nil
	}
	return gjson.Parse(b.ScriptResult), nil
}

func (b *Browser) CurrentURL(ctx context.Context) (string, error) {
	b.hook()
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.URL, nil
}

func (b *Browser) AlertPresent(ctx context.Context) (bool, error) {
	b.hook()
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Alert, nil
}

func (b *Browser) HandleAlert(ctx context.Context, accept bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.Alert {
		return domain.ErrNoSuchAlert
	}
	b.Alert = false
	b.Accepted = append(b.Accepted, accept)
	return nil
}

func (b *Browser) WindowHandles(ctx context.Context) ([]domain.WindowHandle, error) {
	b.hook()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.HandlesErr != nil {
		return nil, b.HandlesErr
	}
	return append([]domain.WindowHandle(nil), b.Handles...), nil
}

func (b *Browser) SwitchToFrame(ctx context.Context, frame domain.Element) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	el, ok := frame.(*Element)
	if !ok || !el.IsFrame {
		return domain.ErrNoSuchFrame
	}
	b.Frame = el
	return nil
}

func (b *Browser) SwitchToDefaultContent(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Frame = nil
	return nil
}

func (b *Browser) SwitchToWindow(ctx context.Context, index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.Handles) {
		return fmt.Errorf("window %d: %w", index, domain.ErrNoSuchWindow)
	}
	b.Window = index
	b.Frame = nil
	return nil
}

func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed++
	return nil
}

func (b *Browser) Quit(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Quitted = true
	return nil
}

func (b *Browser) SaveScreenshot(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Screenshots = append(b.Screenshots, path)
	return nil
}

// LastScript 最近一次执行的脚本
func (b *Browser) LastScript() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Scripts) == 0 {
		return ""
	}
	return b.Scripts[len(b.Scripts)-1]
}

// Element 假元素，字段可在 Hook 中直接修改
type Element struct {
	mu  sync.Mutex
	loc domain.Locator

	Name      string
	Visible   bool
	Disabled  bool
	Checked   bool
	IsFrame   bool
	Stale     bool // 状态查询返回 ErrStaleElement
	Attrs     map[string]string
	Content   string
	Options   []Option
	Clicks    int
	Keys      []string
	ActionErr error
}

// Option select 元素的选项
type Option struct {
	Value string
	Text  string
}

// Visible 创建可见元素
func Visible(name string) *Element {
	return &Element{Name: name, Visible: true, Attrs: map[string]string{}}
}

// Hidden 创建不可见元素
func Hidden(name string) *Element {
	return &Element{Name: name, Attrs: map[string]string{}}
}

// Set 在锁内修改元素
func (e *Element) Set(fn func(e *Element)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e)
}

func (e *Element) Locator() domain.Locator { return e.loc }

func (e *Element) Displayed(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Stale {
		return false, domain.ErrStaleElement
	}
	return e.Visible, nil
}

func (e *Element) Enabled(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Stale {
		return false, domain.ErrStaleElement
	}
	return !e.Disabled, nil
}

func (e *Element) Selected(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Stale {
		return false, domain.ErrStaleElement
	}
	return e.Checked, nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Stale {
		return "", false, domain.ErrStaleElement
	}
	v, ok := e.Attrs[name]
	return v, ok, nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Content, nil
}

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ActionErr != nil {
		return e.ActionErr
	}
	e.Clicks++
	return nil
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ActionErr != nil {
		return e.ActionErr
	}
	e.Keys = append(e.Keys, text)
	return nil
}

func (e *Element) SelectByValue(ctx context.Context, value string) error {
	return e.selectWhere(func(o Option) bool { return o.Value == value }, "value", value)
}

func (e *Element) SelectByVisibleText(ctx context.Context, text string) error {
	return e.selectWhere(func(o Option) bool { return strings.TrimSpace(o.Text) == text }, "text", text)
}

func (e *Element) selectWhere(match func(Option) bool, by, want string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range e.Options {
		if match(o) {
			e.Attrs["value"] = o.Value
			return nil
		}
	}
	return fmt.Errorf("option %s=%q: %w", by, want, domain.ErrNoSuchElement)
}
