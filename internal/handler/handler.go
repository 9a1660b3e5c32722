package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	convert "cdprpa/internal/adapter/cdp"
	"cdprpa/internal/logger"
	"cdprpa/internal/wait"
	"cdprpa/pkg/domain"
)

// Waiter 显式等待能力
type Waiter interface {
	Await(ctx context.Context, req wait.Request) (*wait.Outcome, error)
	SelectionState(ctx context.Context, el domain.Element, want bool, timeout time.Duration) (bool, error)
}

// Handler 交互处理器，负责协调等待条件与页面操作
type Handler struct {
	waiter  Waiter
	browser domain.Automation
	log     logger.Logger
}

// Config 配置选项
type Config struct {
	Waiter  Waiter
	Browser domain.Automation
	Logger  logger.Logger
}

// New 创建交互处理器
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Handler{
		waiter:  cfg.Waiter,
		browser: cfg.Browser,
		log:     cfg.Logger,
	}
}

// clickable 等待元素可点击并返回该元素
func (h *Handler) clickable(ctx context.Context, loc domain.Locator, timeout time.Duration) (domain.Element, error) {
	out, err := h.waiter.Await(ctx, wait.Request{Kind: wait.KindElementClickable, Locator: loc, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return out.Element, nil
}

// Click 等待可点击后点击
func (h *Handler) Click(ctx context.Context, loc domain.Locator, timeout time.Duration) error {
	el, err := h.clickable(ctx, loc, timeout)
	if err != nil {
		return err
	}
	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	h.log.Debug("点击元素", "locator", loc)
	return nil
}

// Send 等待可点击后输入文本
func (h *Handler) Send(ctx context.Context, loc domain.Locator, text string, timeout time.Duration) error {
	el, err := h.clickable(ctx, loc, timeout)
	if err != nil {
		return err
	}
	if err := el.SendKeys(ctx, text); err != nil {
		return fmt.Errorf("send keys %s: %w", loc, err)
	}
	h.log.Debug("输入文本", "locator", loc, "length", len(text))
	return nil
}

// SelectByValue 按 option 的 value 选择下拉项
func (h *Handler) SelectByValue(ctx context.Context, loc domain.Locator, value string, timeout time.Duration) error {
	el, err := h.clickable(ctx, loc, timeout)
	if err != nil {
		return err
	}
	if err := el.SelectByValue(ctx, value); err != nil {
		return fmt.Errorf("select %s by value: %w", loc, err)
	}
	h.log.Debug("选择下拉项", "locator", loc, "value", value)
	return nil
}

// SelectByVisibleText 按可见文本选择下拉项
func (h *Handler) SelectByVisibleText(ctx context.Context, loc domain.Locator, text string, timeout time.Duration) error {
	el, err := h.clickable(ctx, loc, timeout)
	if err != nil {
		return err
	}
	if err := el.SelectByVisibleText(ctx, text); err != nil {
		return fmt.Errorf("select %s by text: %w", loc, err)
	}
	h.log.Debug("选择下拉项", "locator", loc, "text", text)
	return nil
}

// IsSelected 等待元素可见后再等待其变为选中
func (h *Handler) IsSelected(ctx context.Context, loc domain.Locator, timeout time.Duration) (bool, error) {
	return h.selection(ctx, loc, true, timeout)
}

// IsNotSelected 等待元素可见后再等待其变为未选中
func (h *Handler) IsNotSelected(ctx context.Context, loc domain.Locator, timeout time.Duration) (bool, error) {
	return h.selection(ctx, loc, false, timeout)
}

func (h *Handler) selection(ctx context.Context, loc domain.Locator, want bool, timeout time.Duration) (bool, error) {
	out, err := h.waiter.Await(ctx, wait.Request{Kind: wait.KindElementVisible, Locator: loc, Timeout: timeout})
	if err != nil {
		return false, err
	}
	return h.waiter.SelectionState(ctx, out.Element, want, timeout)
}

// IsDisplayed 最后一个匹配元素是否可见，等待超时返回 false
func (h *Handler) IsDisplayed(ctx context.Context, loc domain.Locator, timeout time.Duration) (bool, error) {
	out, err := h.waiter.Await(ctx, wait.Request{Kind: wait.KindAllElementsVisible, Locator: loc, Timeout: timeout})
	if wait.IsTimeout(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(out.Elements) == 0 {
		return false, nil
	}
	return out.Elements[len(out.Elements)-1].Displayed(ctx)
}

// RunScript 在当前框架执行脚本
func (h *Handler) RunScript(ctx context.Context, script string) (gjson.Result, error) {
	res, err := h.browser.ExecuteScript(ctx, script)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("run script: %w", err)
	}
	return res, nil
}

func (h *Handler) exec(ctx context.Context, script string) error {
	_, err := h.RunScript(ctx, script)
	return err
}

// SelectJS 通过脚本选中 value 等于 optionValue 的 option
func (h *Handler) SelectJS(ctx context.Context, optionValue string) error {
	return h.exec(ctx, selectOptionScript(optionValue))
}

// SetValueJS 通过脚本设置 css 选择器对应元素的 value
func (h *Handler) SetValueJS(ctx context.Context, css, value string) error {
	return h.exec(ctx, setValueScript(css, value))
}

// ClickJS 通过脚本点击 css 选择器对应的元素
func (h *Handler) ClickJS(ctx context.Context, css string) error {
	return h.exec(ctx, clickScript(css))
}

func (h *Handler) ScrollStart(ctx context.Context) error {
	return h.exec(ctx, scrollStartScript)
}

func (h *Handler) ScrollEnd(ctx context.Context) error {
	return h.exec(ctx, scrollEndScript)
}

const (
	scrollStartScript = "window.scrollTo(0, 0);"
	scrollEndScript   = "window.scrollTo(0, document.body.scrollHeight);"
)

// 参数以 JSON 字面量嵌入脚本
func selectOptionScript(value string) string {
	return fmt.Sprintf(`const value = %s;
const opt = Array.from(document.querySelectorAll('[value]')).find(o => o.getAttribute('value') === value);
if (!opt) throw new Error('no option with value ' + value);
opt.selected = true;
const sel = opt.closest('select');
if (sel) sel.dispatchEvent(new Event('change', {bubbles: true}));`, convert.JSLiteral(value))
}

func setValueScript(css, value string) string {
	return fmt.Sprintf(`const el = document.querySelector(%s);
if (!el) throw new Error('no element matches ' + %s);
el.value = %s;
el.dispatchEvent(new Event('input', {bubbles: true}));
el.dispatchEvent(new Event('change', {bubbles: true}));`, convert.JSLiteral(css), convert.JSLiteral(css), convert.JSLiteral(value))
}

func clickScript(css string) string {
	return fmt.Sprintf(`const el = document.querySelector(%s);
if (!el) throw new Error('no element matches ' + %s);
el.click();`, convert.JSLiteral(css), convert.JSLiteral(css))
}
