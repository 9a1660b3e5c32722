package domain

import (
	"context"
	"errors"
	"time"

	"github.com/tidwall/gjson"
)

type SessionID string
type WindowHandle string

// Locator XPath 表达式，用于定位受控文档中的一个或多个元素
type Locator string

var (
	ErrNoSuchElement = errors.New("no such element")
	ErrNoSuchFrame   = errors.New("no such frame")
	ErrNoSuchWindow  = errors.New("no such window")
	ErrNotAttached   = errors.New("not attached")
	ErrStaleElement  = errors.New("stale element reference")
	ErrNoSuchAlert   = errors.New("no such alert")

	// ErrUnexpectedAlert 页面弹窗未处理时浏览器不再响应页面命令
	ErrUnexpectedAlert = errors.New("unexpected alert open")
)

type SessionConfig struct {
	DevToolsURL string `json:"devToolsURL"`
	Launch      bool   `json:"launch"`
	DownloadDir string `json:"downloadDir"`
}

// SessionInfo 活动会话概要
type SessionInfo struct {
	ID          SessionID `json:"id"`
	DevToolsURL string    `json:"devToolsURL"`
	Launched    bool      `json:"launched"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Element 受控页面中的一个元素引用
type Element interface {
	Locator() Locator
	Displayed(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	Selected(ctx context.Context) (bool, error)
	// Attribute 返回属性值，属性不存在时 ok 为 false
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)
	Text(ctx context.Context) (string, error)
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	SelectByValue(ctx context.Context, value string) error
	SelectByVisibleText(ctx context.Context, text string) error
}

// Automation 可控制的浏览器实例（自动化会话）
type Automation interface {
	Navigate(ctx context.Context, url string) error
	// FindElements 按文档顺序返回全部匹配元素，无匹配时返回空切片
	FindElements(ctx context.Context, loc Locator) ([]Element, error)
	ExecuteScript(ctx context.Context, script string) (gjson.Result, error)
	CurrentURL(ctx context.Context) (string, error)
	AlertPresent(ctx context.Context) (bool, error)
	// HandleAlert 接受或关闭当前弹窗
	HandleAlert(ctx context.Context, accept bool) error
	WindowHandles(ctx context.Context) ([]WindowHandle, error)
	SwitchToFrame(ctx context.Context, frame Element) error
	SwitchToDefaultContent(ctx context.Context) error
	SwitchToWindow(ctx context.Context, index int) error
	Close(ctx context.Context) error
	Quit(ctx context.Context) error
	SaveScreenshot(ctx context.Context, path string) error
}

// FindElement 返回第一个匹配元素
func FindElement(ctx context.Context, a Automation, loc Locator) (Element, error) {
	els, err := a.FindElements(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, ErrNoSuchElement
	}
	return els[0], nil
}
