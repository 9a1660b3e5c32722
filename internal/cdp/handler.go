package cdp

import (
	"context"
	"fmt"

	"github.com/mafredri/cdp/protocol/page"

	"cdprpa/pkg/domain"
)

// consumeDialogs 监听弹窗打开事件并记录状态
func (m *Manager) consumeDialogs(ts *targetSession, opening page.JavascriptDialogOpeningClient) {
	defer opening.Close()
	for {
		ev, err := opening.Recv()
		if err != nil {
			return
		}
		ts.dialogOpen.Store(true)
		m.log.Info("页面弹窗打开", "target", ts.id, "type", ev.Type, "message", ev.Message)
	}
}

// consumeDialogClosed 监听弹窗关闭事件
func (m *Manager) consumeDialogClosed(ts *targetSession, closed page.JavascriptDialogClosedClient) {
	defer closed.Close()
	for {
		ev, err := closed.Recv()
		if err != nil {
			return
		}
		ts.dialogOpen.Store(false)
		m.log.Debug("页面弹窗关闭", "target", ts.id, "result", ev.Result)
	}
}

// subscribeDialogs 订阅弹窗事件，需在 Page.Enable 之后调用
func (m *Manager) subscribeDialogs(ts *targetSession) error {
	opening, err := ts.client.Page.JavascriptDialogOpening(ts.ctx)
	if err != nil {
		return fmt.Errorf("subscribe dialog opening: %w", err)
	}
	closed, err := ts.client.Page.JavascriptDialogClosed(ts.ctx)
	if err != nil {
		opening.Close()
		return fmt.Errorf("subscribe dialog closed: %w", err)
	}
	go m.consumeDialogs(ts, opening)
	go m.consumeDialogClosed(ts, closed)
	return nil
}

func (m *Manager) AlertPresent(ctx context.Context) (bool, error) {
	ts, err := m.current()
	if err != nil {
		return false, err
	}
	return ts.dialogOpen.Load(), nil
}

// HandleAlert 接受或关闭当前窗口的弹窗
func (m *Manager) HandleAlert(ctx context.Context, accept bool) error {
	ts, err := m.current()
	if err != nil {
		return err
	}
	if !ts.dialogOpen.Load() {
		return domain.ErrNoSuchAlert
	}
	if err := ts.client.Page.HandleJavaScriptDialog(ctx, page.NewHandleJavaScriptDialogArgs(accept)); err != nil {
		return fmt.Errorf("handle dialog: %w", err)
	}
	ts.dialogOpen.Store(false)
	m.log.Info("处理页面弹窗", "target", ts.id, "accept", accept)
	return nil
}
