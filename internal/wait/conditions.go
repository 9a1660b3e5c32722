package wait

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cdprpa/pkg/domain"
)

// predicate 单次求值：返回结果、是否满足、本次查询错误
type predicate func(ctx context.Context) (*Outcome, bool, error)

// condition 为请求构造谓词，new-window-opened 会在此处记录当前窗口快照
func (d *Dispatcher) condition(ctx context.Context, req Request) (predicate, error) {
	b := d.browser
	switch req.Kind {
	case KindAlertPresent:
		return func(ctx context.Context) (*Outcome, bool, error) {
			ok, err := b.AlertPresent(ctx)
			return satisfied(), ok, err
		}, nil

	case KindElementVisible:
		return func(ctx context.Context) (*Outcome, bool, error) {
			el, err := domain.FindElement(ctx, b, req.Locator)
			if err != nil {
				return nil, false, err
			}
			ok, err := el.Displayed(ctx)
			if err != nil || !ok {
				return nil, false, err
			}
			return &Outcome{Element: el, Satisfied: true}, true, nil
		}, nil

	case KindElementClickable:
		return func(ctx context.Context) (*Outcome, bool, error) {
			el, err := domain.FindElement(ctx, b, req.Locator)
			if err != nil {
				return nil, false, err
			}
			ok, err := clickable(ctx, el)
			if err != nil || !ok {
				return nil, false, err
			}
			return &Outcome{Element: el, Satisfied: true}, true, nil
		}, nil

	case KindElementInvisible:
		return func(ctx context.Context) (*Outcome, bool, error) {
			els, err := b.FindElements(ctx, req.Locator)
			if err != nil {
				return nil, false, err
			}
			if len(els) == 0 {
				return satisfied(), true, nil
			}
			shown, err := els[0].Displayed(ctx)
			if errors.Is(err, domain.ErrStaleElement) {
				return satisfied(), true, nil
			}
			if err != nil {
				return nil, false, err
			}
			return satisfied(), !shown, nil
		}, nil

	case KindElementSelected:
		return func(ctx context.Context) (*Outcome, bool, error) {
			el, err := domain.FindElement(ctx, b, req.Locator)
			if err != nil {
				return nil, false, err
			}
			ok, err := el.Selected(ctx)
			return satisfied(), ok, err
		}, nil

	case KindAttributeContainsText:
		return func(ctx context.Context) (*Outcome, bool, error) {
			el, err := domain.FindElement(ctx, b, req.Locator)
			if err != nil {
				return nil, false, err
			}
			v, present, err := el.Attribute(ctx, req.Attribute)
			if err != nil || !present {
				return nil, false, err
			}
			return satisfied(), strings.Contains(v, req.Value), nil
		}, nil

	case KindURLContains:
		return func(ctx context.Context) (*Outcome, bool, error) {
			u, err := b.CurrentURL(ctx)
			if err != nil {
				return nil, false, err
			}
			return satisfied(), strings.Contains(u, req.Value), nil
		}, nil

	case KindAllElementsVisible:
		return func(ctx context.Context) (*Outcome, bool, error) {
			els, err := b.FindElements(ctx, req.Locator)
			if err != nil || len(els) == 0 {
				return nil, false, err
			}
			for _, el := range els {
				ok, err := el.Displayed(ctx)
				if err != nil || !ok {
					return nil, false, err
				}
			}
			return &Outcome{Elements: els, Satisfied: true}, true, nil
		}, nil

	case KindNewWindowOpened:
		before, err := b.WindowHandles(ctx)
		if err != nil {
			return nil, fmt.Errorf("snapshot window handles: %w", err)
		}
		return func(ctx context.Context) (*Outcome, bool, error) {
			now, err := b.WindowHandles(ctx)
			if err != nil {
				return nil, false, err
			}
			return satisfied(), len(now) > len(before), nil
		}, nil

	case KindFrameAvailable:
		return func(ctx context.Context) (*Outcome, bool, error) {
			el, err := domain.FindElement(ctx, b, req.Locator)
			if err != nil {
				return nil, false, err
			}
			// 切换成功即满足条件，执行上下文随之进入该 frame
			if err := b.SwitchToFrame(ctx, el); err != nil {
				return nil, false, err
			}
			return satisfied(), true, nil
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
}

// selectionState 已定位元素的选中状态等于 want
func selectionState(el domain.Element, want bool) predicate {
	return func(ctx context.Context) (*Outcome, bool, error) {
		got, err := el.Selected(ctx)
		if err != nil {
			return nil, false, err
		}
		return satisfied(), got == want, nil
	}
}

func clickable(ctx context.Context, el domain.Element) (bool, error) {
	shown, err := el.Displayed(ctx)
	if err != nil || !shown {
		return false, err
	}
	return el.Enabled(ctx)
}

func satisfied() *Outcome { return &Outcome{Satisfied: true} }
