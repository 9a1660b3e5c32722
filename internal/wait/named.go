package wait

import (
	"context"
	"time"

	"cdprpa/pkg/domain"
)

// 以下为每种条件一个函数的调用形式，均委托给 Await

func (d *Dispatcher) AlertPresent(ctx context.Context, timeout time.Duration) error {
	_, err := d.Await(ctx, Request{Kind: KindAlertPresent, Timeout: timeout})
	return err
}

func (d *Dispatcher) Clickable(ctx context.Context, loc domain.Locator, timeout time.Duration) (domain.Element, error) {
	out, err := d.Await(ctx, Request{Kind: KindElementClickable, Locator: loc, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return out.Element, nil
}

// Frame 等待 frame 可用并切换进去
func (d *Dispatcher) Frame(ctx context.Context, loc domain.Locator, timeout time.Duration) error {
	_, err := d.Await(ctx, Request{Kind: KindFrameAvailable, Locator: loc, Timeout: timeout})
	return err
}

func (d *Dispatcher) Invisible(ctx context.Context, loc domain.Locator, timeout time.Duration) error {
	_, err := d.Await(ctx, Request{Kind: KindElementInvisible, Locator: loc, Timeout: timeout})
	return err
}

func (d *Dispatcher) Selected(ctx context.Context, loc domain.Locator, timeout time.Duration) (bool, error) {
	out, err := d.Await(ctx, Request{Kind: KindElementSelected, Locator: loc, Timeout: timeout})
	if err != nil {
		return false, err
	}
	return out.Satisfied, nil
}

func (d *Dispatcher) AttributeContains(ctx context.Context, loc domain.Locator, attribute, text string, timeout time.Duration) error {
	_, err := d.Await(ctx, Request{
		Kind:      KindAttributeContainsText,
		Locator:   loc,
		Attribute: attribute,
		Value:     text,
		Timeout:   timeout,
	})
	return err
}

func (d *Dispatcher) URLContains(ctx context.Context, fragment string, timeout time.Duration) error {
	_, err := d.Await(ctx, Request{Kind: KindURLContains, Value: fragment, Timeout: timeout})
	return err
}

func (d *Dispatcher) Visible(ctx context.Context, loc domain.Locator, timeout time.Duration) (domain.Element, error) {
	out, err := d.Await(ctx, Request{Kind: KindElementVisible, Locator: loc, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return out.Element, nil
}

func (d *Dispatcher) AllVisible(ctx context.Context, loc domain.Locator, timeout time.Duration) ([]domain.Element, error) {
	out, err := d.Await(ctx, Request{Kind: KindAllElementsVisible, Locator: loc, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return out.Elements, nil
}

func (d *Dispatcher) NewWindow(ctx context.Context, timeout time.Duration) error {
	_, err := d.Await(ctx, Request{Kind: KindNewWindowOpened, Timeout: timeout})
	return err
}
