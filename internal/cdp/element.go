package cdp

import (
	"context"
	"fmt"

	"github.com/mafredri/cdp/protocol/input"
	"github.com/mafredri/cdp/protocol/runtime"

	convert "cdprpa/internal/adapter/cdp"
	"cdprpa/pkg/domain"
)

// element 基于远程对象引用的页面元素
type element struct {
	ts       *targetSession
	objectID runtime.RemoteObjectID
	loc      domain.Locator
}

func (e *element) Locator() domain.Locator { return e.loc }

// call 在元素上执行函数并按值返回结果
func (e *element) call(ctx context.Context, fn string, args ...any) (*runtime.RemoteObject, error) {
	if err := e.ts.ready(); err != nil {
		return nil, err
	}
	callArgs, err := convert.CallArgs(args...)
	if err != nil {
		return nil, err
	}
	a := runtime.NewCallFunctionOnArgs(fn).
		SetObjectID(e.objectID).
		SetArguments(callArgs).
		SetReturnByValue(true).
		SetAwaitPromise(true)
	reply, err := e.ts.client.Runtime.CallFunctionOn(ctx, a)
	if err != nil {
		return nil, convert.Stale(err)
	}
	if reply.ExceptionDetails != nil {
		return nil, convert.ExceptionError(reply.ExceptionDetails)
	}
	return &reply.Result, nil
}

func (e *element) boolean(ctx context.Context, fn string) (bool, error) {
	obj, err := e.call(ctx, fn)
	if err != nil {
		return false, err
	}
	return convert.Bool(obj), nil
}

func (e *element) Displayed(ctx context.Context) (bool, error) { return e.boolean(ctx, fnDisplayed) }
func (e *element) Enabled(ctx context.Context) (bool, error)   { return e.boolean(ctx, fnEnabled) }
func (e *element) Selected(ctx context.Context) (bool, error)  { return e.boolean(ctx, fnSelected) }

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	obj, err := e.call(ctx, fnAttribute, name)
	if err != nil {
		return "", false, err
	}
	v, ok := convert.String(obj)
	return v, ok, nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	obj, err := e.call(ctx, fnText)
	if err != nil {
		return "", err
	}
	v, _ := convert.String(obj)
	return v, nil
}

func (e *element) Click(ctx context.Context) error {
	_, err := e.call(ctx, fnClick)
	return err
}

// SendKeys 聚焦元素后插入文本
func (e *element) SendKeys(ctx context.Context, text string) error {
	if _, err := e.call(ctx, fnFocus); err != nil {
		return err
	}
	return e.ts.client.Input.InsertText(ctx, input.NewInsertTextArgs(text))
}

func (e *element) SelectByValue(ctx context.Context, value string) error {
	return e.selectOption(ctx, fnSelectByValue, value)
}

func (e *element) SelectByVisibleText(ctx context.Context, text string) error {
	return e.selectOption(ctx, fnSelectByText, text)
}

func (e *element) selectOption(ctx context.Context, fn, want string) error {
	obj, err := e.call(ctx, fn, want)
	if err != nil {
		return err
	}
	if !convert.Bool(obj) {
		return fmt.Errorf("%w: option %q in %s", domain.ErrNoSuchElement, want, e.loc)
	}
	return nil
}
