package cdp

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/tidwall/gjson"

	"cdprpa/pkg/domain"
)

// Result 将 RemoteObject 的值转换为 gjson.Result（按值返回时有效）
func Result(obj *runtime.RemoteObject) gjson.Result {
	if obj == nil || len(obj.Value) == 0 {
		return gjson.Result{}
	}
	return gjson.ParseBytes(obj.Value)
}

// Bool 读取布尔值，缺失或非布尔时为 false
func Bool(obj *runtime.RemoteObject) bool {
	r := Result(obj)
	return r.Type == gjson.True
}

// String 读取字符串值，null/undefined 时 ok 为 false
func String(obj *runtime.RemoteObject) (string, bool) {
	r := Result(obj)
	if !r.Exists() || r.Type == gjson.Null {
		return "", false
	}
	return r.String(), true
}

// CallArgs 将 Go 值编码为 callFunctionOn 参数
func CallArgs(values ...any) ([]runtime.CallArgument, error) {
	out := make([]runtime.CallArgument, 0, len(values))
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode call argument: %w", err)
		}
		out = append(out, runtime.CallArgument{Value: raw})
	}
	return out, nil
}

// JSLiteral 将字符串编码为 JS 字符串字面量，用于拼接脚本
func JSLiteral(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

// IndexedObjectIDs 取出数组属性中的元素对象ID，按下标排序
func IndexedObjectIDs(props []runtime.PropertyDescriptor) []runtime.RemoteObjectID {
	type indexed struct {
		i  int
		id runtime.RemoteObjectID
	}
	var items []indexed
	for _, p := range props {
		i, err := strconv.Atoi(p.Name)
		if err != nil || p.Value == nil || p.Value.ObjectID == nil {
			continue
		}
		items = append(items, indexed{i: i, id: *p.Value.ObjectID})
	}
	sort.Slice(items, func(a, b int) bool { return items[a].i < items[b].i })
	out := make([]runtime.RemoteObjectID, len(items))
	for k, it := range items {
		out[k] = it.id
	}
	return out
}

// ExceptionError 将脚本异常转换为 error
func ExceptionError(ex *runtime.ExceptionDetails) error {
	if ex == nil {
		return nil
	}
	msg := ex.Text
	if ex.Exception != nil && ex.Exception.Description != nil {
		msg = *ex.Exception.Description
	}
	return fmt.Errorf("script exception: %s", msg)
}

// staleMarkers 目标对象或执行上下文已失效时 CDP 返回的错误片段
var staleMarkers = []string{
	"Could not find object with given id",
	"Cannot find context with specified id",
	"Node is detached from document",
	"Node with given id does not belong to the document",
}

// Stale 若错误表示元素引用已失效，包装为 domain.ErrStaleElement
func Stale(err error) error {
	if err == nil || errors.Is(err, domain.ErrStaleElement) {
		return err
	}
	msg := err.Error()
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", domain.ErrStaleElement, err)
		}
	}
	return err
}
