package cdp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"cdprpa/pkg/domain"
)

func TestMergeHandlesKeepsFirstSeenOrder(t *testing.T) {
	order := mergeHandles(nil, []domain.WindowHandle{"a"})
	assert.Equal(t, []domain.WindowHandle{"a"}, order)

	// 列表顺序变化不影响已有窗口的位置
	order = mergeHandles(order, []domain.WindowHandle{"b", "a"})
	assert.Equal(t, []domain.WindowHandle{"a", "b"}, order)

	order = mergeHandles(order, []domain.WindowHandle{"c", "b", "a"})
	assert.Equal(t, []domain.WindowHandle{"a", "b", "c"}, order)

	order = mergeHandles(order, []domain.WindowHandle{"c", "a"})
	assert.Equal(t, []domain.WindowHandle{"a", "c"}, order)

	assert.Empty(t, mergeHandles(order, nil))
}

func TestXPathSnapshotExprQuotesLocator(t *testing.T) {
	expr := xpathSnapshotExpr(`//a[text()="Next"]`)
	assert.True(t, strings.HasSuffix(expr, `)("//a[text()=\"Next\"]")`))
	assert.Contains(t, expr, "ORDERED_NODE_SNAPSHOT_TYPE")
}

func TestScriptBodyExpr(t *testing.T) {
	assert.Equal(t, "(function() {\nreturn 1;\n})()", scriptBodyExpr("return 1;"))
}

func TestNewDefaults(t *testing.T) {
	m := New(Config{DevToolsURL: "http://127.0.0.1:9222"})
	assert.NotNil(t, m.fs)
	assert.NotNil(t, m.log)

	_, err := m.current()
	assert.ErrorIs(t, err, domain.ErrNotAttached)
	m.Detach()
}
