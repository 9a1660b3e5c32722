package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdprpa/internal/poll/polltest"
	"cdprpa/internal/testutil/fakebrowser"
	"cdprpa/internal/wait"
	"cdprpa/pkg/domain"
)

const (
	btn    = domain.Locator("//button[@id='save']")
	field  = domain.Locator("//input[@name='q']")
	menu   = domain.Locator("//select[@id='uf']")
	check  = domain.Locator("//input[@type='checkbox']")
	rows   = domain.Locator("//tr")
	absent = domain.Locator("//div[@id='none']")
)

func newHandler(b *fakebrowser.Browser) (*Handler, *polltest.StepClock) {
	clk := polltest.New()
	d := wait.New(wait.Config{Browser: b, Clock: clk, Interval: time.Second, Timeout: 5 * time.Second})
	return New(Config{Waiter: d, Browser: b}), clk
}

func TestClickWaitsUntilClickable(t *testing.T) {
	b := fakebrowser.New()
	el := fakebrowser.Visible("save")
	el.Disabled = true
	b.Put(btn, el)
	h, clk := newHandler(b)
	b.Hook = func(*fakebrowser.Browser) {
		if clk.Elapsed() >= 2*time.Second {
			el.Set(func(e *fakebrowser.Element) { e.Disabled = false })
		}
	}

	require.NoError(t, h.Click(context.Background(), btn, 0))
	assert.Equal(t, 1, el.Clicks)
	assert.Equal(t, 2*time.Second, clk.Elapsed())
}

func TestClickTimeoutDoesNotAct(t *testing.T) {
	b := fakebrowser.New()
	el := fakebrowser.Hidden("save")
	b.Put(btn, el)
	h, clk := newHandler(b)

	err := h.Click(context.Background(), btn, 3*time.Second)
	assert.True(t, wait.IsTimeout(err))
	assert.Zero(t, el.Clicks)
	assert.Equal(t, 3*time.Second, clk.Elapsed())
}

func TestClickActionError(t *testing.T) {
	b := fakebrowser.New()
	el := fakebrowser.Visible("save")
	el.ActionErr = domain.ErrStaleElement
	b.Put(btn, el)
	h, _ := newHandler(b)

	err := h.Click(context.Background(), btn, 0)
	assert.ErrorIs(t, err, domain.ErrStaleElement)
}

func TestSend(t *testing.T) {
	b := fakebrowser.New()
	el := fakebrowser.Visible("q")
	b.Put(field, el)
	h, _ := newHandler(b)

	require.NoError(t, h.Send(context.Background(), field, "relatório 2024", 0))
	assert.Equal(t, []string{"relatório 2024"}, el.Keys)
}

func TestSelectOptions(t *testing.T) {
	b := fakebrowser.New()
	el := fakebrowser.Visible("uf")
	el.Options = []fakebrowser.Option{{Value: "SP", Text: "São Paulo"}, {Value: "RJ", Text: "Rio de Janeiro"}}
	b.Put(menu, el)
	h, _ := newHandler(b)
	ctx := context.Background()

	require.NoError(t, h.SelectByValue(ctx, menu, "RJ", 0))
	assert.Equal(t, "RJ", el.Attrs["value"])

	require.NoError(t, h.SelectByVisibleText(ctx, menu, "São Paulo", 0))
	assert.Equal(t, "SP", el.Attrs["value"])

	err := h.SelectByValue(ctx, menu, "MG", 0)
	assert.ErrorIs(t, err, domain.ErrNoSuchElement)
}

func TestIsSelected(t *testing.T) {
	b := fakebrowser.New()
	el := fakebrowser.Visible("agree")
	el.Checked = true
	b.Put(check, el)
	h, _ := newHandler(b)
	ctx := context.Background()

	ok, err := h.IsSelected(ctx, check, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.IsNotSelected(ctx, check, 2*time.Second)
	assert.False(t, ok)
	assert.True(t, wait.IsTimeout(err))
}

func TestIsSelectedRequiresVisibleElement(t *testing.T) {
	b := fakebrowser.New()
	h, _ := newHandler(b)

	ok, err := h.IsSelected(context.Background(), absent, time.Second)
	assert.False(t, ok)
	var ct *wait.ConditionTimeout
	require.ErrorAs(t, err, &ct)
	assert.Equal(t, wait.KindElementVisible, ct.Kind)
}

func TestIsDisplayedUsesLastMatch(t *testing.T) {
	b := fakebrowser.New()
	b.Put(rows, fakebrowser.Visible("r1"), fakebrowser.Visible("r2"))
	h, _ := newHandler(b)
	ctx := context.Background()

	ok, err := h.IsDisplayed(ctx, rows, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.IsDisplayed(ctx, absent, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsDisplayedPropagatesCancel(t *testing.T) {
	b := fakebrowser.New()
	h, _ := newHandler(b)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.IsDisplayed(ctx, rows, time.Second)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestScriptHelpersEncodeArguments(t *testing.T) {
	b := fakebrowser.New()
	h, _ := newHandler(b)
	ctx := context.Background()

	require.NoError(t, h.ClickJS(ctx, `a[href="/x"]`))
	assert.Contains(t, b.LastScript(), `document.querySelector("a[href=\"/x\"]")`)
	assert.Contains(t, b.LastScript(), "el.click();")

	require.NoError(t, h.SetValueJS(ctx, "#valor", `1'000"`))
	assert.Contains(t, b.LastScript(), `el.value = "1'000\"";`)

	require.NoError(t, h.SelectJS(ctx, "opt-2"))
	assert.Contains(t, b.LastScript(), `const value = "opt-2";`)

	require.NoError(t, h.ScrollStart(ctx))
	assert.Equal(t, "window.scrollTo(0, 0);", b.LastScript())
	require.NoError(t, h.ScrollEnd(ctx))
	assert.Equal(t, "window.scrollTo(0, document.body.scrollHeight);", b.LastScript())
}

func TestRunScriptResult(t *testing.T) {
	b := fakebrowser.New()
	b.ScriptResult = `{"title":"Painel","count":4}`
	h, _ := newHandler(b)

	res, err := h.RunScript(context.Background(), "return {title: document.title, count: 4};")
	require.NoError(t, err)
	assert.Equal(t, "Painel", res.Get("title").String())
	assert.Equal(t, int64(4), res.Get("count").Int())
}
