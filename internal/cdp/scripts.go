package cdp

import (
	convert "cdprpa/internal/adapter/cdp"
)

// 元素上执行的函数，this 为目标元素
const (
	fnDisplayed = `function() {
	if (!this.isConnected) return false;
	const style = window.getComputedStyle(this);
	if (style.display === 'none' || style.visibility === 'hidden' || style.visibility === 'collapse') return false;
	if (parseFloat(style.opacity) === 0) return false;
	const rect = this.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
}`
	fnEnabled   = `function() { return !this.disabled; }`
	fnSelected  = `function() { return !!(this.selected || this.checked); }`
	fnAttribute = `function(name) { return this.getAttribute(name); }`
	fnText      = `function() { return (this.innerText || this.textContent || '').trim(); }`
	fnClick     = `function() {
	this.scrollIntoView({block: 'center', inline: 'center'});
	this.click();
}`
	fnFocus = `function() {
	this.scrollIntoView({block: 'center', inline: 'center'});
	this.focus();
}`
	fnSelectByValue = `function(value) {
	for (const opt of this.options || []) {
		if (opt.value === value) {
			opt.selected = true;
			this.dispatchEvent(new Event('input', {bubbles: true}));
			this.dispatchEvent(new Event('change', {bubbles: true}));
			return true;
		}
	}
	return false;
}`
	fnSelectByText = `function(text) {
	const norm = s => (s || '').replace(/\s+/g, ' ').trim();
	for (const opt of this.options || []) {
		if (norm(opt.text) === norm(text)) {
			opt.selected = true;
			this.dispatchEvent(new Event('input', {bubbles: true}));
			this.dispatchEvent(new Event('change', {bubbles: true}));
			return true;
		}
	}
	return false;
}`
)

// xpathSnapshotExpr 生成按 XPath 查询所有匹配节点并返回数组的表达式
func xpathSnapshotExpr(xpath string) string {
	return `(function(xpath) {
	const snap = document.evaluate(xpath, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
	const out = [];
	for (let i = 0; i < snap.snapshotLength; i++) {
		const node = snap.snapshotItem(i);
		if (node.nodeType === Node.ELEMENT_NODE) out.push(node);
	}
	return out;
})(` + convert.JSLiteral(xpath) + `)`
}

// scriptBodyExpr 将脚本作为函数体执行，脚本需通过 return 返回值
func scriptBodyExpr(script string) string {
	return "(function() {\n" + script + "\n})()"
}

const exprLocation = `window.location.href`
