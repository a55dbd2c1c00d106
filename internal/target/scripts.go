package target

import (
	"encoding/json"
	"fmt"
)

// RefAttr is the attribute Locate stamps on the element it found
const RefAttr = "data-toolprobe-ref"

// LocateArgs is the argument object passed to LocateScript
type LocateArgs struct {
	Role        Role     `json:"role"`
	Hints       []string `json:"hints"`
	Within      string   `json:"within,omitempty"`
	Exclude     []string `json:"exclude,omitempty"`
	EnabledOnly bool     `json:"enabledOnly"`
	RefAttr     string   `json:"refAttr"`
	RefID       string   `json:"refId"`
}

// LocateResult is what LocateScript returns for a match
type LocateResult struct {
	Label string `json:"label"`
	Hint  string `json:"hint"`
}

// NewLocateArgs builds the script argument for q, tagging the match with refID
func NewLocateArgs(q Query, refID string) LocateArgs {
	return LocateArgs{
		Role:        q.Role,
		Hints:       q.Hints,
		Within:      q.Within,
		Exclude:     q.Exclude,
		EnabledOnly: q.EnabledOnly,
		RefAttr:     RefAttr,
		RefID:       refID,
	}
}

// LocateScript walks the hints in order and stamps the first acceptable match.
// It returns null when nothing matches.
const LocateScript = `(q) => {
  const roles = {
    file: 'input[type="file"]',
    select: 'select',
    button: 'button, [role="button"], input[type="button"], input[type="submit"]',
    action: 'button, [role="button"], input[type="button"], input[type="submit"], a',
    modal: '[role="dialog"], [class*="modal"], [class*="Modal"]',
  };
  const roots = q.within ? Array.from(document.querySelectorAll(q.within)) : [document];
  if (roots.length === 0) return null;
  const norm = (s) => (s || '').toString().replace(/\s+/g, ' ').trim().toLowerCase();
  const textOf = (el) => norm(el.innerText || el.textContent || el.value || '');
  const attrsOf = (el) => norm([
    el.id,
    typeof el.className === 'string' ? el.className : '',
    el.getAttribute('name'),
    el.getAttribute('aria-label'),
    el.getAttribute('title'),
    el.getAttribute('placeholder'),
    el.getAttribute('accept'),
  ].join(' '));
  const visible = (el) => el.type === 'file' || !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
  const disabled = (el) => !!el.disabled || el.getAttribute('aria-disabled') === 'true';
  const excluded = (el) => (q.exclude || []).some((x) => textOf(el).includes(norm(x)));
  const all = (sel) => roots.flatMap((r) => Array.from(r.querySelectorAll(sel)));
  const roleSel = roles[q.role] || '*';
  const pool = all(roleSel);
  const ok = (el) => !!el && !excluded(el) && (!q.enabledOnly || !disabled(el)) && visible(el);
  const byLabel = (text) => {
    for (const label of all('label')) {
      if (!textOf(label).includes(text)) continue;
      let el = label.htmlFor ? document.getElementById(label.htmlFor) : null;
      if (!el) el = label.querySelector(roleSel);
      if (!el && label.parentElement) el = label.parentElement.querySelector(roleSel);
      if (ok(el)) return el;
    }
    return null;
  };
  for (const hint of q.hints || []) {
    let found = null;
    if (hint.startsWith('css:')) {
      found = all(hint.slice(4)).find(ok) || null;
    } else if (hint.startsWith('label:')) {
      found = byLabel(norm(hint.slice(6)));
    } else {
      const h = norm(hint);
      found = pool.find((el) => ok(el) && textOf(el).includes(h)) ||
        pool.find((el) => ok(el) && attrsOf(el).includes(h)) || null;
    }
    if (found) {
      found.setAttribute(q.refAttr, q.refId);
      return { label: textOf(found).slice(0, 80), hint: hint };
    }
  }
  return null;
}`

// SelectScript sets a select's value through the native setter so framework
// change handlers fire. It answers "ok", "missing" or "no-option".
const SelectScript = `(a) => {
  const el = document.querySelector(a.selector);
  if (!el) return 'missing';
  const want = a.value.toLowerCase();
  const opts = Array.from(el.options || []);
  const opt = opts.find((o) => o.value.toLowerCase() === want) ||
    opts.find((o) => o.text.toLowerCase().includes(want));
  if (!opt) return 'no-option';
  const setter = Object.getOwnPropertyDescriptor(HTMLSelectElement.prototype, 'value').set;
  setter.call(el, opt.value);
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return 'ok';
}`

// TextScript returns the visible text of the document body
const TextScript = `() => document.body ? document.body.innerText : ''`

// InstallSeamScript replaces window.open with a recorder
const InstallSeamScript = `() => {
  if (window.__toolprobeOpen) return 'already';
  window.__toolprobeOpened = [];
  window.__toolprobeOpen = window.open;
  window.open = function (url) {
    window.__toolprobeOpened.push(String(url || ''));
    return { closed: false, close() { this.closed = true; }, focus() {}, blur() {}, postMessage() {} };
  };
  return 'installed';
}`

// CollectSeamScript drains recorded window.open urls
const CollectSeamScript = `() => (window.__toolprobeOpened || []).splice(0)`

// RestoreSeamScript puts the original window.open back
const RestoreSeamScript = `() => {
  if (!window.__toolprobeOpen) return 'absent';
  window.open = window.__toolprobeOpen;
  delete window.__toolprobeOpen;
  delete window.__toolprobeOpened;
  return 'restored';
}`

// SignalScript dispatches one lifecycle signal
const SignalScript = `(kind) => {
  const vis = (state) => {
    Object.defineProperty(document, 'visibilityState', { configurable: true, get: () => state });
    Object.defineProperty(document, 'hidden', { configurable: true, get: () => state === 'hidden' });
    document.dispatchEvent(new Event('visibilitychange'));
  };
  switch (kind) {
    case 'blur': window.dispatchEvent(new Event('blur')); break;
    case 'visibility-hidden': vis('hidden'); break;
    case 'visibility-visible': vis('visible'); break;
    case 'focus': window.dispatchEvent(new Event('focus')); break;
    default: return 'unknown';
  }
  return kind;
}`

// StorageScript reads a localStorage key, answering '' when absent
const StorageScript = `(key) => {
  try { return window.localStorage.getItem(key) || ''; } catch (e) { return ''; }
}`

// ClickScript clicks an element by selector when the backend has no native click
const ClickScript = `(selector) => {
  const el = document.querySelector(selector);
  if (!el) return false;
  el.click();
  return true;
}`

// Invocation renders "(script)(arg)" for backends that only evaluate expressions
func Invocation(script string, arg interface{}) (string, error) {
	if arg == nil {
		return fmt.Sprintf("(%s)()", script), nil
	}
	raw, err := json.Marshal(arg)
	if err != nil {
		return "", fmt.Errorf("encoding script argument: %w", err)
	}
	return fmt.Sprintf("(%s)(%s)", script, raw), nil
}

// ScriptArg converts v into plain maps and slices so any backend serializer
// can pass it to a script
func ScriptArg(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding script argument: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding script argument: %w", err)
	}
	return out, nil
}
