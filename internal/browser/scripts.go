package browser

import (
	"encoding/json"
	"fmt"
)

const mutationBinding = "__detailwatchMutation"

const documentHTMLScript = `document.documentElement ? document.documentElement.innerHTML : ""`

// observerScript reports DOM changes through the runtime binding, at most one
// report per macrotask. Installing it twice is a no-op.
const observerScript = `(function () {
  if (window.__detailwatchObserver) return;
  var pending = false;
  var report = function () {
    if (pending) return;
    pending = true;
    setTimeout(function () {
      pending = false;
      try { window.%[1]s(""); } catch (e) {}
    }, 0);
  };
  var start = function () {
    var root = document.documentElement;
    if (!root) return false;
    new MutationObserver(report).observe(root, { childList: true, subtree: true });
    window.__detailwatchObserver = true;
    report();
    return true;
  };
  if (!start()) {
    document.addEventListener("DOMContentLoaded", start, { once: true });
  }
})();`

const globalStateScript = `(function () {
  var value = window[%s];
  if (value === undefined || value === null) return { text: "" };
  try {
    var text = JSON.stringify(value);
    return { text: text === undefined ? "" : text };
  } catch (e) {
    return { text: "", error: String(e && e.message || e) };
  }
})()`

const publishScript = `(function () {
  window[%s] = %s;
  if (document.documentElement) document.documentElement.setAttribute(%s, "true");
})()`

const overlayScript = `(function () {
  var root = document.documentElement;
  if (!root) return;
  var el = document.getElementById(%[1]s);
  if (!el) {
    el = document.createElement("div");
    el.id = %[1]s;
    var s = el.style;
    s.position = "fixed";
    s.top = "12px";
    s.right = "12px";
    s.zIndex = "999999";
    s.background = "rgba(0, 0, 0, 0.75)";
    s.color = "#fff";
    s.padding = "10px 12px";
    s.borderRadius = "8px";
    s.font = "12px/1.4 ui-monospace, SFMono-Regular, Menlo, Monaco, Consolas, monospace";
    s.boxShadow = "0 2px 10px rgba(0, 0, 0, 0.35)";
    s.pointerEvents = "auto";
    s.userSelect = "text";
    root.appendChild(el);
  }
  el.textContent = %[2]s;
})()`

const eventScript = `window.dispatchEvent(new CustomEvent(%s, { detail: %s }))`

type stateResult struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// jsString quotes s as a JavaScript string literal. JSON escaping covers
// U+2028 and U+2029, which are not legal inside older JS string literals.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// ObserverScript installs the DOM mutation observer
func ObserverScript() string {
	return fmt.Sprintf(observerScript, mutationBinding)
}

// GlobalStateScript serializes window[name] into {text, error}
func GlobalStateScript(name string) string {
	return fmt.Sprintf(globalStateScript, jsString(name))
}

// PublishScript stores fragment in window[global] and marks <html> with attr="true"
func PublishScript(global, attr, fragment string) string {
	return fmt.Sprintf(publishScript, jsString(global), jsString(fragment), jsString(attr))
}

// OverlayScript creates the fixed overlay element if needed and sets its text
func OverlayScript(id, text string) string {
	return fmt.Sprintf(overlayScript, jsString(id), jsString(text))
}

// EventScript dispatches a CustomEvent on window. detail must be valid JSON.
func EventScript(name string, detail []byte) string {
	if len(detail) == 0 {
		detail = []byte("null")
	}
	return fmt.Sprintf(eventScript, jsString(name), detail)
}
