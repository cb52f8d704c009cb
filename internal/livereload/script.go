package livereload

import (
	"net/http"
)

// StyleAttr marks stylesheet links the client may swap in place. Its value
// is the stylesheet's manifest key.
const StyleAttr = "data-factory-style"

// clientScript connects back to the host that served it. A reload with
// liveCSS whose path names a manifest re-points marked stylesheet links at
// the hashed files it lists; any other reload with liveCSS cache-busts the
// marked links; everything else reloads the page.
const clientScript = `(function () {
  "use strict";
  var src = document.currentScript && document.currentScript.src;
  var origin = src ? new URL(src) : window.location;
  var scheme = origin.protocol === "https:" ? "wss://" : "ws://";
  var url = scheme + origin.host + "` + SocketPath + `";
  var overlayId = "elm-factory-overlay";

  function clearOverlay() {
    var el = document.getElementById(overlayId);
    if (el) { el.parentNode.removeChild(el); }
  }

  function showOverlay(message) {
    clearOverlay();
    var el = document.createElement("div");
    el.id = overlayId;
    el.style.cssText = "position:fixed;inset:0;z-index:2147483647;overflow:auto;" +
      "background:rgba(20,20,20,.92);color:#f5f5f5;padding:2em;font:14px/1.4 monospace";
    el.innerHTML = "<pre style=\"white-space:pre-wrap\">" + message + "</pre>";
    el.addEventListener("click", clearOverlay);
    document.body.appendChild(el);
  }

  function styleLinks() {
    return document.querySelectorAll("link[` + StyleAttr + `]");
  }

  function swapStyles(path) {
    if (/\.json$/.test(path)) {
      fetch(path, { cache: "no-store" })
        .then(function (res) { return res.json(); })
        .then(function (manifest) {
          var base = path.slice(0, path.lastIndexOf("/") + 1);
          styleLinks().forEach(function (link) {
            var file = manifest[link.getAttribute("` + StyleAttr + `")];
            if (file) { link.href = base + file; }
          });
        })
        .catch(function () { window.location.reload(); });
      return;
    }
    styleLinks().forEach(function (link) {
      var href = link.href.replace(/[?&]livereload=\d+/, "");
      link.href = href + (href.indexOf("?") < 0 ? "?" : "&") + "livereload=" + Date.now();
    });
  }

  function connect() {
    var socket = new WebSocket(url);
    socket.onopen = function () {
      socket.send(JSON.stringify({ command: "hello", protocols: ["` + ProtocolOfficial7 + `"] }));
    };
    socket.onmessage = function (event) {
      var msg;
      try { msg = JSON.parse(event.data); } catch (e) { return; }
      if (msg.command === "reload") {
        clearOverlay();
        if (msg.liveCSS) { swapStyles(msg.path || ""); } else { window.location.reload(); }
      } else if (msg.command === "alert") {
        showOverlay(msg.message || "");
      }
    };
    socket.onclose = function () { setTimeout(connect, 1000); };
  }

  connect();
})();
`

func handleScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(clientScript))
}
