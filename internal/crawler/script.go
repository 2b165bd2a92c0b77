package crawler

// beaconHookScript 在每个新文档建立时注入。
// 浏览器对 navigator.sendBeacon 发出的请求经常拿不回报文体，
// 这里把报文体镜像到 window.__beaconLog，访问结束后统一回收。
const beaconHookScript = `(function() {
  if (window.__beaconLog) { return; }
  window.__beaconLog = [];
  var orig = navigator.sendBeacon && navigator.sendBeacon.bind(navigator);
  if (!orig) { return; }
  navigator.sendBeacon = function(url, data) {
    var entry = { url: String(url), body: null, ts: Date.now() / 1000 };
    window.__beaconLog.push(entry);
    try {
      if (typeof data === 'string') {
        entry.body = data;
      } else if (data instanceof Blob) {
        data.text().then(function(t) { entry.body = t; }).catch(function() {});
      } else if (data instanceof ArrayBuffer) {
        entry.body = new TextDecoder().decode(new Uint8Array(data));
      } else if (data && ArrayBuffer.isView(data)) {
        entry.body = new TextDecoder().decode(data);
      }
    } catch (e) {}
    return orig(url, data);
  };
})();`
