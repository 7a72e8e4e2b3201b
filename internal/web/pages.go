package web

const faviconTag = `<link rel="icon" href="data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>📡</text></svg>">`

const baseStyle = `
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; background: #1a1a2e; color: #eee; }
  h1 { color: #e94560; font-size: 22px; }
`

const loginHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>ft8mon login</title>
` + faviconTag + `
<style>` + baseStyle + `
  body { min-height: 100vh; display: flex; align-items: center; justify-content: center; }
  .login-box { background: #16213e; border-radius: 16px; padding: 40px; width: 360px; }
  h1 { text-align: center; margin-bottom: 30px; }
  .field { margin-bottom: 20px; }
  label { display: block; margin-bottom: 6px; font-size: 14px; color: #aaa; }
  input { width: 100%; padding: 12px; border: 1px solid #333; border-radius: 8px; background: #0f3460; color: #eee; font-size: 16px; }
  .btn { width: 100%; padding: 14px; border: none; border-radius: 8px; background: #e94560; color: #fff; font-size: 16px; cursor: pointer; }
  .error { color: #e94560; text-align: center; margin-top: 15px; font-size: 14px; display: none; }
</style>
</head>
<body>
<div class="login-box">
  <h1>📡 ft8mon</h1>
  <form id="loginForm">
    <div class="field"><label>Username</label><input type="text" name="username" autocomplete="username" required></div>
    <div class="field"><label>Password</label><input type="password" name="password" autocomplete="current-password" required></div>
    <button type="submit" class="btn">Log in</button>
    <div class="error" id="error">Invalid username or password</div>
  </form>
</div>
<script>
document.getElementById('loginForm').onsubmit = async function(e) {
  e.preventDefault();
  var res = await fetch('/api/login', { method: 'POST', body: new URLSearchParams(new FormData(e.target)) });
  if (res.ok) { window.location.href = '/'; } else { document.getElementById('error').style.display = 'block'; }
};
</script>
</body>
</html>`

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>ft8mon</title>
` + faviconTag + `
<style>` + baseStyle + `
  body { padding: 20px; }
  header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 16px; }
  .meta { color: #aaa; font-size: 13px; }
  table { width: 100%; border-collapse: collapse; font-family: monospace; font-size: 14px; }
  th, td { text-align: left; padding: 4px 8px; border-bottom: 1px solid #16213e; }
  th { color: #aaa; font-weight: normal; }
  .card { background: #16213e; border-radius: 12px; padding: 16px; margin-bottom: 16px; }
  .skipped { color: #aaa; } .failed { color: #e94560; }
  a { color: #aaa; }
</style>
</head>
<body>
<header><h1>📡 ft8mon</h1><span class="meta" id="meta"></span><a href="/api/logout">log out</a></header>
<div class="card"><table><thead><tr><th>cycle</th><th>outcome</th><th>decodes</th><th>dup</th><th>decode s</th></tr></thead><tbody id="cycles"></tbody></table></div>
<div class="card"><table><thead><tr><th>utc</th><th>snr</th><th>dt</th><th>freq</th><th>message</th></tr></thead><tbody id="decodes"></tbody></table></div>
<script>
function hhmmss(t) { return t.substr(11, 8).replace(/:/g, ''); }
function cycleRow(c) {
  var tr = document.createElement('tr');
  tr.className = c.outcome;
  tr.innerHTML = '<td>' + hhmmss(c.cycle_start) + '</td><td>' + c.outcome + '</td><td>' + c.decodes +
    '</td><td>' + c.duplicates + '</td><td>' + c.decode_seconds.toFixed(1) + '</td>';
  return tr;
}
function decodeRow(d) {
  var tr = document.createElement('tr');
  tr.innerHTML = '<td>' + hhmmss(d.cycle_start) + '</td><td>' + d.snr + '</td><td>' + d.dt.toFixed(2) +
    '</td><td>' + d.freq_hz.toFixed(1) + '</td><td></td>';
  tr.lastChild.textContent = d.message;
  return tr;
}
function prepend(id, row, max) {
  var body = document.getElementById(id);
  body.insertBefore(row, body.firstChild);
  while (body.children.length > max) body.removeChild(body.lastChild);
}
async function load() {
  var st = await (await fetch('/api/status')).json();
  document.getElementById('meta').textContent = st.mode + ' ' + st.device + ' · ' + st.decodes_total + ' decodes';
  (st.cycles || []).slice().reverse().forEach(function(c) { prepend('cycles', cycleRow(c), 20); });
  var ds = await (await fetch('/api/decodes?limit=100')).json();
  ds.slice().reverse().forEach(function(d) { prepend('decodes', decodeRow(d), 200); });
}
function live() {
  var ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
  ws.onmessage = function(ev) {
    var m = JSON.parse(ev.data);
    if (m.type === 'cycle') prepend('cycles', cycleRow(m.data), 20);
    if (m.type === 'decode') prepend('decodes', decodeRow(m.data), 200);
  };
  ws.onclose = function() { setTimeout(live, 3000); };
}
load().then(live);
</script>
</body>
</html>`
