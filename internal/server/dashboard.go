package server

// dashboardHTML is the single-page live feed. It listens on /ws and polls
// /api/stats for the block rate and the most violated classes.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Gatekeeper</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, monospace;
    background: #0d1117; color: #c9d1d9; padding: 20px;
  }
  h1 { color: #58a6ff; margin-bottom: 4px; font-size: 1.5em; }
  .subtitle { color: #8b949e; margin-bottom: 20px; font-size: 0.9em; }
  .stats {
    display: grid; grid-template-columns: repeat(auto-fit, minmax(150px, 1fr));
    gap: 12px; margin-bottom: 20px;
  }
  .stat-card {
    background: #161b22; border: 1px solid #30363d; border-radius: 6px;
    padding: 16px; text-align: center;
  }
  .stat-number { font-size: 2em; font-weight: 700; color: #58a6ff; }
  .stat-number.allowed { color: #3fb950; }
  .stat-number.denied { color: #f85149; }
  .stat-label { font-size: 0.8em; color: #8b949e; margin-top: 4px; }
  #conn.connected { color: #3fb950; }
  #conn.disconnected { color: #f85149; }
  .panel { background: #161b22; border: 1px solid #30363d; border-radius: 6px; margin-bottom: 20px; }
  .panel h2 { font-size: 0.9em; padding: 10px 16px; border-bottom: 1px solid #30363d; color: #8b949e; }
  .row {
    display: grid; grid-template-columns: 110px 70px 1fr 120px 1fr;
    padding: 6px 16px; border-bottom: 1px solid #21262d; font-size: 0.85em;
  }
  .badge { font-weight: 700; }
  .badge.allow { color: #3fb950; }
  .badge.deny { color: #f85149; }
  #top li { list-style: none; padding: 6px 16px; font-size: 0.85em; }
  .empty { padding: 16px; color: #8b949e; }
</style>
</head>
<body>
<h1>Gatekeeper</h1>
<div class="subtitle">Live admission decisions &middot; <span id="conn" class="disconnected">disconnected</span></div>

<div class="stats">
  <div class="stat-card"><div class="stat-number" id="total">0</div><div class="stat-label">Seen</div></div>
  <div class="stat-card"><div class="stat-number allowed" id="allowed">0</div><div class="stat-label">Allowed</div></div>
  <div class="stat-card"><div class="stat-number denied" id="denied">0</div><div class="stat-label">Denied</div></div>
  <div class="stat-card"><div class="stat-number" id="blockRate">0%</div><div class="stat-label">Block rate (1h)</div></div>
</div>

<div class="panel">
  <h2>Most violated classes (1h)</h2>
  <ul id="top"><li class="empty">No violations</li></ul>
</div>

<div class="panel">
  <h2>Decisions</h2>
  <div id="feed"><div class="empty">Waiting for decisions...</div></div>
</div>

<script>
const MAX_ROWS = 200;
let total = 0, allowed = 0, denied = 0;

function escHtml(s) {
  const d = document.createElement('div');
  d.textContent = s == null ? '' : String(s);
  return d.innerHTML;
}

function connect() {
  const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
  const ws = new WebSocket(proto + '//' + location.host + '/ws');
  const conn = document.getElementById('conn');
  ws.onopen = () => { conn.textContent = 'connected'; conn.className = 'connected'; };
  ws.onclose = () => {
    conn.textContent = 'disconnected'; conn.className = 'disconnected';
    setTimeout(connect, 2000);
  };
  ws.onmessage = (msg) => addEvent(JSON.parse(msg.data));
}

function addEvent(event) {
  const feed = document.getElementById('feed');
  const empty = feed.querySelector('.empty');
  if (empty) empty.remove();

  total++;
  if (event.allowed) allowed++; else denied++;
  document.getElementById('total').textContent = total;
  document.getElementById('allowed').textContent = allowed;
  document.getElementById('denied').textContent = denied;

  const time = new Date(event.time).toLocaleTimeString('en-US', {hour12: false});
  const badge = event.allowed ? '<span class="badge allow">ALLOW</span>' : '<span class="badge deny">DENY</span>';
  const req = event.request || {};
  const row = document.createElement('div');
  row.className = 'row';
  row.innerHTML =
    '<span>' + time + '</span>' + badge +
    '<span>' + escHtml(event.identifier) + '</span>' +
    '<span>' + escHtml(event.class) + '</span>' +
    '<span>' + escHtml(req.endpoint) + '</span>';
  feed.prepend(row);
  while (feed.children.length > MAX_ROWS) feed.lastChild.remove();
}

async function refreshStats() {
  try {
    const res = await fetch('/api/stats?period=1h');
    const stats = await res.json();
    document.getElementById('blockRate').textContent = (stats.block_rate * 100).toFixed(1) + '%';
    const top = document.getElementById('top');
    const limits = stats.top_violated_limits || [];
    top.innerHTML = limits.length === 0
      ? '<li class="empty">No violations</li>'
      : limits.map(l => '<li>' + escHtml(l.class) + ': ' + l.count + '</li>').join('');
  } catch (e) {}
}

connect();
refreshStats();
setInterval(refreshStats, 5000);
</script>
</body>
</html>
`
