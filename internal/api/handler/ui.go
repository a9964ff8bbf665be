package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UIHandler serves the single-page research console.
type UIHandler struct{}

// NewUIHandler creates a new UI handler.
func NewUIHandler() *UIHandler {
	return &UIHandler{}
}

// pollIntervalMs is how often the page refreshes a running job's status.
const pollIntervalMs = "3000"

// Index serves the console page.
func (h *UIHandler) Index(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, indexHTML)
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Deep Research</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #f5f6f8;
            color: #222;
            padding: 24px;
        }
        .container { max-width: 960px; margin: 0 auto; }
        h1 { margin-bottom: 20px; font-size: 24px; }
        .card {
            background: #fff;
            border-radius: 10px;
            padding: 20px;
            margin-bottom: 20px;
            box-shadow: 0 1px 3px rgba(0,0,0,0.08);
        }
        .form-group { margin-bottom: 14px; }
        label { display: block; font-weight: 600; margin-bottom: 6px; font-size: 14px; }
        textarea, select, input[type=file] { width: 100%; padding: 8px; border: 1px solid #ccd; border-radius: 6px; font-size: 14px; }
        textarea { min-height: 90px; resize: vertical; }
        .row { display: flex; gap: 12px; }
        .row > div { flex: 1; }
        .checks label { display: inline-flex; align-items: center; gap: 6px; font-weight: normal; margin-right: 18px; }
        button {
            padding: 9px 18px;
            border: none;
            border-radius: 6px;
            font-size: 14px;
            cursor: pointer;
            background: #3056d3;
            color: #fff;
        }
        button.secondary { background: #6b7280; }
        button.danger { background: #c0392b; }
        button:disabled { opacity: 0.5; cursor: not-allowed; }
        .progress { height: 10px; background: #e5e7eb; border-radius: 5px; overflow: hidden; margin: 10px 0; }
        .progress > div { height: 100%; background: #3056d3; width: 0; transition: width 0.4s; }
        .status { font-size: 14px; color: #555; }
        .error { color: #c0392b; margin-top: 8px; }
        pre { white-space: pre-wrap; word-wrap: break-word; background: #fafafa; border: 1px solid #eee; padding: 12px; border-radius: 6px; margin-top: 12px; font-size: 14px; }
        ol { margin: 10px 0 0 20px; font-size: 14px; }
        .jobs li { list-style: none; padding: 6px 0; border-bottom: 1px solid #eee; font-size: 14px; cursor: pointer; }
        .badge { display: inline-block; min-width: 80px; font-size: 12px; color: #fff; border-radius: 4px; padding: 2px 6px; margin-right: 8px; text-align: center; }
        .pending, .processing { background: #d39e00; }
        .completed { background: #2e7d32; }
        .failed { background: #c0392b; }
        .cancelled { background: #6b7280; }
        .hidden { display: none; }
        .actions { display: flex; gap: 8px; margin-top: 10px; }
    </style>
</head>
<body>
<div class="container">
    <h1>Deep Research</h1>

    <div class="card">
        <form id="form">
            <div class="form-group">
                <label for="query">Question</label>
                <textarea id="query" name="query" required placeholder="What do you want to research?"></textarea>
            </div>
            <div class="row">
                <div class="form-group">
                    <label for="depth">Depth</label>
                    <select id="depth" name="depth">
                        <option value="quick">Quick</option>
                        <option value="standard" selected>Standard</option>
                        <option value="deep">Deep</option>
                        <option value="maximum">Maximum</option>
                    </select>
                </div>
                <div class="form-group">
                    <label for="output_format">Format</label>
                    <select id="output_format" name="output_format">
                        <option value="summary">Summary</option>
                        <option value="detailed">Detailed</option>
                        <option value="markdown" selected>Markdown</option>
                        <option value="json">JSON</option>
                    </select>
                </div>
                <div class="form-group">
                    <label for="source_scope">Sources</label>
                    <select id="source_scope" name="source_scope">
                        <option value="all" selected>All</option>
                        <option value="web">Web</option>
                        <option value="academic">Academic</option>
                        <option value="news">News</option>
                    </select>
                </div>
            </div>
            <div class="form-group">
                <label for="files">Documents</label>
                <input type="file" id="files" name="files" multiple>
            </div>
            <div class="form-group checks">
                <label><input type="checkbox" id="include_citations" checked> Citations</label>
                <label><input type="checkbox" id="refine"> Refine for consistency</label>
            </div>
            <button type="submit" id="submitBtn">Start research</button>
        </form>
    </div>

    <div class="card hidden" id="jobCard">
        <div class="status" id="status"></div>
        <div class="progress"><div id="bar"></div></div>
        <div class="actions">
            <button type="button" class="danger" id="cancelBtn">Cancel</button>
            <button type="button" class="secondary" id="exportBtn" disabled>Export</button>
        </div>
        <div class="error" id="error"></div>
        <pre id="content" class="hidden"></pre>
        <ol id="sources"></ol>
    </div>

    <div class="card">
        <label>Recent jobs</label>
        <ul class="jobs" id="jobs"></ul>
    </div>
</div>

<script>
    const POLL_MS = ` + pollIntervalMs + `;
    let currentId = null;
    let timer = null;

    const $ = (id) => document.getElementById(id);
    const terminal = (s) => s === 'completed' || s === 'failed' || s === 'cancelled';

    $('form').addEventListener('submit', async (e) => {
        e.preventDefault();
        const data = new FormData();
        data.append('query', $('query').value);
        data.append('depth', $('depth').value);
        data.append('output_format', $('output_format').value);
        data.append('source_scope', $('source_scope').value);
        data.append('include_citations', $('include_citations').checked);
        data.append('refine', $('refine').checked);
        for (const f of $('files').files) data.append('files', f);

        $('submitBtn').disabled = true;
        try {
            const resp = await fetch('/api/v1/research', { method: 'POST', body: data });
            const body = await resp.json();
            if (!resp.ok) throw new Error(body.error || resp.statusText);
            watch(body.job.id);
        } catch (err) {
            $('jobCard').classList.remove('hidden');
            $('error').textContent = err.message;
        } finally {
            $('submitBtn').disabled = false;
        }
    });

    $('cancelBtn').addEventListener('click', async () => {
        if (!currentId) return;
        const resp = await fetch('/api/v1/research/' + currentId + '/cancel', { method: 'POST' });
        const body = await resp.json();
        if (body.job) render(body.job);
    });

    $('exportBtn').addEventListener('click', async () => {
        if (!currentId) return;
        const resp = await fetch('/api/v1/research/' + currentId + '/export', { method: 'POST' });
        const body = await resp.json();
        if (!resp.ok) { $('error').textContent = body.error; return; }
        window.open(body.url, '_blank');
    });

    function watch(id) {
        currentId = id;
        clearInterval(timer);
        $('jobCard').classList.remove('hidden');
        poll();
        timer = setInterval(poll, POLL_MS);
    }

    async function poll() {
        if (!currentId) return;
        try {
            const resp = await fetch('/api/v1/research/' + currentId);
            if (!resp.ok) return;
            const job = await resp.json();
            render(job);
            if (terminal(job.status)) {
                clearInterval(timer);
                loadJobs();
            }
        } catch (err) {
            // Transient errors: try again on the next tick.
        }
    }

    function render(job) {
        $('status').innerHTML = '<span class="badge ' + job.status + '">' + job.status + '</span>' +
            (job.stage ? job.stage + ' ' : '') + job.progress + '%';
        $('bar').style.width = job.progress + '%';
        $('error').textContent = job.error || '';
        $('cancelBtn').disabled = terminal(job.status);
        $('exportBtn').disabled = job.status !== 'completed';

        const content = $('content');
        if (job.content) {
            content.textContent = job.content;
            content.classList.remove('hidden');
        } else {
            content.classList.add('hidden');
        }

        const sources = $('sources');
        sources.innerHTML = '';
        (job.sources || []).forEach((s) => {
            const li = document.createElement('li');
            const a = document.createElement('a');
            a.href = s.url;
            a.target = '_blank';
            a.textContent = s.title || s.url;
            li.appendChild(a);
            sources.appendChild(li);
        });
    }

    async function loadJobs() {
        const resp = await fetch('/api/v1/research?limit=20');
        if (!resp.ok) return;
        const body = await resp.json();
        const list = $('jobs');
        list.innerHTML = '';
        body.jobs.forEach((job) => {
            const li = document.createElement('li');
            const badge = document.createElement('span');
            badge.className = 'badge ' + job.status;
            badge.textContent = job.status;
            li.appendChild(badge);
            li.appendChild(document.createTextNode(job.query));
            li.addEventListener('click', () => watch(job.id));
            list.appendChild(li);
        });
    }

    loadJobs();
</script>
</body>
</html>`
