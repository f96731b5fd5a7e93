package server

import (
	"fmt"
	"strings"

	"github.com/yantonsoup/d3-playground/story"
)

// renderIndex renders the story listing.
func (s *Server) renderIndex() string {
	var html strings.Builder
	html.WriteString(fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; max-width: 720px; margin: 0 auto; padding: 2rem; }
        li { margin: 0.5rem 0; }
    </style>
</head>
<body>
    <h1>%s</h1>
    <ul>`, s.cfg.Title, s.cfg.Title))
	for _, st := range s.Stories() {
		html.WriteString(fmt.Sprintf(`<li><a href="/story/%s">%s</a> (%d steps)</li>`, st.ID, st.Title, len(st.Steps)))
	}
	html.WriteString(`</ul>
</body>
</html>`)
	return html.String()
}

// renderStory renders one story page: sticky graphic, one region per step,
// and the measuring script that drives the server-side engine.
func (s *Server) renderStory(st *story.Story) string {
	var steps strings.Builder
	for _, step := range st.Steps {
		steps.WriteString(fmt.Sprintf(`
        <section class="step" data-step="%d">
            <h2>%s</h2>
            %s
        </section>`, step.Index, step.Title, step.HTML))
	}

	debug := "false"
	if st.Options.Debug || s.cfg.Server.Debug {
		debug = "true"
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta name="scrolly-ws-url" content="/ws/%s">
    <meta name="scrolly-debug" content="%s">
    <title>%s</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 0; color: #333; }
        .intro { max-width: 640px; margin: 0 auto; padding: 3rem 1.5rem; }
        #scroll { position: relative; }
        .graphic {
            position: sticky; top: 0; height: 100vh;
            display: flex; align-items: center; justify-content: center;
            background: #f5f7fa; font-size: 4rem; z-index: -1;
        }
        .step {
            max-width: 480px; margin: 0 auto 60vh; padding: 1.5rem;
            background: rgba(255,255,255,0.92); border: 1px solid #e1e4e8;
            border-radius: 8px; opacity: 0.4; transition: opacity 0.2s ease;
        }
        .step.active { opacity: 1; box-shadow: 0 4px 12px rgba(0,0,0,0.12); }
        #trigger-line {
            position: fixed; left: 0; right: 0; height: 0;
            border-top: 2px dashed #e4564a; z-index: 10; pointer-events: none;
        }
    </style>
</head>
<body>
    <div class="intro">
        <h1>%s</h1>
        %s
    </div>
    <div id="scroll">
        <div class="graphic"><span id="graphic-label">·</span></div>
        %s
    </div>
    <script>
    (function() {
        var wsURL = document.querySelector('meta[name="scrolly-ws-url"]').content;
        var debug = document.querySelector('meta[name="scrolly-debug"]').content === 'true';
        var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
        var ws = new WebSocket(proto + location.host + wsURL);

        function elementStates() {
            var out = [];
            function add(el, selector, id) {
                var r = el.getBoundingClientRect();
                out.push({
                    id: id, selector: selector,
                    top: r.top, left: r.left, width: r.width, height: r.height,
                    rendered: !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length)
                });
            }
            add(document.getElementById('scroll'), '#scroll', 'scroll');
            add(document.querySelector('.graphic'), '.graphic', 'graphic');
            document.querySelectorAll('.step').forEach(function(el, i) {
                add(el, '.step', 'step-' + i);
            });
            return out;
        }

        function frame(kind) {
            return JSON.stringify({
                kind: kind,
                scrollY: window.scrollY,
                viewportWidth: window.innerWidth,
                viewportHeight: window.innerHeight,
                pageHeight: document.documentElement.scrollHeight,
                elements: elementStates()
            });
        }

        var pending = null;
        function send(kind) {
            if (ws.readyState !== WebSocket.OPEN) return;
            if (pending) return;
            pending = requestAnimationFrame(function() {
                pending = null;
                ws.send(frame(kind));
            });
        }

        ws.onopen = function() {
            ws.send(frame('hello'));
            window.addEventListener('scroll', function() { send('scroll'); }, { passive: true });
            window.addEventListener('resize', function() { send('resize'); });
        };

        var label = document.getElementById('graphic-label');
        ws.onmessage = function(msg) {
            var ev = JSON.parse(msg.data);
            if (debug) console.log('[scrolly]', ev);
            if (ev.kind === 'stepEnter') {
                document.querySelectorAll('.step')[ev.index].classList.add('active');
                label.textContent = ev.index;
            } else if (ev.kind === 'stepExit') {
                document.querySelectorAll('.step')[ev.index].classList.remove('active');
            } else if (ev.kind === 'stepProgress') {
                label.style.opacity = 0.3 + 0.7 * ev.progress;
            }
        };

        if (debug) {
            var line = document.createElement('div');
            line.id = 'trigger-line';
            line.style.top = (%s * window.innerHeight) + 'px';
            document.body.appendChild(line);
            window.addEventListener('resize', function() {
                line.style.top = (%s * window.innerHeight) + 'px';
            });
        }
    })();
    </script>
</body>
</html>`, st.ID, debug, st.Title, st.Title, st.IntroHTML, steps.String(), offsetLiteral(st), offsetLiteral(st))
}

func offsetLiteral(st *story.Story) string {
	if st.Options.Offset != nil {
		return fmt.Sprintf("%g", *st.Options.Offset)
	}
	return "0.5"
}
