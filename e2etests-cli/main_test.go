package e2etests_cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"oss.terrastruct.com/util-go/assert"
	"oss.terrastruct.com/util-go/xmain"
	"oss.terrastruct.com/util-go/xos"

	"github.com/dylanowen/archi-zoom/azcli"
)

const archSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 400 300"><rect x="10" y="10" width="80" height="40"/></svg>`

const companionJS = `"use strict";
window.archizoomInit = function (path) {
  return Promise.resolve({ open: function () {} });
};
`

func TestCLI_E2E(t *testing.T) {
	t.Parallel()

	tca := []struct {
		name   string
		skipCI bool
		skip   bool
		run    func(t *testing.T, ctx context.Context, dir string, env *xos.Env)
	}{
		{
			name: "bundle",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "diagrams/arch.svg", archSVG)
				writeFile(t, dir, "page.html", `<!DOCTYPE html>
<html>
<body>
<h1>architecture</h1>
<img data-archizoom src="./diagrams/arch.svg" width="640" height="480" />
</body>
</html>
`)
				err := runTestMain(t, ctx, dir, env, "page.html")
				assert.Success(t, err)

				out := string(readFile(t, dir, "page.bundle.html"))
				assert.Equal(t, 1, strings.Count(out, `class="archizoom"`))
				assert.Equal(t, 1, strings.Count(out, `data-archizoom-src="./diagrams/arch.svg"`))
				assert.Equal(t, 1, strings.Count(out, "<svg"))
				assert.Equal(t, 0, strings.Count(out, "<img"))
				assert.Equal(t, 1, strings.Count(out, `id="archizoom-loader"`))
				assert.Equal(t, 1, strings.Count(out, `ensureLoaded("archizoom");`))
			},
		},
		{
			name: "output-arg",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "diagrams/arch.svg", archSVG)
				writeFile(t, dir, "page.html", `<html><body><img data-archizoom src="./diagrams/arch.svg"></body></html>`)
				err := runTestMain(t, ctx, dir, env, "page.html", "custom.html")
				assert.Success(t, err)

				out := string(readFile(t, dir, "custom.html"))
				assert.Equal(t, 1, strings.Count(out, `class="archizoom"`))
			},
		},
		{
			name: "dir-input",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "site/arch.svg", archSVG)
				writeFile(t, dir, "site/index.html", `<html><body><img data-archizoom src="arch.svg"></body></html>`)
				err := runTestMain(t, ctx, dir, env, "site")
				assert.Success(t, err)

				out := string(readFile(t, dir, "site.bundle.html"))
				assert.Equal(t, 1, strings.Count(out, `class="archizoom"`))
			},
		},
		{
			name: "stdio",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "diagrams/arch.svg", archSVG)
				stdin := strings.NewReader(`<html><body><img data-archizoom src="./diagrams/arch.svg"></body></html>`)
				stdout := &bytes.Buffer{}
				tms := testMain(dir, env, "-")
				tms.Stdin = stdin
				tms.Stdout = stdout
				tms.Start(t, ctx)
				defer tms.Cleanup(t)

				err := tms.Wait(ctx)
				assert.Success(t, err)

				out := stdout.String()
				assert.Equal(t, 1, strings.Count(out, `class="archizoom"`))
				assert.Equal(t, 1, strings.Count(out, `id="archizoom-loader"`))
			},
		},
		{
			name: "custom-prefix",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "arch.svg", archSVG)
				writeFile(t, dir, "page.html", `<html><body><img data-archizoom src="arch.svg"></body></html>`)
				err := runTestMain(t, ctx, dir, env, "--prefix=viewer", "page.html")
				assert.Success(t, err)

				out := string(readFile(t, dir, "page.bundle.html"))
				assert.Equal(t, 1, strings.Count(out, `ensureLoaded("viewer");`))
			},
		},
		{
			name: "rebundle-idempotent",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "arch.svg", archSVG)
				writeFile(t, dir, "page.html", `<html><body><img data-archizoom src="arch.svg"></body></html>`)
				err := runTestMain(t, ctx, dir, env, "page.html")
				assert.Success(t, err)
				err = runTestMain(t, ctx, dir, env, "page.bundle.html")
				assert.Success(t, err)

				out := string(readFile(t, dir, "page.bundle.bundle.html"))
				assert.Equal(t, 1, strings.Count(out, `id="archizoom-loader"`))
				assert.Equal(t, 1, strings.Count(out, `class="archizoom"`))
			},
		},
		{
			name: "missing-src",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "page.html", `<html><body><img data-archizoom></body></html>`)
				err := runTestMain(t, ctx, dir, env, "page.html")
				assertErrContains(t, err, "failed to fully bundle (partial page written)")
				assertErrContains(t, err, "img[data-archizoom] is missing a src")

				// The page is still written with the loader shim.
				out := string(readFile(t, dir, "page.bundle.html"))
				assert.Equal(t, 1, strings.Count(out, `id="archizoom-loader"`))
			},
		},
		{
			name: "missing-diagram",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "diagrams/arch.svg", archSVG)
				writeFile(t, dir, "page.html", `<html><body>
<img data-archizoom src="./diagrams/arch.svg">
<img data-archizoom src="./diagrams/missing.svg">
</body></html>`)
				err := runTestMain(t, ctx, dir, env, "page.html")
				assertErrContains(t, err, "failed to fully bundle (partial page written)")
				assertErrContains(t, err, "failed to inline ./diagrams/missing.svg")

				// Whatever could be inlined is, the failed img stays put.
				out := string(readFile(t, dir, "page.bundle.html"))
				assert.Equal(t, 1, strings.Count(out, `class="archizoom"`))
				assert.Equal(t, 1, strings.Count(out, `src="./diagrams/missing.svg"`))
			},
		},
		{
			name: "too-many-args",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "page.html", `<html><body></body></html>`)
				err := runTestMain(t, ctx, dir, env, "page.html", "out.html", "extra.html")
				assert.ErrorString(t, err, `failed to wait xmain test: e2etests-cli/archi-zoom: bad usage: too many arguments passed`)
			},
		},
		{
			name: "version",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				err := runTestMain(t, ctx, dir, env, "version")
				assert.Success(t, err)
			},
		},
		{
			name: "version-args",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				err := runTestMain(t, ctx, dir, env, "version", "extra")
				assert.ErrorString(t, err, `failed to wait xmain test: e2etests-cli/archi-zoom: bad usage: version subcommand accepts no arguments`)
			},
		},
		{
			name: "watch-stdin",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				err := runTestMain(t, ctx, dir, env, "--watch", "-")
				assert.ErrorString(t, err, `failed to wait xmain test: e2etests-cli/archi-zoom: bad usage: -w[atch] cannot be combined with reading input from stdin`)
			},
		},
		{
			name: "check",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "pkg/archizoom.js", companionJS)
				writeFile(t, dir, "pkg/archizoom_bg.wasm", "\x00asm\x01\x00\x00\x00")
				err := runTestMain(t, ctx, dir, env, "check")
				assert.Success(t, err)
			},
		},
		{
			name: "check-dir",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "dist/pkg/archizoom.js", companionJS)
				writeFile(t, dir, "dist/pkg/archizoom_bg.wasm", "\x00asm\x01\x00\x00\x00")
				err := runTestMain(t, ctx, dir, env, "check", "dist")
				assert.Success(t, err)
			},
		},
		{
			name: "check-prefix",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "pkg/viewer.js", companionJS)
				writeFile(t, dir, "pkg/viewer_bg.wasm", "\x00asm\x01\x00\x00\x00")
				err := runTestMain(t, ctx, dir, env, "--prefix=viewer", "check")
				assert.Success(t, err)
			},
		},
		{
			name: "check-missing",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				err := runTestMain(t, ctx, dir, env, "check")
				assertErrContains(t, err, "failed to check")
				assertErrContains(t, err, "archizoom.js")
			},
		},
		{
			name: "check-empty",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "pkg/archizoom.js", companionJS)
				writeFile(t, dir, "pkg/archizoom_bg.wasm", "")
				err := runTestMain(t, ctx, dir, env, "check")
				assertErrContains(t, err, "archizoom_bg.wasm is empty")
			},
		},
		{
			name: "check-bad-magic",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "pkg/archizoom.js", companionJS)
				writeFile(t, dir, "pkg/archizoom_bg.wasm", "<html>404 not found</html>")
				err := runTestMain(t, ctx, dir, env, "check")
				assertErrContains(t, err, "archizoom_bg.wasm is not a WebAssembly module")
			},
		},
		{
			name: "check-no-entry",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "pkg/archizoom.js", `"use strict";
var unrelated = 1;
`)
				writeFile(t, dir, "pkg/archizoom_bg.wasm", "\x00asm\x01\x00\x00\x00")
				err := runTestMain(t, ctx, dir, env, "check")
				assertErrContains(t, err, "did not define archizoomInit")
			},
		},
		{
			name: "check-broken-companion",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "pkg/archizoom.js", `throw new Error("boot failed");`)
				writeFile(t, dir, "pkg/archizoom_bg.wasm", "\x00asm\x01\x00\x00\x00")
				err := runTestMain(t, ctx, dir, env, "check")
				assertErrContains(t, err, "failed to load")
				assertErrContains(t, err, "boot failed")
			},
		},
		{
			name: "check-args",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				err := runTestMain(t, ctx, dir, env, "check", "dist", "extra")
				assert.ErrorString(t, err, `failed to wait xmain test: e2etests-cli/archi-zoom: failed to check: bad usage: check accepts at most one directory`)
			},
		},
		{
			name: "watch",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "diagrams/arch.svg", archSVG)
				writeFile(t, dir, "page.html", `<!DOCTYPE html>
<html>
<body>
<img data-archizoom src="./diagrams/arch.svg" />
<img data-archizoom />
</body>
</html>
`)

				stderr := &stderrWrapper{}
				tms := testMain(dir, env, "--watch", "--browser=0", "page.html")
				tms.Stderr = stderr
				tms.Start(t, ctx)
				defer tms.Cleanup(t)

				watchURL := waitLogs(t, ctx, stderr, regexp.MustCompile(`listening on (http://\S+)`))

				page := getWatchPage(t, ctx, watchURL)
				assert.Equal(t, 1, strings.Count(page, `class="archizoom"`))
				assert.Equal(t, 1, strings.Count(page, `src="/static/watch.js"`))

				// The first bundle failed on the src-less img, so a fresh
				// client gets the standing error replayed on connect.
				c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(watchURL, "http")+"/watch", nil)
				assert.Success(t, err)
				defer c.Close(websocket.StatusNormalClosure, "")

				var res struct {
					Err string `json:"err"`
				}
				err = wsjson.Read(ctx, c, &res)
				assert.Success(t, err)
				if !strings.Contains(res.Err, "img[data-archizoom] is missing a src") {
					t.Fatalf("expected the standing bundle error replayed, got: %q", res.Err)
				}

				writeFile(t, dir, "page.html", `<!DOCTYPE html>
<html>
<body>
<img data-archizoom src="./diagrams/arch.svg" />
</body>
</html>
`)
				waitLogs(t, ctx, stderr, regexp.MustCompile(`successfully rebundled`))

				err = wsjson.Read(ctx, c, &res)
				assert.Success(t, err)
				assert.Equal(t, "", res.Err)

				err = tms.Signal(ctx, syscall.SIGTERM)
				assert.Success(t, err)
			},
		},
	}

	ctx := context.Background()
	for _, tc := range tca {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if tc.skipCI && os.Getenv("CI") != "" {
				t.SkipNow()
			}
			if tc.skip {
				t.SkipNow()
			}

			ctx, cancel := context.WithTimeout(ctx, time.Minute*5)
			defer cancel()

			dir, cleanup := assert.TempDir(t)
			defer cleanup()

			env := xos.NewEnv(nil)

			tc.run(t, ctx, dir, env)
		})
	}
}

// The CLI runs in-process rather than as a subprocess so that state cleanup
// is part of what these tests cover.
func testMain(dir string, env *xos.Env, args ...string) *xmain.TestState {
	return &xmain.TestState{
		Run:  azcli.Run,
		Env:  env,
		Args: append([]string{"e2etests-cli/archi-zoom"}, args...),
		PWD:  dir,
	}
}

func runTestMain(tb testing.TB, ctx context.Context, dir string, env *xos.Env, args ...string) error {
	tms := testMain(dir, env, args...)
	tms.Start(tb, ctx)
	defer tms.Cleanup(tb)
	return tms.Wait(ctx)
}

func writeFile(tb testing.TB, dir, fp, data string) {
	tb.Helper()
	err := os.MkdirAll(filepath.Dir(filepath.Join(dir, fp)), 0755)
	assert.Success(tb, err)
	assert.WriteFile(tb, filepath.Join(dir, fp), []byte(data), 0644)
}

func readFile(tb testing.TB, dir, fp string) []byte {
	tb.Helper()
	return assert.ReadFile(tb, filepath.Join(dir, fp))
}

func assertErrContains(tb testing.TB, err error, substr string) {
	tb.Helper()
	if err == nil {
		tb.Fatalf("expected error containing %q, got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		tb.Fatalf("expected error containing %q, got: %v", substr, err)
	}
}

// waitLogs polls the stderr buffer until it matches re, returning the first
// submatch if re captures one and the whole match otherwise.
func waitLogs(t *testing.T, ctx context.Context, buf *stderrWrapper, re *regexp.Regexp) string {
	t.Helper()
	ticker := time.NewTicker(time.Millisecond * 10)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m := re.FindStringSubmatch(buf.Read())
			if m == nil {
				continue
			}
			if len(m) > 1 {
				return m[1]
			}
			return m[0]
		case <-ctx.Done():
			t.Fatalf("timed out waiting for logs matching %v. logs so far:\n%s", re, buf.Read())
			return ""
		}
	}
}

// getWatchPage polls the watch server until it serves a bundled page.
func getWatchPage(t *testing.T, ctx context.Context, watchURL string) string {
	t.Helper()
	ticker := time.NewTicker(time.Millisecond * 10)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL, nil)
			assert.Success(t, err)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				continue
			}
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil || resp.StatusCode != http.StatusOK {
				continue
			}
			if strings.Contains(string(body), `class="archizoom"`) {
				return string(body)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for a bundled page from %s", watchURL)
			return ""
		}
	}
}
