// Package azbundle rewrites an HTML page into a self-contained bundle:
// every marked diagram image becomes an inline SVG container and the
// loader shim is injected so the page boots the wasm viewer on its own.
package azbundle

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/multierr"

	"github.com/dylanowen/archi-zoom/azloader"
	"github.com/dylanowen/archi-zoom/azviewer"
	"github.com/dylanowen/archi-zoom/lib/log"
	"github.com/dylanowen/archi-zoom/lib/syncmap"
)

const (
	// AttrMark flags an element for the viewer. The bundler moves it from
	// the img onto the inlined svg so the wasm side attaches to the same
	// nodes either way.
	AttrMark = "data-archizoom"
	// AttrSrc keeps the original image source on the container.
	AttrSrc = "data-archizoom-src"

	ContainerClass = "archizoom"

	shimID = "archizoom-loader"
)

type Opts struct {
	// Prefix names the companion script pair under pkg/ that the injected
	// shim boots. Defaults to azloader.DefaultPrefix.
	Prefix string
	// CacheRemote reuses remote fetches across bundles of the same process.
	CacheRemote bool
	// InjectScripts are extra script srcs appended to the body, e.g. the
	// watch server's reload client. Each src is injected at most once.
	InjectScripts []string
}

var transport = http.DefaultTransport

var fetchCache = syncmap.New[string, []byte]()

// Bundle inlines every img[data-archizoom] in page and injects the loader
// shim exactly once. Local image sources resolve through fsys, which is
// rooted at the page's directory. It returns the rewritten page, the local
// paths the page depends on including ones that failed to read, and the
// per-image failures combined. A non-nil error does not discard the page:
// images that failed stay untouched and everything else is still rewritten.
func Bundle(ctx context.Context, fsys fs.FS, page []byte, opts Opts) ([]byte, []string, error) {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = azloader.DefaultPrefix
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse page: %w", err)
	}

	var deps []string
	seen := make(map[string]struct{})
	var bundleErr error

	doc.Find("img[" + AttrMark + "]").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			bundleErr = multierr.Combine(bundleErr, fmt.Errorf("img[%s] is missing a src", AttrMark))
			return
		}

		data, local, err := load(ctx, fsys, src, opts.CacheRemote)
		if local != "" {
			if _, ok := seen[local]; !ok {
				seen[local] = struct{}{}
				deps = append(deps, local)
			}
		}
		if err != nil {
			bundleErr = multierr.Combine(bundleErr, fmt.Errorf("failed to inline %s: %w", src, err))
			return
		}

		if err := inline(img, src, data); err != nil {
			bundleErr = multierr.Combine(bundleErr, fmt.Errorf("failed to inline %s: %w", src, err))
		}
	})

	if doc.Find("script#"+shimID).Length() == 0 {
		shim := fmt.Sprintf("<script id=\"%s\">\n%s\nensureLoaded(%q);\n</script>\n", shimID, azloader.ShimJS, prefix)
		doc.Find("body").First().AppendHtml(shim)
	}
	for _, src := range opts.InjectScripts {
		if doc.Find(fmt.Sprintf("script[src=%q]", src)).Length() > 0 {
			continue
		}
		doc.Find("body").First().AppendHtml(fmt.Sprintf("<script src=%q></script>\n", src))
	}

	out, err := doc.Html()
	if err != nil {
		return nil, deps, multierr.Combine(bundleErr, fmt.Errorf("failed to render page: %w", err))
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return []byte(out), deps, bundleErr
}

// inline swaps the img for a sized container div holding the SVG text.
// The svg fills the container and the viewer drives its viewBox.
func inline(img *goquery.Selection, src string, data []byte) error {
	frag, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	svg := frag.Find("svg").First()
	if svg.Length() == 0 {
		return fmt.Errorf("no svg root")
	}

	mark, _ := img.Attr(AttrMark)
	svg.SetAttr(AttrMark, mark)
	svg.SetAttr("width", "100%")
	svg.SetAttr("height", "100%")
	if _, ok := svg.Attr("viewBox"); !ok {
		svg.SetAttr("viewBox", azviewer.DefaultViewBox.String())
	}
	svgHTML, err := goquery.OuterHtml(svg)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString(`<div class="` + ContainerClass)
	if c, ok := img.Attr("class"); ok && c != "" {
		b.WriteString(" " + html.EscapeString(c))
	}
	b.WriteString(`"`)
	if id, ok := img.Attr("id"); ok && id != "" {
		b.WriteString(fmt.Sprintf(` id="%s"`, html.EscapeString(id)))
	}
	b.WriteString(fmt.Sprintf(` %s="%s"`, AttrSrc, html.EscapeString(src)))
	if style := containerStyle(img); style != "" {
		b.WriteString(fmt.Sprintf(` style="%s"`, html.EscapeString(style)))
	}
	b.WriteString(">")
	b.WriteString(svgHTML)
	b.WriteString("</div>")

	img.ReplaceWithHtml(b.String())
	return nil
}

// containerStyle carries the img's declared sizing over to the container.
// The author's own style comes last so it wins.
func containerStyle(img *goquery.Selection) string {
	var styles []string
	if w, ok := img.Attr("width"); ok && w != "" {
		styles = append(styles, "width: "+cssSize(w))
	}
	if h, ok := img.Attr("height"); ok && h != "" {
		styles = append(styles, "height: "+cssSize(h))
	}
	if s, ok := img.Attr("style"); ok && strings.TrimSpace(s) != "" {
		styles = append(styles, strings.TrimSuffix(strings.TrimSpace(s), ";"))
	}
	return strings.Join(styles, "; ")
}

// Dimension attributes are CSS pixels unless they already carry a unit.
func cssSize(v string) string {
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return v + "px"
	}
	return v
}

func load(ctx context.Context, fsys fs.FS, src string, cacheRemote bool) (data []byte, local string, err error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		data, err = fetch(ctx, src, cacheRemote)
		return data, "", err
	}

	p := strings.TrimPrefix(src, "./")
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = path.Clean(p)
	if !fs.ValidPath(p) {
		return nil, "", fmt.Errorf("%q escapes the page directory", src)
	}
	data, err = fs.ReadFile(fsys, p)
	if err != nil {
		// The path is still a dependency: a watcher wants to know about
		// it so the page rebundles once the file appears.
		return nil, p, err
	}
	return data, p, nil
}

func fetch(ctx context.Context, href string, cache bool) ([]byte, error) {
	if cache {
		if data, ok := fetchCache.Lookup(href); ok {
			log.Debug(ctx, "remote image cached", slog.String("href", href))
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", href, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Transport: transport}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s responded %s", href, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if cache {
		fetchCache.Set(href, data)
	}
	return data, nil
}
