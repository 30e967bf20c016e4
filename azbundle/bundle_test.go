package azbundle

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"oss.terrastruct.com/util-go/assert"

	"github.com/dylanowen/archi-zoom/lib/memfs"
)

const archSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 400 300"><rect width="10" height="10"/></svg>`

func bundlePage(t *testing.T, files map[string]string, page string, opts Opts) (*goquery.Document, []string, error) {
	t.Helper()
	fsys, err := memfs.New(files)
	assert.Success(t, err)
	out, deps, berr := Bundle(context.Background(), fsys, []byte(page), opts)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(out)))
	assert.Success(t, err)
	return doc, deps, berr
}

func TestBundleInlinesLocalImages(t *testing.T) {
	page := `<html><body>
<img data-archizoom src="./diagrams/arch.svg" width="640" height="480" class="figure">
<img src="logo.png">
<img data-archizoom src="diagrams/arch.svg" style="width: 50%;">
</body></html>`

	doc, deps, err := bundlePage(t, map[string]string{
		"diagrams/arch.svg": archSVG,
	}, page, Opts{})
	assert.Success(t, err)
	assert.JSON(t, []string{"diagrams/arch.svg"}, deps)

	divs := doc.Find("div." + ContainerClass)
	assert.Equal(t, 2, divs.Length())

	first := divs.First()
	src, _ := first.Attr(AttrSrc)
	assert.Equal(t, "./diagrams/arch.svg", src)
	style, _ := first.Attr("style")
	assert.Equal(t, "width: 640px; height: 480px", style)
	class, _ := first.Attr("class")
	assert.Equal(t, ContainerClass+" figure", class)

	second := divs.Eq(1)
	style, _ = second.Attr("style")
	assert.Equal(t, "width: 50%", style)

	svg := first.Find("svg")
	assert.Equal(t, 1, svg.Length())
	if _, ok := svg.Attr(AttrMark); !ok {
		t.Fatalf("inlined svg lost the %s mark", AttrMark)
	}
	w, _ := svg.Attr("width")
	assert.Equal(t, "100%", w)
	vb, _ := svg.Attr("viewBox")
	assert.Equal(t, "0 0 400 300", vb)

	// The unmarked img is untouched.
	assert.Equal(t, 1, doc.Find("img").Length())

	script := doc.Find("script#" + shimID)
	assert.Equal(t, 1, script.Length())
	js := script.Text()
	if !strings.Contains(js, `ensureLoaded("archizoom");`) {
		t.Fatal("shim script does not boot the default prefix")
	}
	if !strings.Contains(js, "streaming: false") {
		t.Fatal("shim script must keep streaming off")
	}
}

func TestBundleDefaultViewBox(t *testing.T) {
	doc, _, err := bundlePage(t, map[string]string{
		"d.svg": `<svg xmlns="http://www.w3.org/2000/svg"></svg>`,
	}, `<html><body><img data-archizoom src="d.svg"></body></html>`, Opts{})
	assert.Success(t, err)

	vb, _ := doc.Find("div." + ContainerClass + " svg").Attr("viewBox")
	assert.Equal(t, "0 0 200 200", vb)
}

func TestBundleCustomPrefix(t *testing.T) {
	doc, _, err := bundlePage(t, nil, `<html><body></body></html>`, Opts{Prefix: "viewer"})
	assert.Success(t, err)

	js := doc.Find("script#" + shimID).Text()
	if !strings.Contains(js, `ensureLoaded("viewer");`) {
		t.Fatal("shim script does not boot the configured prefix")
	}
}

func TestBundleInjectScripts(t *testing.T) {
	opts := Opts{InjectScripts: []string{"/static/watch.js"}}

	fsys, err := memfs.New(nil)
	assert.Success(t, err)
	page := []byte(`<html><body></body></html>`)
	once, _, err := Bundle(context.Background(), fsys, page, opts)
	assert.Success(t, err)
	twice, _, err := Bundle(context.Background(), fsys, once, opts)
	assert.Success(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(twice)))
	assert.Success(t, err)
	assert.Equal(t, 1, doc.Find(`script[src="/static/watch.js"]`).Length())
}

func TestBundleShimInjectedOnce(t *testing.T) {
	fsys, err := memfs.New(map[string]string{"d.svg": archSVG})
	assert.Success(t, err)

	page := []byte(`<html><body><img data-archizoom src="d.svg"></body></html>`)
	once, _, err := Bundle(context.Background(), fsys, page, Opts{})
	assert.Success(t, err)
	twice, _, err := Bundle(context.Background(), fsys, once, Opts{})
	assert.Success(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(twice)))
	assert.Success(t, err)
	assert.Equal(t, 1, doc.Find("script#"+shimID).Length())
	assert.Equal(t, 1, doc.Find("div."+ContainerClass).Length())
	assert.Equal(t, 0, doc.Find("img").Length())
}

func TestBundleMissingImage(t *testing.T) {
	page := `<html><body>
<img data-archizoom src="missing.svg">
<img data-archizoom src="d.svg">
</body></html>`

	doc, deps, err := bundlePage(t, map[string]string{"d.svg": archSVG}, page, Opts{})
	if err == nil || !strings.Contains(err.Error(), "missing.svg") {
		t.Fatalf("expected the missing image failure, got %v", err)
	}

	// The failed img stays put, the rest of the page still bundles. The
	// missing path still counts as a dependency so a watcher notices it
	// appearing.
	assert.JSON(t, []string{"missing.svg", "d.svg"}, deps)
	assert.Equal(t, 1, doc.Find("img").Length())
	assert.Equal(t, 1, doc.Find("div."+ContainerClass).Length())
	assert.Equal(t, 1, doc.Find("script#"+shimID).Length())
}

func TestBundleNotSVG(t *testing.T) {
	_, _, err := bundlePage(t, map[string]string{
		"d.svg": `<p>not a diagram</p>`,
	}, `<html><body><img data-archizoom src="d.svg"></body></html>`, Opts{})
	if err == nil || !strings.Contains(err.Error(), "no svg root") {
		t.Fatalf("expected the svg validation failure, got %v", err)
	}
}

func TestBundleEscapedSource(t *testing.T) {
	_, _, err := bundlePage(t, map[string]string{
		"d.svg": archSVG,
	}, `<html><body><img data-archizoom src="../outside.svg"></body></html>`, Opts{})
	if err == nil || !strings.Contains(err.Error(), "escapes the page directory") {
		t.Fatalf("expected the path escape failure, got %v", err)
	}
}

type stubTransport struct {
	calls int
	body  string
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls++
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(strings.NewReader(s.body)),
		Header:     make(http.Header),
	}, nil
}

func TestBundleRemote(t *testing.T) {
	stub := &stubTransport{body: archSVG}
	defer func(rt http.RoundTripper) { transport = rt }(transport)
	transport = stub

	fsys, err := memfs.New(nil)
	assert.Success(t, err)
	page := []byte(`<html><body><img data-archizoom src="https://example.com/remote-nocache.svg"></body></html>`)

	out, deps, err := Bundle(context.Background(), fsys, page, Opts{})
	assert.Success(t, err)
	// Remote sources are not watchable dependencies.
	assert.Equal(t, 0, len(deps))
	assert.Equal(t, 1, stub.calls)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(out)))
	assert.Success(t, err)
	assert.Equal(t, 1, doc.Find("div."+ContainerClass+" svg").Length())
}

func TestBundleRemoteCache(t *testing.T) {
	stub := &stubTransport{body: archSVG}
	defer func(rt http.RoundTripper) { transport = rt }(transport)
	transport = stub

	fsys, err := memfs.New(nil)
	assert.Success(t, err)
	page := []byte(`<html><body><img data-archizoom src="https://example.com/remote-cached.svg"></body></html>`)

	for i := 0; i < 3; i++ {
		_, _, err := Bundle(context.Background(), fsys, page, Opts{CacheRemote: true})
		assert.Success(t, err)
	}
	assert.Equal(t, 1, stub.calls)
}
