package extract

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pairwatch/fault"
)

var tokenPage = `<!DOCTYPE html>
<html>
<head><title>ABC123</title><style>.x{color:red}</style></head>
<body>
<nav><a href="/">Home</a></nav>
<div class="layout">
  <div class="css-1jy8g2v panel">
    <div><span>Snipers</span><span>&gt;</span></div>
    <div>42</div>
    <div><span>BlueChip</span> <span>&gt;</span> <b>7</b></div>
    <div>Top 10</div><div> 55% </div>
    <script>var ignored = "Snipers";</script>
    <div>Audit</div><div>&gt;</div><div>Safe</div><div>4/4</div>
  </div>
</div>
<footer>footer text</footer>
</body>
</html>`

func TestRegion_SelectsClass(t *testing.T) {
	// WHAT: the region selector picks the metrics panel and yields line text.
	// WHY: the extractor's patterns rely on one token per line.
	res, err := Region(tokenPage, "div.css-1jy8g2v", true)
	if err != nil {
		t.Fatalf("region: %v", err)
	}
	if res.Fallback {
		t.Error("unexpected fallback")
	}
	want := "Snipers\n>\n42\nBlueChip\n>\n7\nTop 10\n55%\nAudit\n>\nSafe\n4/4"
	if res.Text != want {
		t.Errorf("text:\n%q\nwant\n%q", res.Text, want)
	}
	if strings.Contains(res.Text, "footer") || strings.Contains(res.Text, "Home") {
		t.Error("text leaked outside the region")
	}
	if !strings.Contains(res.HTML, "css-1jy8g2v") {
		t.Errorf("html should be the region outer HTML: %s", res.HTML)
	}

	rec := Metrics(res.Text)
	if rec.Snipers != "42" || rec.BlueChip != "7" || rec.Top10 != "55%" || rec.Audit != "Safe 4/4" {
		t.Errorf("metrics: %+v", rec)
	}
}

func TestRegion_FallbackToBody(t *testing.T) {
	res, err := Region(tokenPage, "div.missing", true)
	if err != nil {
		t.Fatalf("region: %v", err)
	}
	if !res.Fallback {
		t.Error("expected fallback")
	}
	if !strings.Contains(res.Text, "footer text") || !strings.Contains(res.Text, "Home") {
		t.Errorf("body text incomplete: %q", res.Text)
	}
	if strings.Contains(res.Text, "color:red") {
		t.Error("style content leaked")
	}
}

func TestRegion_NoFallback(t *testing.T) {
	_, err := Region(tokenPage, "#nope", false)
	if !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestRegion_DescendantAndAttr(t *testing.T) {
	page := `<div id="list"><a data-x="1" href="/sol/token/A">A</a></div><a href="/b">B</a>`
	res, err := Region(page, "#list a[data-x=1]", false)
	if err != nil {
		t.Fatalf("region: %v", err)
	}
	if res.Text != "A" {
		t.Errorf("text: %q", res.Text)
	}
}

func TestRegion_BodyTextLines(t *testing.T) {
	// WHAT: The body fallback yields trimmed text nodes, one per line,
	// without empty nodes or script content.
	res, err := Region("<p> one </p><p></p><p>two<br>three</p><script>x</script>", "div.absent", true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fallback || res.Text != "one\ntwo\nthree" {
		t.Errorf("got %q (fallback %v)", res.Text, res.Fallback)
	}
}

func TestCompileCompound(t *testing.T) {
	c := compileCompound("a.css-5uoabp.row[href]")
	if c.tag != "a" || len(c.classes) != 2 || c.attr != "href" || c.hasVal {
		t.Errorf("got %+v", c)
	}
	c = compileCompound("#main")
	if c.id != "main" || c.tag != "" {
		t.Errorf("got %+v", c)
	}
	c = compileCompound(`button[aria-label="Close"]`)
	if c.tag != "button" || c.attr != "aria-label" || c.val != "Close" || !c.hasVal {
		t.Errorf("got %+v", c)
	}
}

func TestFind_DescendantChain(t *testing.T) {
	// WHAT: Each compound must match an ancestor, in order, at any depth.
	// WHY: List anchors sit several wrappers below the table container.
	doc, err := html.Parse(strings.NewReader(`<div class="holder"><section><a class="coin" href="/1">1</a></section></div>
<a class="coin" href="/2">2</a>
<div class="holder"><a class="coin other" href="/3">3</a></div>`))
	if err != nil {
		t.Fatal(err)
	}
	got := find(doc, compileSelector("div.holder a.coin"), false)
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2", len(got))
	}
	for i, want := range []string{"/1", "/3"} {
		if v, _ := attr(got[i], "href"); v != want {
			t.Errorf("match %d href = %q, want %q", i, v, want)
		}
	}
	if querySelector(doc, "section div.holder") != nil {
		t.Error("ancestor order must be respected")
	}
}
