package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
)

// DefaultReferer is sent with every navigation
const DefaultReferer = "https://www.google.com/"

var userAgents = map[models.Device]string{
	models.DevicePC:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	models.DeviceMobile: "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
}

type viewport struct {
	width, height int
	scale         float64
}

var viewports = map[models.Device]viewport{
	models.DevicePC:     {width: 1366, height: 768, scale: 1},
	models.DeviceMobile: {width: 390, height: 844, scale: 3},
}

// Proxy is the network egress of one region
type Proxy struct {
	Server   string
	Username string
	Password string
}

// BrowserConfig configures the browser launched for every task
type BrowserConfig struct {
	Bin        string
	Headless   bool
	Proxies    map[models.Region]Proxy
	StorageDir string
	Locale     string
	Timezone   string
}

// RodSessionFactory launches one browser process per task so each task gets its own proxy and cookie jar
type RodSessionFactory struct {
	cfg BrowserConfig
}

// NewRodSessionFactory creates a factory for live pages
func NewRodSessionFactory(cfg BrowserConfig) *RodSessionFactory {
	if cfg.Locale == "" {
		cfg.Locale = "ko-KR"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Seoul"
	}
	return &RodSessionFactory{cfg: cfg}
}

// Open launches a browser configured for the profile and returns a stealth page
func (f *RodSessionFactory) Open(ctx context.Context, site *SiteConfig, profile models.EnvironmentProfile) (Page, error) {
	l := launcher.New().
		Headless(f.cfg.Headless).
		NoSandbox(true).
		Leakless(false)
	if f.cfg.Bin != "" {
		l = l.Bin(f.cfg.Bin)
	} else if _, err := os.Stat("/usr/bin/chromium-browser"); err == nil {
		l = l.Bin("/usr/bin/chromium-browser")
	}

	proxy, hasProxy := f.cfg.Proxies[profile.Region]
	if hasProxy && proxy.Server != "" {
		l = l.Proxy(proxy.Server)
	}

	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page := &RodPage{browser: browser, launcher: l}
	if hasProxy && proxy.Username != "" {
		wait := browser.HandleAuth(proxy.Username, proxy.Password)
		go func() {
			if err := wait(); err != nil {
				log.Debug().Err(err).Msg("proxy auth handler stopped")
			}
		}()
	}

	if err := f.setup(page, site, profile); err != nil {
		page.Close()
		return nil, err
	}
	return page, nil
}

func (f *RodSessionFactory) setup(p *RodPage, site *SiteConfig, profile models.EnvironmentProfile) error {
	page, err := stealth.Page(p.browser)
	if err != nil {
		return fmt.Errorf("open stealth page: %w", err)
	}
	p.page = page

	ua := userAgents[profile.Device]
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua, AcceptLanguage: f.cfg.Locale}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}

	vp := viewports[profile.Device]
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.width,
		Height:            vp.height,
		DeviceScaleFactor: vp.scale,
		Mobile:            profile.IsMobile(),
	}).Call(page); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: f.cfg.Timezone}).Call(page); err != nil {
		return fmt.Errorf("set timezone: %w", err)
	}
	if err := (proto.EmulationSetLocaleOverride{Locale: f.cfg.Locale}).Call(page); err != nil {
		return fmt.Errorf("set locale: %w", err)
	}

	referer := site.Referer
	if referer == "" {
		referer = DefaultReferer
	}
	if _, err := page.SetExtraHeaders([]string{"Referer", referer}); err != nil {
		return fmt.Errorf("set referer: %w", err)
	}

	switch {
	case profile.CookiesCleared:
		if err := p.browser.SetCookies(nil); err != nil {
			return fmt.Errorf("clear cookies: %w", err)
		}
	case profile.LoggedIn && site.LoginState != "":
		cookies, err := loadStorageState(filepath.Join(f.cfg.StorageDir, site.LoginState))
		if err != nil {
			return err
		}
		if err := p.browser.SetCookies(cookies); err != nil {
			return fmt.Errorf("load login cookies: %w", err)
		}
	}
	return nil
}

// storageState is the saved cookie jar of a logged-in session
type storageState struct {
	Cookies []struct {
		Name     string  `json:"name"`
		Value    string  `json:"value"`
		Domain   string  `json:"domain"`
		Path     string  `json:"path"`
		Expires  float64 `json:"expires"`
		HTTPOnly bool    `json:"httpOnly"`
		Secure   bool    `json:"secure"`
		SameSite string  `json:"sameSite"`
	} `json:"cookies"`
}

func loadStorageState(path string) ([]*proto.NetworkCookieParam, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("login state file missing, run the login setup first: %w", err)
	}
	var state storageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse login state %s: %w", path, err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			param.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, param)
	}
	return params, nil
}

// RodPage is a live page in its own browser process
type RodPage struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
}

func (p *RodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	if err := page.WaitLoad(); err != nil {
		return err
	}
	// best effort, long-polling pages never go idle
	_ = page.WaitIdle(5 * time.Second)
	return nil
}

func (p *RodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *RodPage) Title(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (p *RodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *RodPage) BodyText(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *RodPage) Count(ctx context.Context, selector string) (int, error) {
	res, err := p.page.Context(ctx).Eval(`(sel) => {
		try { return document.querySelectorAll(sel).length; } catch (e) { return 0; }
	}`, selector)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (p *RodPage) Query(ctx context.Context, q ElementQuery) ([]ElementSnapshot, error) {
	res, err := p.page.Context(ctx).Eval(queryElementsJS, q.Selector, q.Attr, q.Contains, q.Limit)
	if err != nil {
		return nil, err
	}
	var out []ElementSnapshot
	if err := res.Value.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("decode element snapshots: %w", err)
	}
	return out, nil
}

func (p *RodPage) ScanVisible(ctx context.Context) ([]ElementSnapshot, error) {
	res, err := p.page.Context(ctx).Eval(scanVisibleJS, maxScanTextRunes)
	if err != nil {
		return nil, err
	}
	var out []ElementSnapshot
	if err := res.Value.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("decode visible snapshots: %w", err)
	}
	return out, nil
}

func (p *RodPage) Cards(ctx context.Context, q CardQuery) ([]CardSnapshot, error) {
	fields := q.Fields
	if fields == nil {
		fields = []CardField{}
	}
	res, err := p.page.Context(ctx).Eval(cardsJS, q.Selector, q.Limit, fields)
	if err != nil {
		return nil, err
	}
	var out []CardSnapshot
	if err := res.Value.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("decode cards: %w", err)
	}
	return out, nil
}

func (p *RodPage) Scroll(ctx context.Context, dy int) error {
	_, err := p.page.Context(ctx).Eval(`(dy) => window.scrollBy(0, dy)`, dy)
	return err
}

func (p *RodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Close closes the page and kills the browser process
func (p *RodPage) Close() error {
	var err error
	if p.page != nil {
		err = p.page.Close()
	}
	if p.browser != nil {
		if cerr := p.browser.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if p.launcher != nil {
		p.launcher.Kill()
		p.launcher.Cleanup()
	}
	return err
}

// snapshotJS describes one element the way ElementSnapshot expects it
const snapshotJS = `
const snap = (el, attr) => {
	const text = (el.innerText || el.textContent || "").replace(/[\u00a0\u202f]/g, " ").replace(/\s+/g, " ").trim();
	const st = getComputedStyle(el);
	const r = el.getBoundingClientRect();
	let lineThrough = false;
	const ancestorClass = [];
	const ancestorText = [];
	for (let p = el; p; p = p.parentElement) {
		const ps = getComputedStyle(p);
		if ((ps.textDecorationLine || "").includes("line-through")) lineThrough = true;
		if (p === el) continue;
		const c = (p.className || "").toString();
		if (c) ancestorClass.push(c);
		if (ancestorText.length < 4) ancestorText.push((p.innerText || "").slice(0, 300));
	}
	const ah = el.getAttribute("aria-hidden");
	return {
		text: text,
		attr: attr ? (el.getAttribute(attr) || "").trim() : "",
		class: (el.className || "").toString(),
		ancestor_class: ancestorClass,
		ancestor_text: ancestorText,
		line_through: lineThrough,
		aria_hidden: ah === "true" || ah === "1",
		visible: st.display !== "none" && st.visibility !== "hidden" && parseFloat(st.opacity || "1") >= 0.2 && r.width > 0 && r.height > 0,
		font_size: parseFloat(st.fontSize || "14") || 14,
	};
};`

var queryElementsJS = `(sel, attr, contains, limit) => {` + snapshotJS + `
	let nodes;
	try { nodes = Array.from(document.querySelectorAll(sel)); } catch (e) { return []; }
	const out = [];
	for (const el of nodes) {
		const s = snap(el, attr);
		if (contains && !s.text.includes(contains)) continue;
		out.push(s);
		if (limit > 0 && out.length >= limit) break;
	}
	return out;
}`

var scanVisibleJS = `(maxLen) => {` + snapshotJS + `
	const skip = ["SCRIPT", "STYLE", "NOSCRIPT", "TEMPLATE"];
	const out = [];
	for (const el of document.querySelectorAll("body *")) {
		if (skip.includes(el.tagName)) continue;
		let own = false;
		for (const n of el.childNodes) {
			if (n.nodeType === 3 && /\d/.test(n.nodeValue)) { own = true; break; }
		}
		if (!own) continue;
		const s = snap(el, "");
		if (!s.visible || !s.text || s.text.length > maxLen) continue;
		out.push(s);
	}
	return out;
}`

const cardsJS = `(sel, limit, fields) => {
	let cards;
	try { cards = Array.from(document.querySelectorAll(sel)); } catch (e) { return []; }
	if (limit > 0) cards = cards.slice(0, limit);
	return cards.map((card, i) => {
		const out = { index: i, text: (card.innerText || "").trim(), fields: {} };
		for (const f of fields) {
			let els;
			try { els = Array.from(card.querySelectorAll(f.selector)); } catch (e) { continue; }
			const vals = [];
			for (const el of els) {
				const v = f.attr ? (el.getAttribute(f.attr) || "").trim() : (el.innerText || el.textContent || "").replace(/\s+/g, " ").trim();
				if (!v) continue;
				vals.push(v);
				if (!f.multi) break;
			}
			if (vals.length) out.fields[f.name] = vals;
		}
		return out;
	});
}`
