package components

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// HeaderAuthData drives the signed-in part of the page header.
type HeaderAuthData struct {
	IsAuthenticated bool
	DisplayName     string
}

// Site is what every page shares.
type Site struct {
	AppName string
	AppURL  string
	Auth    HeaderAuthData
}

// Layout wraps body in the document shell. Scripts are loaded after body.
func Layout(site Site, meta PageMeta, body templ.Component, scripts ...string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		x := NewWriter(w)
		x.Raw(`<!doctype html><html lang="en"><head><meta charset="utf-8">`)
		x.Raw(`<meta name="viewport" content="width=device-width, initial-scale=1"><title>`)
		x.Text(meta.fullTitle(site.AppName))
		x.Raw(`</title>`)
		if meta.Description != "" {
			x.Raw(`<meta name="description" content="`)
			x.Text(meta.Description)
			x.Raw(`">`)
		}
		x.Raw(`<link rel="canonical" href="`)
		x.URL(meta.canonicalURL(site.AppURL))
		x.Raw(`"><link rel="stylesheet" href="/static/app.css"></head><body>`)
		x.Render(ctx, header(site))
		x.Raw(`<main id="app">`)
		x.Render(ctx, body)
		x.Raw(`</main>`)
		for _, src := range scripts {
			x.Raw(`<script src="`)
			x.URL(src)
			x.Raw(`"></script>`)
		}
		x.Raw(`</body></html>`)
		return x.Err()
	})
}

func header(site Site) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		x := NewWriter(w)
		x.Raw(`<header class="site"><a class="brand" href="/">`)
		x.Text(site.AppName)
		x.Raw(`</a>`)
		if site.Auth.IsAuthenticated {
			x.Raw(`<span class="who">`)
			x.Text(site.Auth.DisplayName)
			x.Raw(`</span>`)
		} else {
			x.Raw(`<nav><a href="/login">Log in</a> <a href="/signup">Sign up</a></nav>`)
		}
		x.Raw(`</header>`)
		return x.Err()
	})
}

// Flash renders the notice and error boxes. Empty boxes stay in the page
// hidden so scripts can fill them.
func Flash(notice, errMsg string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		x := NewWriter(w)
		box(x, "notice", "status", notice)
		box(x, "error", "alert", errMsg)
		return x.Err()
	})
}

func box(x *Writer, id, role, text string) {
	x.Raw(`<p id="` + id + `" role="` + role + `"`)
	if text == "" {
		x.Raw(` hidden`)
	}
	x.Raw(`>`)
	x.Text(text)
	x.Raw(`</p>`)
}
