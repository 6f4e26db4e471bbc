package graph

// Globals are the site-wide values shared by every render context.
type Globals struct {
	ExtraCSS string
	Site     map[string]any
}

// Context is the per-page view a template renders against.
type Context struct {
	Page    Page
	Content map[string][]Page
	Globals Globals
}

// ContextFor builds the render context for current. current is projected
// fresh and removed from every section bucket.
func (s *Snapshot) ContextFor(current Page, g Globals) *Context {
	return &Context{
		Page:    current,
		Content: s.Sections(current.Route),
		Globals: g,
	}
}

// SetBody replaces the current page's body with rendered HTML.
func (c *Context) SetBody(html string) {
	c.Page.Body = html
}

// Bindings returns the context as template variables: page, content,
// extra_css and site_config.
func (c *Context) Bindings() map[string]any {
	content := make(map[string]any, len(c.Content))
	for key, pages := range c.Content {
		list := make([]map[string]any, len(pages))
		for i, p := range pages {
			list[i] = p.Map()
		}
		content[key] = list
	}
	site := c.Globals.Site
	if site == nil {
		site = map[string]any{}
	}
	return map[string]any{
		"page":        c.Page.Map(),
		"content":     content,
		"extra_css":   c.Globals.ExtraCSS,
		"site_config": site,
	}
}
