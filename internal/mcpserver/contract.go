package mcpserver

// PageFormatContract describes the content file format the site build
// understands. LLM consumers should follow it when creating pages.
const PageFormatContract = `# Weaving Page Format Contract

Every content file is Markdown with an optional frontmatter header.

## Structure

` + "```" + `markdown
---
title: Human-readable title     # used by templates, feeds and the sitemap
description: One-line summary   # OPTIONAL – feed summary
tags: [go, web]                 # OPTIONAL – list of strings
keywords: [static, site]        # OPTIONAL – list of strings
template: post                  # OPTIONAL – page template name, default "default"
emit: true                      # OPTIONAL – false renders the page but writes no file
published: 2025-01-15T09:00:00Z # OPTIONAL – RFC 3339; defaults to the file time
last_updated: 2025-01-16        # OPTIONAL – defaults to published
excerpt: Short teaser           # OPTIONAL
---

Body text in Markdown. Liquid tags such as {{ page.title }} run before the
Markdown is converted.
` + "```" + `

TOML frontmatter between ` + "`" + `+++` + "`" + ` fences is accepted too. Any other key
is passed through to templates under ` + "`" + `page.meta` + "`" + `.

## Routes

- ` + "`" + `content/index.md` + "`" + ` is published at ` + "`" + `/` + "`" + `.
- ` + "`" + `content/blog/post1.md` + "`" + ` is published at ` + "`" + `/blog/post1/` + "`" + `.
- ` + "`" + `content/blog/index.md` + "`" + ` is the list page ` + "`" + `/blog/` + "`" + `; it never appears in
  its own ` + "`" + `content.blog` + "`" + ` listing.
- ` + "`" + `content/404.md` + "`" + ` becomes the preview server's not-found page.

## Rules

1. File paths end with ` + "`" + `.md` + "`" + ` and use forward slashes.
2. Timestamps are RFC 3339 or ` + "`" + `YYYY-MM-DD` + "`" + `. An unparseable value is ignored with a warning.
3. The template named by ` + "`" + `template` + "`" + ` must exist in the templates directory,
   otherwise the whole build fails.
4. Encoding is UTF-8 with a trailing newline.
`
