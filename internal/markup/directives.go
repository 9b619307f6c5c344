package markup

import (
	"regexp"
	"strings"
)

// Block directives are written either as NAME:body/NAME or [NAME]body[/NAME].
func blockRe(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)\[` + name + `\](.+?)\[/` + name + `\]|` + name + `:(.+?)/` + name)
}

// linkBody runs up to the first "]]" on the line; a single "]" is part of
// the body.
const linkBody = `((?:[^\]\n]|\][^\]\n])*)`

var (
	// The third group stands in for a lookahead and is written back.
	tagShorthandRe = regexp.MustCompile(`<([a-zA-Z]+)([.#\-0][^\s>]*)([\s>])`)
	attrLinkRe     = regexp.MustCompile(`\[\[` + linkBody + `\]\]\{([^}\n]*)\}`)
	questionRe     = blockRe("QUESTION")
	redirectRe     = blockRe("REDIRECT")
	formFieldRe    = blockRe("FORMFIELD")
	checkboxRe     = blockRe("CHECKBOX")
	submitRe       = regexp.MustCompile(`\[\[([^\[\]\n]+?)!!([^\[\]\n]+?)!!([^\[\]\n]+?)\]\]|\[\[!((?:[^\[\]\n]|\[[^\[\]\n]*\])+)\]\]`)
	answerRe       = regexp.MustCompile(`\[\[` + linkBody + `\]\]`)
	summaryRe      = regexp.MustCompile(`\[SUMMARY\]|SUBMITSUMMARY|SUMMARY`)
	uploadRe       = blockRe("UPLOAD")

	bracketGroupRe = regexp.MustCompile(`(?s)\[(.+?)\]`)
	parenGroupRe   = regexp.MustCompile(`(?s)\((.+?)\)`)
	braceGroupRe   = regexp.MustCompile(`(?s)\{(.+?)\}`)
)

// passes run in this order; later passes see what earlier ones produced.
var passes = []pass{
	{name: "tag", re: tagShorthandRe, replace: replaceTagShorthand},
	{name: "link", re: attrLinkRe, replace: replaceAttrLink},
	{name: "QUESTION", re: questionRe, replace: replaceQuestion},
	{name: "REDIRECT", re: redirectRe, replace: replaceRedirect},
	{name: "FORMFIELD", re: formFieldRe, replace: replaceFormField},
	{name: "CHECKBOX", re: checkboxRe, replace: replaceCheckbox},
	{name: "submit", re: submitRe, replace: replaceSubmit},
	{name: "answer", re: answerRe, replace: replaceAnswer},
	{name: "SUMMARY", re: summaryRe, replace: replaceSummary},
	{name: "UPLOAD", re: uploadRe, replace: replaceUpload},
}

const (
	honeypot = `<label class="uhoh" for="name-123"></label>` +
		`<input class="uhoh" autocomplete="off" required type="text" id="name-123" name="name-123" placeholder="Your name here">`

	uploadAccept = `.doc,.docx,application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document,image/*,application/pdf`
)

func group(re *regexp.Regexp, s string) (string, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func replaceTagShorthand(_ *state, g []string) (string, error) {
	return "<" + g[1] + " " + ExpandAttrs(g[2]) + g[3], nil
}

func replaceAttrLink(_ *state, g []string) (string, error) {
	display, target := ResolveLink(g[1])
	return `<a href="javascript:void(0)" data-passage="` + target + `" ` + ExpandAttrs(g[2]) + `>` + display + `</a>`, nil
}

func replaceQuestion(_ *state, g []string) (string, error) {
	return `<p class="question">` + firstNonEmpty(g[1], g[2]) + `</p>`, nil
}

func replaceRedirect(_ *state, g []string) (string, error) {
	body := firstNonEmpty(g[1], g[2])
	text, ok := group(bracketGroupRe, body)
	if !ok {
		return "", ErrMissingText
	}
	link, ok := group(parenGroupRe, body)
	if !ok {
		return "", ErrMissingLink
	}
	return `<p class="redirect-container"><a href="` + link + `" class="redirect" target="_blank">` +
		text + `<span class="redirect-arrow">↗</span></a></p>`, nil
}

func replaceFormField(_ *state, g []string) (string, error) {
	body := firstNonEmpty(g[1], g[2])
	label, ok := group(bracketGroupRe, body)
	if !ok {
		return "", ErrMissingText
	}
	bind, ok := group(braceGroupRe, body)
	if !ok {
		return "", ErrMissingVariable
	}
	typ, _ := group(parenGroupRe, body)

	var b strings.Builder
	switch typ {
	case "number":
		b.WriteString(`<div class="form-field"><p class="input-label"><strong>` + label + `</strong></p>`)
		b.WriteString(`<p class="input-label"><input type="number" required class="input-num" data-bind="` + bind + `" />`)
		b.WriteString(`<span class="error error-hidden">Please enter a number here</span></p></div>`)
	case "text-long":
		b.WriteString(`<div class="form-field-long"><p class="input-label"><strong>` + label + `</strong></p>`)
		b.WriteString(`<p class="input-label"><textarea class="input-text-long" required rows="4" cols="50" data-bind="` + bind + `"></textarea>`)
		b.WriteString(`<span class="error error-hidden">Please enter text here</span></p></div>`)
	default:
		b.WriteString(`<div class="form-field"><p class="input-label"><strong>` + label + `</strong></p>`)
		b.WriteString(`<p class="input-label"><input class="input-text" required data-bind="` + bind + `" />`)
		b.WriteString(`<span class="error error-hidden">Please enter text here</span></p></div>`)
	}
	return b.String(), nil
}

func replaceCheckbox(_ *state, g []string) (string, error) {
	body := firstNonEmpty(g[1], g[2])
	label, ok := group(bracketGroupRe, body)
	if !ok {
		return "", ErrMissingText
	}
	bind, ok := group(braceGroupRe, body)
	if !ok {
		return "", ErrMissingVariable
	}
	return `<div class="form-field-checkbox"><p class="input-label"><label class="checkbox-container">` +
		`<input type="checkbox" class="input-checkbox" data-bind="` + bind + `" /><span/></label></p>` +
		`<p class="input-label">` + label + `</p></div>`, nil
}

func replaceSubmit(st *state, g []string) (string, error) {
	var display, params, target string
	if g[4] != "" {
		var err error
		if display, params, target, err = parseLazySubmit(g[4]); err != nil {
			return "", err
		}
	} else {
		display = strings.ReplaceAll(g[1], "->", "")
		params = g[2]
		target = strings.ReplaceAll(g[3], "->", "")
	}

	anchor := `<a href="javascript:void(0)" class="submit" data-passage="` + target +
		`" data-submit="` + params + `">` + display + `</a>`
	if st.in.Options.OverrideSpamFilters {
		return anchor, nil
	}
	return honeypot + anchor, nil
}

func replaceAnswer(_ *state, g []string) (string, error) {
	display, target := ResolveLink(g[1])
	return `<p><a href="javascript:void(0)" data-passage="` + target + `" class="answer">` + display + `</a></p>`, nil
}

// The table holds reader-entered values, so it is sealed until every pass
// has run.
func replaceSummary(st *state, _ []string) (string, error) {
	return st.seal(SummaryTable(st.in.FormData)), nil
}

func replaceUpload(st *state, g []string) (string, error) {
	label := firstNonEmpty(g[1], g[2])
	head := `<div class="form-field"><p class="input-label"><strong>` + label + `</strong></p><p class="input-label">`
	linkField := `<input name="upload-link" id="upload-link" data-bind="upload-link" /></p></div>`
	if st.in.Options.AllowUploads {
		return head + `Upload an image file, PDF or Word document (.doc, .docx) of 5mb and less` +
			`<input type="file" name="upload" accept="` + uploadAccept + `" data-bind="upload" id="upload"/><br/>` +
			`Or paste the URL of an attachment here:` + linkField, nil
	}
	return head + `We only accept links. Paste the URL here to attach:` + linkField, nil
}
