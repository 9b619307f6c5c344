package markup

import (
	"strings"

	"github.com/enquirywitch/enquirywitch/internal/form"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SummaryTable renders the collected form data as the message summary shown
// before a submission. Values are escaped; the upload row shows the file name
// only when a named file is attached.
func SummaryTable(data form.Data) string {
	upper := cases.Upper(language.Und)

	var b strings.Builder
	b.WriteString(`<h3 class="message-summary">MESSAGE SUMMARY</h3><table><tbody>`)
	for _, f := range data {
		if f.Key == form.UploadKey {
			b.WriteString(`<tr><td><strong>UPLOAD</strong></td><td>` + uploadName(f.Value) + `</td></tr>`)
			continue
		}
		label := upper.String(strings.ReplaceAll(f.Key, "_", " "))
		b.WriteString(`<tr><td><strong>` + label + `</strong></td><td>` + Escape(f.Value) + `</td></tr>`)
	}
	b.WriteString(`</tbody></table>`)
	return b.String()
}

func uploadName(v any) string {
	switch u := v.(type) {
	case *form.Upload:
		if u != nil {
			return EscapeString(u.Name)
		}
	case form.Upload:
		return EscapeString(u.Name)
	case map[string]any:
		if name, ok := u["name"].(string); ok {
			return EscapeString(name)
		}
	}
	return ""
}
