package markup

import (
	"testing"

	"github.com/enquirywitch/enquirywitch/internal/form"
	"github.com/google/go-cmp/cmp"
)

const (
	summaryHead = `<h3 class="message-summary">MESSAGE SUMMARY</h3><table><tbody>`
	summaryTail = `</tbody></table>`
)

func row(label, value string) string {
	return `<tr><td><strong>` + label + `</strong></td><td>` + value + `</td></tr>`
}

func TestSummaryTable(t *testing.T) {
	base := form.Data{
		{Key: "name", Value: "Jazz"},
		{Key: "email_address", Value: "jazz@jazz.com"},
		{Key: "message_body", Value: "Hello"},
	}
	baseRows := row("NAME", "Jazz") + row("EMAIL ADDRESS", "jazz@jazz.com") + row("MESSAGE BODY", "Hello")

	tests := []struct {
		name string
		data form.Data
		want string
	}{
		{"empty", nil, summaryHead + summaryTail},
		{"single field", form.Data{{Key: "name", Value: "Jazz"}}, summaryHead + row("NAME", "Jazz") + summaryTail},
		{"fields in order", base, summaryHead + baseRows + summaryTail},
		{
			"named upload",
			append(base.Clone(), form.Field{Key: "upload", Value: &form.Upload{Name: "hello.jpg"}}),
			summaryHead + baseRows + row("UPLOAD", "hello.jpg") + summaryTail,
		},
		{
			"empty upload",
			append(base.Clone(), form.Field{Key: "upload", Value: ""}),
			summaryHead + baseRows + row("UPLOAD", "") + summaryTail,
		},
		{
			"nil upload",
			form.Data{{Key: "upload", Value: nil}},
			summaryHead + row("UPLOAD", "") + summaryTail,
		},
		{
			"upload without name",
			form.Data{{Key: "upload", Value: &form.Upload{}}},
			summaryHead + row("UPLOAD", "") + summaryTail,
		},
		{
			"upload as plain string",
			form.Data{{Key: "upload", Value: "hello.jpg"}},
			summaryHead + row("UPLOAD", "") + summaryTail,
		},
		{
			"upload decoded from json",
			form.Data{{Key: "upload", Value: map[string]any{"name": "a<b>.pdf"}}},
			summaryHead + row("UPLOAD", "a&lt;b&gt;.pdf") + summaryTail,
		},
		{
			"values escaped",
			form.Data{{Key: "message", Value: "<script>alert('x')</script>"}},
			summaryHead + row("MESSAGE", "&lt;script&gt;alert('x')&lt;/script&gt;") + summaryTail,
		},
		{
			"large numbers written in full",
			form.Data{{Key: "count", Value: 1000000.0}, {Key: "phone", Value: 7912345678.0}, {Key: "age", Value: 42.5}},
			summaryHead + row("COUNT", "1000000") + row("PHONE", "7912345678") + row("AGE", "42.5") + summaryTail,
		},
		{
			"number typed as text",
			form.Data{{Key: "count", Value: "1000000"}},
			summaryHead + row("COUNT", "1000000") + summaryTail,
		},
		{
			"booleans unescaped",
			form.Data{{Key: "keep_me_posted", Value: true}},
			summaryHead + row("KEEP ME POSTED", "true") + summaryTail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, SummaryTable(tt.data)); diff != "" {
				t.Errorf("SummaryTable() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
