package loopback

import (
	"html/template"
	"strings"
)

var pageTmpl = template.Must(template.New("result").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .Detail}}<p>{{.Detail}}</p>{{end}}
{{if .Close}}<script>window.close();</script>{{end}}
</body>
</html>
`))

func resultPage(title, detail string, closeWindow bool) string {
	var b strings.Builder
	_ = pageTmpl.Execute(&b, struct {
		Title  string
		Detail string
		Close  bool
	}{title, detail, closeWindow})
	return b.String()
}
