package web

import "html/template"

// Templates are kept as small inline strings rather than a templates/
// directory: no styling system is specified by spec.md §6.2, and bare
// templates are sufficient to exercise the KS operations this surface
// exists to call.
var (
	indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<title>cue</title>
<h1>cue</h1>
{{if .Flash}}<p class="flash">{{.Flash}}</p>{{end}}
<p>Sign in to manage your API keys.</p>
<a href="/home">Continue</a>
`))

	homeTemplate = template.Must(template.New("home").Parse(`<!doctype html>
<title>cue - keys</title>
<h1>Your API keys</h1>
{{if .Flash}}<p class="flash">{{.Flash}}</p>{{end}}
<ul>
{{range .Keys}}
  <li>
    {{.Name}} {{if .Pattern}}({{.Pattern}}){{end}}
    <form action="/key-removal/{{.ID}}" method="post" style="display:inline">
      <input type="hidden" name="csrf" value="{{$.CSRF}}">
      <button type="submit">Remove</button>
    </form>
  </li>
{{end}}
</ul>
<form action="/home/cue" method="post">
  <input type="hidden" name="csrf" value="{{.CSRF}}">
  <input type="text" name="name" placeholder="cue name">
  <button type="submit">Post cue</button>
</form>
`))

	keyRequestTemplate = template.Must(template.New("keyrequest").Parse(`<!doctype html>
<title>cue - confirm key</title>
<h1>Authorize new key</h1>
<form action="/keyrequest/{{.RequestID}}/accept" method="post">
  <input type="hidden" name="csrf" value="{{.CSRF}}">
  <label>Name: <input type="text" name="name" value="{{.Name}}"></label>
  <button type="submit">Authorize</button>
</form>
`))

	keyRemovalTemplate = template.Must(template.New("key-removal").Parse(`<!doctype html>
<title>cue - remove key</title>
<h1>Remove key {{.Name}}?</h1>
<form action="/key-removal/{{.KeyID}}" method="post">
  <input type="hidden" name="csrf" value="{{.CSRF}}">
  <button type="submit">Remove</button>
</form>
`))
)
