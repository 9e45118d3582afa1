package dashboard

import (
	"html/template"
)

var pageTemplates = template.Must(template.New("").Parse(`
{{define "header"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} | SecureGuard</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 40rem; margin: 3rem auto; color: #1f2933; }
.error { color: #b91c1c; }
.notice { color: #047857; }
nav form { display: inline; }
label { display: block; margin-top: .75rem; }
</style>
</head>
<body>
<nav>
<strong>SecureGuard</strong>
{{if .User}} | {{.User.FullName}} ({{.User.Role}})
<form method="post" action="/logout"><button type="submit">Sign out</button></form>{{end}}
</nav>
<h1>{{.Title}}</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Notice}}<p class="notice">{{.Notice}}</p>{{end}}
{{end}}

{{define "footer"}}
<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws/session");
  var first = null;
  ws.onmessage = function (ev) {
    var snap = JSON.parse(ev.data);
    if (snap.navigate) { location.href = snap.navigate; return; }
    if (first === null) { first = snap.status; return; }
    if (snap.status !== first && snap.status !== "loading") { location.reload(); }
  };
})();
</script>
</body>
</html>
{{end}}

{{define "login"}}{{template "header" .}}
<form method="post" action="/login">
<input type="hidden" name="from" value="{{.From}}">
<label>Email <input type="email" name="email" value="{{index .Form "email"}}" autocomplete="username"></label>
<label>Password <input type="password" name="password" autocomplete="current-password"></label>
<p><button type="submit">Sign in</button></p>
</form>
<p><a href="/register">Create an account</a></p>
{{template "footer" .}}{{end}}

{{define "register"}}{{template "header" .}}
<form method="post" action="/register">
<label>Email <input type="email" name="email" value="{{index .Form "email"}}"></label>
<label>Password <input type="password" name="password" autocomplete="new-password"></label>
<label>First name <input name="first_name" value="{{index .Form "first_name"}}"></label>
<label>Last name <input name="last_name" value="{{index .Form "last_name"}}"></label>
<label>Phone <input name="phone" value="{{index .Form "phone"}}"></label>
<p><button type="submit">Create account</button></p>
</form>
<p><a href="/login">Already registered? Sign in</a></p>
{{template "footer" .}}{{end}}

{{define "unauthorized"}}{{template "header" .}}
<p>You do not have access to this page.</p>
<p><a href="/dashboard">Back to your dashboard</a></p>
{{template "footer" .}}{{end}}

{{define "page"}}{{template "header" .}}
{{with .User}}
<dl>
<dt>Email</dt><dd>{{.Email}}</dd>
<dt>Role</dt><dd>{{.Role}}</dd>
{{if .Permissions}}<dt>Permissions</dt><dd>{{range $i, $p := .Permissions}}{{if $i}}, {{end}}{{$p}}{{end}}</dd>{{end}}
</dl>
{{end}}
{{template "footer" .}}{{end}}

{{define "placeholder"}}<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><meta http-equiv="refresh" content="1"><title>Loading | SecureGuard</title></head>
<body><p>Loading...</p></body></html>
{{end}}
`))
